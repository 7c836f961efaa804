package profile

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tarsier-dev/tarsier/internal/scan"
)

// The two built-in profiles cover the vendor's home-robot app and its
// drone app. Both stash the SSO token in the managed heap with the same
// US_ prefix; everything else differs enough to warrant separate tables.
//
// The window offset 0x12c00000 skips the low mappings shared by every
// app on the emulator image; the heap allocations that hold credentials
// land above it. The sizes match each app's typical resident footprint.

func init() {
	register(homeProfile())
	register(flyProfile())
}

// tokenField is shared by both apps: the SSO token has the same shape
// everywhere it appears.
func tokenField() scan.Field {
	return scan.Field{
		Name:       PrimaryField,
		Signatures: []scan.Signature{{Prefix: []byte("US_")}},
		Allowed:    scan.Token,
		// 50+ chars after the prefix; values seen in the wild run
		// 80-200 chars. Heuristic, not a contract from the vendor.
		MinLen: 53,
		MaxLen: 512,
		Valid: func(s string) bool {
			return strings.HasPrefix(s, "US_")
		},
	}
}

func emailField() scan.Field {
	return scan.Field{
		Name:       "user_email",
		Signatures: []scan.Signature{{Marker: []byte("flutter.user_email"), SkipMax: 24}, {Marker: []byte("\"email\""), SkipMax: 8}},
		Allowed:    scan.Email,
		MinLen:     6,
		MaxLen:     128,
		Valid:      looksLikeEmail,
	}
}

func deviceUUIDField(markers ...string) scan.Field {
	f := scan.Field{
		Name:       "device_uuid",
		Allowed:    scan.UUIDText,
		MinLen:     36,
		MaxLen:     36,
		List:       true,
		MaxMatches: 3,
		Valid: func(s string) bool {
			_, err := uuid.Parse(s)
			return err == nil
		},
	}
	for _, m := range markers {
		f.Signatures = append(f.Signatures, scan.Signature{Marker: []byte(m), SkipMax: 24})
	}
	return f
}

func homeProfile() *Profile {
	return &Profile{
		Name:         "home",
		Description:  "home robot companion app (Flutter)",
		Package:      "com.dji.home",
		AVD:          "tarsier_home",
		APKHints:     []string{"dji.home", "home"},
		WindowOffset: 0x12c00000,
		WindowSize:   500 * mib,
		APIBase:      "https://home-api-vg.djigate.com",
		EnvPrefix:    "DJI",
		ProbeHomes:   true,
		Fields: []scan.Field{
			tokenField(),
			{
				Name:       "user_id",
				Signatures: []scan.Signature{{Marker: []byte("flutter.user_id"), SkipMax: 24}},
				Allowed:    scan.Digits,
				MinLen:     10,
				MaxLen:     19,
			},
			emailField(),
			{
				Name:       "user_name",
				Signatures: []scan.Signature{{Prefix: []byte("djiuser_")}},
				Allowed:    scan.Token,
				MinLen:     9,
				MaxLen:     64,
			},
			{
				Name: "device_sn",
				Signatures: []scan.Signature{
					{Marker: []byte("\"sn\""), SkipMax: 8},
					{Marker: []byte("\"device_sn\""), SkipMax: 8},
				},
				Allowed: scan.UpperAlnum,
				MinLen:  10,
				MaxLen:  20,
			},
			{
				Name:       "pair_uuid",
				Signatures: []scan.Signature{{Prefix: []byte("ROMO-")}},
				Allowed:    scan.UpperAlnum,
				MinLen:     10,
				MaxLen:     40,
			},
			{
				Name:       "iot_url",
				Signatures: []scan.Signature{{Prefix: []byte("things-access")}},
				Allowed:    scan.URL,
				MinLen:     20,
				MaxLen:     128,
				Valid: func(s string) bool {
					return strings.Contains(s, ".iot.djigate.com")
				},
			},
			deviceUUIDField("flutter._deviceUUIDKey"),
		},
	}
}

func flyProfile() *Profile {
	return &Profile{
		Name:            "fly",
		Description:     "drone pilot app (native)",
		Package:         "dji.go.v5",
		AVD:             "tarsier_fly",
		APKHints:        []string{"fly", "go.v5"},
		WindowOffset:    0x12c00000,
		WindowSize:      800 * mib,
		APIBase:         "https://active.dji.com",
		EnvPrefix:       "DJI",
		ProbeMemberInfo: true,
		ProbeDevices:    true,
		Fields: []scan.Field{
			tokenField(),
			{
				Name: "user_id",
				Signatures: []scan.Signature{
					{Marker: []byte("\"user_id\""), SkipMax: 8},
					{Marker: []byte("\"uid\""), SkipMax: 8},
					{Marker: []byte("\"member_uid\""), SkipMax: 8},
				},
				Allowed: scan.Digits,
				MinLen:  10,
				MaxLen:  19,
			},
			emailField(),
			{
				Name: "user_name",
				Signatures: []scan.Signature{
					{Marker: []byte("\"nickname\""), SkipMax: 8},
					{Prefix: []byte("djiuser_")},
				},
				Allowed: scan.Printable,
				MinLen:  2,
				MaxLen:  30,
			},
			{
				Name: "drone_sn",
				Signatures: []scan.Signature{
					{Marker: []byte("\"sn\""), SkipMax: 8},
					{Marker: []byte("\"serial_number\""), SkipMax: 8},
					{Marker: []byte("\"device_sn\""), SkipMax: 8},
				},
				Allowed: scan.UpperAlnum,
				MinLen:  10,
				MaxLen:  20,
			},
			{
				Name: "drone_model",
				Signatures: []scan.Signature{
					{Marker: []byte("\"model_name\""), SkipMax: 8},
					{Marker: []byte("\"product_type\""), SkipMax: 8},
					{Prefix: []byte("DJI ")},
				},
				Allowed: scan.Printable,
				MinLen:  4,
				MaxLen:  40,
			},
			{
				Name:       "account_token",
				Signatures: []scan.Signature{{Marker: []byte("\"account_token\""), SkipMax: 8}},
				Allowed:    scan.Token,
				MinLen:     20,
				MaxLen:     512,
			},
			{
				Name:       "openapi_token",
				Signatures: []scan.Signature{{Marker: []byte("\"openapi_token\""), SkipMax: 8}},
				Allowed:    scan.Token,
				MinLen:     20,
				MaxLen:     512,
			},
			{
				Name:       "api_urls",
				Signatures: []scan.Signature{{Prefix: []byte("https://")}},
				Allowed:    scan.URL,
				MinLen:     16,
				MaxLen:     160,
				List:       true,
				MaxMatches: 20,
				Valid: func(s string) bool {
					return strings.Contains(s, ".djigate.com") ||
						strings.Contains(s, ".djiservice.com") ||
						strings.Contains(s, ".djicdn.com") ||
						strings.Contains(s, ".dji.com")
				},
			},
			deviceUUIDField("device_uuid", "\"uuid\""),
		},
	}
}

// looksLikeEmail is a cheap local@domain.tld shape check; the charset has
// already bounded the run.
func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at < 1 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	if dot < 1 || len(domain)-dot-1 < 2 {
		return false
	}
	return !strings.Contains(domain, "@")
}
