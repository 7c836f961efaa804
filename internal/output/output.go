// Package output persists an extraction run: a KEY=VALUE env file for
// downstream tooling and a human-readable report for the operator.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tarsier-dev/tarsier/internal/api"
	"github.com/tarsier-dev/tarsier/internal/profile"
	"github.com/tarsier-dev/tarsier/internal/scan"
)

// Artifacts is everything one run produced.
type Artifacts struct {
	Profile *profile.Profile
	Record  *scan.Record
	Broker  *api.BrokerCredentials // nil when validation failed
	APIBase string
	Locale  string
	When    time.Time
}

// EnvPath returns the env file location inside dir.
func (a *Artifacts) EnvPath(dir string) string {
	return filepath.Join(dir, ".env."+a.Profile.Name)
}

// ReportPath returns the report location inside dir.
func (a *Artifacts) ReportPath(dir string) string {
	return filepath.Join(dir, a.Profile.Name+"_credentials.txt")
}

// envKey maps a field name to its env file key.
func (a *Artifacts) envKey(field string) string {
	return a.Profile.EnvPrefix + "_" + strings.ToUpper(field)
}

// WriteEnv writes the KEY=VALUE file. Unpopulated fields are omitted.
// The file carries real secrets, so it is created operator-readable only.
func (a *Artifacts) WriteEnv(dir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# extracted %s by tarsier (profile: %s)\n",
		a.When.Format("2006-01-02 15:04:05"), a.Profile.Name)

	for _, f := range a.Profile.Fields {
		if v := a.Record.Get(f.Name); v != "" {
			fmt.Fprintf(&b, "%s=%s\n", a.envKey(f.Name), v)
		}
	}
	for _, name := range sortedListNames(a.Record) {
		fmt.Fprintf(&b, "%s=%s\n", a.envKey(name), strings.Join(a.Record.Lists[name], ","))
	}
	fmt.Fprintf(&b, "%s=%s\n", a.envKey("api_url"), a.APIBase)
	fmt.Fprintf(&b, "%s=%s\n", a.envKey("locale"), a.Locale)

	if a.Broker != nil {
		fmt.Fprintf(&b, "%s=%s\n", a.envKey("mqtt_domain"), a.Broker.Domain)
		fmt.Fprintf(&b, "%s=%d\n", a.envKey("mqtt_port"), a.Broker.Port)
		if a.Broker.UserUUID != "" {
			fmt.Fprintf(&b, "%s=%s\n", a.envKey("mqtt_user_uuid"), a.Broker.UserUUID)
		}
		if a.Broker.Password != "" {
			fmt.Fprintf(&b, "%s=%s\n", a.envKey("mqtt_password"), a.Broker.Password)
		}
	}

	return os.WriteFile(a.EnvPath(dir), []byte(b.String()), 0o600)
}

// WriteReport writes the human-readable summary file.
func (a *Artifacts) WriteReport(dir string) error {
	line := strings.Repeat("=", 72)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  credentials for profile %q\n  extracted %s\n%s\n\n",
		line, a.Profile.Name, a.When.Format("2006-01-02 15:04:05"), line)

	fmt.Fprintf(&b, "ACCOUNT\n-------\n")
	for _, f := range a.Profile.Fields {
		if f.List {
			continue
		}
		v := a.Record.Get(f.Name)
		if v == "" {
			v = "not found"
		}
		fmt.Fprintf(&b, "%-16s %s\n", f.Name+":", v)
	}

	for _, name := range sortedListNames(a.Record) {
		fmt.Fprintf(&b, "\n%s\n%s\n", strings.ToUpper(name), strings.Repeat("-", len(name)))
		for _, v := range a.Record.Lists[name] {
			fmt.Fprintf(&b, "  %s\n", v)
		}
	}

	fmt.Fprintf(&b, "\nBROKER\n------\n")
	if a.Broker != nil {
		fmt.Fprintf(&b, "%-16s %s\n", "domain:", a.Broker.Domain)
		fmt.Fprintf(&b, "%-16s %d\n", "port:", a.Broker.Port)
		fmt.Fprintf(&b, "%-16s %s\n", "user uuid:", a.Broker.UserUUID)
		fmt.Fprintf(&b, "%-16s dynamic, expires within hours; re-run to refresh\n", "password:")
	} else {
		fmt.Fprintf(&b, "not validated\n")
	}

	fmt.Fprintf(&b, "\nAPI\n---\n")
	fmt.Fprintf(&b, "%-16s %s\n", "endpoint:", a.APIBase+"/app/api/v1/users/auth/token?reason=mqtt")
	fmt.Fprintf(&b, "%-16s x-member-token: <%s>\n", "header:", a.envKey("user_token"))

	return os.WriteFile(a.ReportPath(dir), []byte(b.String()), 0o600)
}

func sortedListNames(rec *scan.Record) []string {
	names := make([]string, 0, len(rec.Lists))
	for name := range rec.Lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
