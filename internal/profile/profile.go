// Package profile describes target applications as data: process name,
// memory window geometry, the field signature table and the cloud API
// endpoint. The extraction pipeline itself is app-agnostic; everything
// that differs between the supported apps lives here.
package profile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tarsier-dev/tarsier/internal/scan"
)

// PrimaryField is the one field a run cannot succeed without.
const PrimaryField = "user_token"

const mib = 1 << 20

// Profile holds everything the pipeline needs to know about one target app.
type Profile struct {
	Name        string
	Description string

	// Android side.
	Package  string
	AVD      string
	APKHints []string // substrings that identify the right APK on disk

	// Memory window geometry. The offset skips past the mappings below
	// the managed heap; the size is sized to the app's typical footprint.
	WindowOffset uint64
	WindowSize   uint64

	// Cloud side.
	APIBase string

	// Output.
	EnvPrefix string

	// Extra API probes performed after token validation.
	ProbeMemberInfo bool
	ProbeDevices    bool
	ProbeHomes      bool

	Fields []scan.Field
}

// registry of built-in profiles, keyed by name.
var builtin = map[string]*Profile{}

func register(p *Profile) {
	builtin[p.Name] = p
}

// Get returns a built-in profile by name.
func Get(name string) (*Profile, error) {
	p, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (try one of %v)", name, Names())
	}
	return p, nil
}

// Names lists the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// yamlProfile is the on-disk form of a custom profile. Validity predicates
// are not expressible in YAML; custom fields rely on charset and length
// bounds only.
type yamlProfile struct {
	Name          string      `yaml:"name"`
	Description   string      `yaml:"description"`
	Package       string      `yaml:"package"`
	AVD           string      `yaml:"avd"`
	APKHints      []string    `yaml:"apk_hints"`
	WindowOffset  uint64      `yaml:"window_offset"`
	WindowSizeMiB uint64      `yaml:"window_size_mib"`
	APIBase       string      `yaml:"api_base"`
	EnvPrefix     string      `yaml:"env_prefix"`
	Fields        []yamlField `yaml:"fields"`
}

type yamlField struct {
	Name       string   `yaml:"name"`
	Prefixes   []string `yaml:"prefixes"`
	Markers    []string `yaml:"markers"`
	Charset    string   `yaml:"charset"`
	MinLen     int      `yaml:"min_len"`
	MaxLen     int      `yaml:"max_len"`
	List       bool     `yaml:"list"`
	MaxMatches int      `yaml:"max_matches"`
}

// LoadFile reads a custom profile from a YAML file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var yp yamlProfile
	if err := yaml.Unmarshal(data, &yp); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return yp.toProfile(path)
}

func (yp *yamlProfile) toProfile(path string) (*Profile, error) {
	if yp.Name == "" {
		return nil, fmt.Errorf("profile %s: name is required", path)
	}
	if yp.Package == "" {
		return nil, fmt.Errorf("profile %s: package is required", path)
	}
	if yp.WindowSizeMiB == 0 {
		return nil, fmt.Errorf("profile %s: window_size_mib is required", path)
	}

	p := &Profile{
		Name:         yp.Name,
		Description:  yp.Description,
		Package:      yp.Package,
		AVD:          yp.AVD,
		APKHints:     yp.APKHints,
		WindowOffset: yp.WindowOffset,
		WindowSize:   yp.WindowSizeMiB * mib,
		APIBase:      yp.APIBase,
		EnvPrefix:    yp.EnvPrefix,
	}
	if p.AVD == "" {
		p.AVD = "tarsier_" + p.Name
	}
	if p.EnvPrefix == "" {
		p.EnvPrefix = "APP"
	}

	hasPrimary := false
	for _, yf := range yp.Fields {
		cs := scan.CharsetByName(yf.Charset)
		if cs == nil {
			return nil, fmt.Errorf("profile %s: field %s: unknown charset %q", path, yf.Name, yf.Charset)
		}
		if len(yf.Prefixes) == 0 && len(yf.Markers) == 0 {
			return nil, fmt.Errorf("profile %s: field %s: needs a prefix or a marker", path, yf.Name)
		}
		f := scan.Field{
			Name:       yf.Name,
			Allowed:    cs,
			MinLen:     yf.MinLen,
			MaxLen:     yf.MaxLen,
			List:       yf.List,
			MaxMatches: yf.MaxMatches,
		}
		if f.MaxLen == 0 {
			f.MaxLen = 256
		}
		for _, pre := range yf.Prefixes {
			if pre == "" {
				return nil, fmt.Errorf("profile %s: field %s: empty prefix", path, yf.Name)
			}
			f.Signatures = append(f.Signatures, scan.Signature{Prefix: []byte(pre)})
		}
		for _, m := range yf.Markers {
			if m == "" {
				return nil, fmt.Errorf("profile %s: field %s: empty marker", path, yf.Name)
			}
			f.Signatures = append(f.Signatures, scan.Signature{Marker: []byte(m), SkipMax: 8})
		}
		if yf.Name == PrimaryField {
			hasPrimary = true
		}
		p.Fields = append(p.Fields, f)
	}
	if !hasPrimary {
		return nil, fmt.Errorf("profile %s: no %q field defined", path, PrimaryField)
	}
	return p, nil
}
