// Package scan locates credential fields inside a raw memory window.
//
// A window captured from an app's heap is a mix of UTF-8 text, UTF-16
// fragments and plain garbage. The scanner never tries to decode the whole
// buffer; each field is found by locating a literal byte signature and
// capturing the run of allowed bytes that follows it. Runs that fail the
// field's validity check are skipped and the search continues, so a single
// bad candidate never shadows the real value further down the buffer.
package scan

import (
	"bytes"
	"errors"
)

// ErrTokenNotFound is returned when the primary token field is absent from
// the scanned window. Nothing downstream is possible without it.
var ErrTokenNotFound = errors.New("primary token not found in memory window")

// Charset reports whether a byte may appear in a captured value.
type Charset func(b byte) bool

// Signature describes one way to locate a field in the buffer.
//
// Exactly one of Prefix or Marker is set. A Prefix is part of the value
// itself (the capture includes it). A Marker is a nearby key - a stored
// preference name or a JSON key - and the capture starts after the marker
// and any separator bytes (quotes, colons, whitespace).
type Signature struct {
	Prefix []byte
	Marker []byte

	// SkipMax bounds how many separator bytes may sit between a marker
	// and the value. Zero means the value must follow immediately.
	SkipMax int
}

// Field is one entry of a profile's signature table.
type Field struct {
	Name       string
	Signatures []Signature
	Allowed    Charset
	MinLen     int
	MaxLen     int

	// Valid is an optional extra shape check on a captured candidate.
	// Candidates failing it are skipped in favor of the next match.
	Valid func(string) bool

	// List fields collect every distinct valid candidate up to MaxMatches
	// instead of stopping at the first one.
	List       bool
	MaxMatches int
}

// Record maps field names to extracted values. Scalar fields live in
// Values, list fields in Lists. Absent fields are simply missing; absence
// is never an error at this layer.
type Record struct {
	Values map[string]string
	Lists  map[string][]string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{
		Values: make(map[string]string),
		Lists:  make(map[string][]string),
	}
}

// Get returns the scalar value for a field, or "" when absent.
func (r *Record) Get(name string) string {
	return r.Values[name]
}

// Merge copies fields from other into r, keeping r's value on conflict.
// Used when an API probe backfills fields the memory scan missed.
func (r *Record) Merge(other *Record) {
	for k, v := range other.Values {
		if _, ok := r.Values[k]; !ok {
			r.Values[k] = v
		}
	}
	for k, vs := range other.Lists {
		if _, ok := r.Lists[k]; !ok {
			r.Lists[k] = vs
		}
	}
}

// separator bytes tolerated between a key marker and its value:
// JSON punctuation, quotes and whitespace.
func isSeparator(b byte) bool {
	switch b {
	case '"', '\'', ':', '=', ',', ' ', '\t', '\r', '\n', 0:
		return true
	}
	return false
}

// Extract scans buf once per field signature and returns a record with
// every field whose pattern matched a valid candidate. It never fails:
// a window with no matches yields an empty record.
func Extract(buf []byte, fields []Field) *Record {
	rec := NewRecord()
	for i := range fields {
		extractField(buf, &fields[i], rec)
	}
	return rec
}

func extractField(buf []byte, f *Field, rec *Record) {
	maxMatches := 1
	if f.List {
		maxMatches = f.MaxMatches
		if maxMatches <= 0 {
			maxMatches = 16
		}
	}

	var found []string
	seen := make(map[string]bool)

	for _, sig := range f.Signatures {
		pos := 0
		for len(found) < maxMatches {
			val, next := captureAfter(buf, pos, sig, f)
			if next < 0 {
				break
			}
			pos = next
			if val == "" {
				continue
			}
			if !seen[val] {
				seen[val] = true
				found = append(found, val)
			}
		}
		if !f.List && len(found) > 0 {
			break
		}
	}

	if len(found) == 0 {
		return
	}
	if f.List {
		rec.Lists[f.Name] = found
	} else {
		rec.Values[f.Name] = found[0]
	}
}

// captureAfter finds the next occurrence of sig at or after pos and tries
// to capture a valid value there. It returns the captured value ("" when
// the candidate failed validation) and the position to resume scanning
// from, or -1 when the signature no longer occurs.
func captureAfter(buf []byte, pos int, sig Signature, f *Field) (string, int) {
	needle := sig.Prefix
	if len(needle) == 0 {
		needle = sig.Marker
	}
	// An empty needle matches at every position without ever advancing;
	// treat it as matching nowhere.
	if len(needle) == 0 {
		return "", -1
	}
	idx := bytes.Index(buf[pos:], needle)
	if idx < 0 {
		return "", -1
	}
	at := pos + idx
	resume := at + len(needle)

	start := at
	if sig.Marker != nil {
		// Value begins after the marker and tolerated separators.
		start = at + len(needle)
		skipped := 0
		for start < len(buf) && skipped < sig.SkipMax && isSeparator(buf[start]) {
			start++
			skipped++
		}
	}

	end := start
	if sig.Prefix != nil {
		// The prefix bytes are part of the value; capture continues
		// right after them.
		end = at + len(needle)
	}
	limit := start + f.MaxLen
	if limit > len(buf) {
		limit = len(buf)
	}
	for end < limit && f.Allowed(buf[end]) {
		end++
	}

	val := string(buf[start:end])
	if len(val) < f.MinLen || len(val) > f.MaxLen {
		return "", resume
	}
	if f.Valid != nil && !f.Valid(val) {
		return "", resume
	}
	return val, resume
}
