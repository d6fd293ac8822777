// Package normalize maps loosely shaped server records onto canonical
// field sets described by declarative alias tables.
//
// A Table lists every canonical field together with the raw keys that may
// carry its value, in priority order. Apply never fails: a field whose
// aliases are all absent, null or unconvertible falls back to its default.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Kind selects how a raw value is coerced into a canonical value.
type Kind int

const (
	String Kind = iota
	StringList
	Bool
	Float
	Time
	Enum
)

// Field declares one canonical field and the raw keys it may be read from.
type Field struct {
	// Name is the canonical key. It is always tried before Aliases.
	Name string

	// Aliases are alternative raw keys in priority order. Dot paths
	// ("user.name") reach into nested objects.
	Aliases []string

	Kind Kind

	// Default replaces the kind's zero value when no alias matches.
	// Time fields default to the clock passed to Apply.
	Default any

	// Optional fields are left out of the result instead of defaulted.
	Optional bool

	// Allowed lists the accepted values of an Enum field.
	Allowed []string
}

// Table is an ordered set of canonical fields.
type Table []Field

// Result is the outcome of applying a Table to one raw record.
type Result struct {
	// Canonical holds one entry per non-optional field, plus every
	// optional field that was found.
	Canonical map[string]any

	// Extra holds raw keys that are neither canonical names nor aliases.
	// Alias values are folded into Canonical and never echoed back.
	Extra map[string]any

	// Defaulted records the fields that fell back to their default.
	Defaulted map[string]bool
}

// Names returns the canonical field names in table order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for _, f := range t {
		names = append(names, f.Name)
	}
	return names
}

// Has reports whether name is a canonical field of the table.
func (t Table) Has(name string) bool {
	for _, f := range t {
		if f.Name == name {
			return true
		}
	}
	return false
}

// isAlias reports whether key is a top-level alias of any field. Dot-path
// aliases do not count: their parent object may carry other data.
func (t Table) isAlias(key string) bool {
	for _, f := range t {
		for _, a := range f.Aliases {
			if a == key {
				return true
			}
		}
	}
	return false
}

// Apply normalizes raw against the table. The canonical value of each field
// comes from the first candidate key whose value is non-null and coercible
// to the field's kind. now is used for defaulted Time fields.
func (t Table) Apply(raw map[string]any, now time.Time) Result {
	res := Result{
		Canonical: make(map[string]any, len(t)),
		Extra:     make(map[string]any),
		Defaulted: make(map[string]bool),
	}

	for _, f := range t {
		if v, ok := f.resolve(raw); ok {
			res.Canonical[f.Name] = v
			continue
		}
		if f.Optional {
			continue
		}
		res.Canonical[f.Name] = f.defaultValue(now)
		res.Defaulted[f.Name] = true
	}

	for k, v := range raw {
		if t.Has(k) || t.isAlias(k) {
			continue
		}
		res.Extra[k] = v
	}

	return res
}

// resolve walks the candidate keys and returns the first coercible value.
func (f Field) resolve(raw map[string]any) (any, bool) {
	candidates := append([]string{f.Name}, f.Aliases...)
	for _, key := range candidates {
		v, ok := Lookup(raw, key)
		if !ok || v == nil {
			continue
		}
		if cv, ok := f.coerce(v); ok {
			return cv, true
		}
	}
	return nil, false
}

func (f Field) coerce(v any) (any, bool) {
	switch f.Kind {
	case String:
		return boxed[string](toString(v))
	case StringList:
		return boxed[[]string](toStringList(v))
	case Bool:
		return boxed[bool](toBool(v))
	case Float:
		return boxed[float64](toFloat(v))
	case Time:
		return boxed[time.Time](toTime(v))
	case Enum:
		s, ok := toString(v)
		if !ok {
			return nil, false
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, a := range f.Allowed {
			if s == a {
				return s, true
			}
		}
		return nil, false
	}
	return nil, false
}

func (f Field) defaultValue(now time.Time) any {
	if f.Kind == Time {
		return now.UTC()
	}
	if f.Default != nil {
		return f.Default
	}
	switch f.Kind {
	case StringList:
		return []string{}
	case Bool:
		return false
	case Float:
		return float64(0)
	default:
		return ""
	}
}

// Lookup reads key from raw. A key containing dots is first tried
// literally, then as a path through nested objects.
func Lookup(raw map[string]any, key string) (any, bool) {
	if v, ok := raw[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur any = raw
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// WasDefaulted reports whether the named field fell back to its default.
func (r Result) WasDefaulted(name string) bool {
	return r.Defaulted[name]
}

// Decode copies the canonical values into out, which must be a pointer to
// a struct tagged with `mapstructure` keys.
func (r Result) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(r.Canonical); err != nil {
		return fmt.Errorf("decoding canonical record: %w", err)
	}
	return nil
}
