package secret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NoVersionKey is the index key used for secrets stored without a version.
// No legal version is empty, so it never collides with a pinned version.
const NoVersionKey = ""

// List indexes secrets by name and then by version. Versions of a name are
// kept in insertion order: lookups without a version return the first entry
// whose validity window contains the query date.
//
// A List is not safe for concurrent use; store mediums guard it themselves.
type List struct {
	names   []string
	entries map[string]*versionSet
}

type versionSet struct {
	order []string
	byKey map[string]Secret
}

// NewList creates a list holding secrets, in order. Later entries with the
// same name and version overwrite earlier ones.
func NewList(secrets ...Secret) *List {
	l := &List{entries: make(map[string]*versionSet)}
	for _, s := range secrets {
		l.Set(s)
	}
	return l
}

// Set stores s under (name, version), overwriting any previous entry while
// keeping its original position.
func (l *List) Set(s Secret) {
	if l.entries == nil {
		l.entries = make(map[string]*versionSet)
	}
	vs, ok := l.entries[s.Name]
	if !ok {
		vs = &versionSet{byKey: make(map[string]Secret)}
		l.entries[s.Name] = vs
		l.names = append(l.names, s.Name)
	}
	key := versionKey(s.Version)
	if _, exists := vs.byKey[key]; !exists {
		vs.order = append(vs.order, key)
	}
	vs.byKey[key] = s
}

// Get resolves a secret by name. With a version the exact entry is returned
// if its window contains date; without one the first entry active at date
// wins. A zero date matches any window.
func (l *List) Get(name, version string, date time.Time) (Secret, bool) {
	if l == nil {
		return Secret{}, false
	}
	vs, ok := l.entries[name]
	if !ok {
		return Secret{}, false
	}

	if version != "" {
		s, ok := vs.byKey[versionKey(version)]
		if !ok || !s.IsActive(date) {
			return Secret{}, false
		}
		return s, true
	}

	for _, key := range vs.order {
		if s := vs.byKey[key]; s.IsActive(date) {
			return s, true
		}
	}
	return Secret{}, false
}

// Versions returns every version stored for name, keyed by version.
func (l *List) Versions(name string) (map[string]Secret, bool) {
	if l == nil {
		return nil, false
	}
	vs, ok := l.entries[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]Secret, len(vs.byKey))
	for k, s := range vs.byKey {
		out[k] = s
	}
	return out, true
}

// Select returns the entries matching a stub: the exact version when one is
// pinned, otherwise every version of the name.
func (l *List) Select(stub Secret) []Secret {
	if l == nil {
		return nil
	}
	vs, ok := l.entries[stub.Name]
	if !ok {
		return nil
	}
	if stub.Version != "" {
		if s, ok := vs.byKey[versionKey(stub.Version)]; ok {
			return []Secret{s}
		}
		return nil
	}
	out := make([]Secret, 0, len(vs.order))
	for _, key := range vs.order {
		out = append(out, vs.byKey[key])
	}
	return out
}

// Names returns secret names in insertion order.
func (l *List) Names() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.names...)
}

// All returns every secret, grouped by name, in insertion order.
func (l *List) All() []Secret {
	if l == nil {
		return nil
	}
	var out []Secret
	for _, name := range l.names {
		vs := l.entries[name]
		for _, key := range vs.order {
			out = append(out, vs.byKey[key])
		}
	}
	return out
}

// Merge copies every secret of other into l.
func (l *List) Merge(other *List) {
	for _, s := range other.All() {
		l.Set(s)
	}
}

// Count returns the number of stored secrets across all names and versions.
func (l *List) Count() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, vs := range l.entries {
		n += len(vs.byKey)
	}
	return n
}

// Len returns the number of distinct names.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}

func versionKey(version string) string {
	if version == "" {
		return NoVersionKey
	}
	return version
}

// MarshalJSON writes the document as name -> (version -> Secret), keeping
// insertion order so that a reload resolves ties the same way.
func (l *List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range l.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		vs := l.entries[name]
		for j, key := range vs.order {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, key); err != nil {
				return nil, err
			}
			data, err := json.Marshal(vs.byKey[key])
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte(':')
	return nil
}

// UnmarshalJSON reads a name -> (version -> Secret) document in document order.
// The name and version keys are authoritative over the embedded fields.
func (l *List) UnmarshalJSON(data []byte) error {
	*l = List{entries: make(map[string]*versionSet)}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			version, err := readKey(dec)
			if err != nil {
				return err
			}
			var s Secret
			if err := dec.Decode(&s); err != nil {
				return fmt.Errorf("secret %q: %w", name, err)
			}
			s.Name = name
			s.Version = version
			l.Set(s)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q in secret list, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key in secret list, got %v", tok)
	}
	return key, nil
}
