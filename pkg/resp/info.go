package resp

import "strings"

// InfoDict provides convenient access to the key/value data returned by
// the INFO command. Each line is a `key:value` pair; lines starting with
// a hash are section headers and are skipped.
type InfoDict struct {
	m map[string]string
}

func NewInfoDict(kvpairs string) *InfoDict {
	m := make(map[string]string)
	for _, line := range strings.Split(kvpairs, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		m[k] = v
	}
	return &InfoDict{m: m}
}

// ParseInfoDict decodes an INFO reply.
func ParseInfoDict(v Value) (*InfoDict, error) {
	s, err := AsString(v)
	if err != nil {
		return nil, err
	}
	return NewInfoDict(s), nil
}

func (d *InfoDict) Get(key string) (string, bool) {
	v, ok := d.m[key]
	return v, ok
}

func (d *InfoDict) ContainsKey(key string) bool {
	_, ok := d.m[key]
	return ok
}

func (d *InfoDict) Len() int {
	return len(d.m)
}
