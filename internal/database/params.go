package database

import (
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Param is a single binding destined for a request's query string.
type Param struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ParamsToMap returns the params as a key/value map. Later keys win.
func ParamsToMap(params []Param) map[string]any {
	out := make(map[string]any, len(params))
	for _, p := range params {
		out[p.Key] = p.Value
	}
	return out
}

// ParamsToValues serializes params into URL query values. Slice values are
// sent as repeated keys.
func ParamsToValues(params []Param) url.Values {
	values := url.Values{}
	for _, p := range params {
		switch v := p.Value.(type) {
		case []any:
			for _, item := range v {
				values.Add(p.Key, BindingString(item))
			}
		case []string:
			for _, item := range v {
				values.Add(p.Key, item)
			}
		default:
			values.Add(p.Key, BindingString(v))
		}
	}
	return values
}

// BindingString renders a binding value the way it is sent over the wire.
func BindingString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	case bool:
		if t {
			return "1"
		}
		return "0"
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// MakeReplacements substitutes every ":key" token found in the endpoint with the
// matching binding's value and drops that binding from the returned params.
// The token search is case-insensitive and a token only matches on a word
// boundary, so ":Student" never eats into ":StudentId".
func MakeReplacements(endpoint string, params []Param) (string, []Param) {
	if len(params) == 0 || !strings.Contains(endpoint, ":") {
		return endpoint, params
	}

	remaining := make([]Param, 0, len(params))
	for _, p := range params {
		replaced, ok := replaceToken(endpoint, ":"+p.Key, url.PathEscape(BindingString(p.Value)))
		if !ok {
			remaining = append(remaining, p)
			continue
		}
		endpoint = replaced
	}
	return endpoint, remaining
}

func replaceToken(endpoint, token, value string) (string, bool) {
	lower := strings.ToLower(endpoint)
	needle := strings.ToLower(token)

	var b strings.Builder
	found := false
	last := 0
	for i := 0; i <= len(lower)-len(needle); {
		idx := strings.Index(lower[i:], needle)
		if idx < 0 {
			break
		}
		start := i + idx
		end := start + len(needle)
		if end < len(lower) && isTokenChar(lower[end]) {
			i = end
			continue
		}
		b.WriteString(endpoint[last:start])
		b.WriteString(value)
		last = end
		i = end
		found = true
	}
	if !found {
		return endpoint, false
	}
	b.WriteString(endpoint[last:])
	return b.String(), true
}

func isTokenChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
