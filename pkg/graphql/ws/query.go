package ws

import (
	"encoding"
	"fmt"
	"unicode/utf8"
)

// QueryText resolves the operation text from a string, UTF-8 bytes, or a
// query builder that can render itself through fmt.Stringer or
// encoding.TextMarshaler.
func QueryText(query interface{}) (string, error) {
	switch q := query.(type) {
	case string:
		return q, nil
	case []byte:
		if !utf8.Valid(q) {
			return "", fmt.Errorf("query isn't valid utf-8")
		}
		return string(q), nil
	case encoding.TextMarshaler:
		text, err := q.MarshalText()
		if err != nil {
			return "", fmt.Errorf("rendering query: %w", err)
		}
		return string(text), nil
	case fmt.Stringer:
		return q.String(), nil
	case nil:
		return "", fmt.Errorf("query is nil")
	default:
		return "", fmt.Errorf("can't use %T as a query", query)
	}
}
