package tuple

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// ErrNotJSON is returned when a submitted payload cannot be parsed as a
// single JSON value.
var ErrNotJSON = errors.New("payload is not a single valid JSON value")

// CanonicalJSON rewrites a JSON document into its canonical form: object
// keys sorted lexicographically, no insignificant whitespace, string
// escaping per encoding/json without HTML escaping, number literals kept
// exactly as submitted. Two payloads hash identically iff their canonical
// forms are byte-identical.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(ErrNotJSON, err.Error())
	}
	// A second decode must hit EOF, otherwise the document carries
	// trailing data.
	if err := dec.Decode(new(interface{})); err != io.EOF {
		return nil, ErrNotJSON
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeJSONString(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.Errorf("unsupported JSON value of type %T", v)
	}
	return nil
}

// writeJSONString delegates escaping to encoding/json with HTML escaping
// disabled so that the canonical form does not depend on our own escape
// table.
func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline, drop it.
	buf.Truncate(buf.Len() - 1)
	return nil
}
