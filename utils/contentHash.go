package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const ContentHashPrefix = "sha256:"

// CanonicalJSON serializes v with sorted object keys, no insignificant whitespace and
// numbers normalized through decimal (so 1, 1.0 and 1e0 serialize identically).
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return fmt.Errorf("canonical number %q: %w", t.String(), err)
		}
		buf.WriteString(d.String())
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical json: unsupported type %T", v)
	}
	return nil
}

// Digest is the tamper-evidence hash stored as a submission's content_hash.
// It does not guard writes; auditors compare it against the stored form data.
func Digest(formData any) (string, error) {
	canonical, err := CanonicalJSON(formData)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return ContentHashPrefix + hex.EncodeToString(sum[:]), nil
}

// CanonicalEqual compares two values structurally after canonicalization.
// Values that cannot be serialized are treated as different.
func CanonicalEqual(a, b any) bool {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
