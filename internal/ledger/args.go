package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Args renders contract arguments through one canonical encoding so every
// service produces byte-identical arguments for the same logical values.
//
//   - string: verbatim
//   - integers: base-10
//   - floats: shortest decimal that round-trips
//   - bool: "true" / "false"
//   - everything else: compact JSON, no HTML escaping, no trailing newline
func Args(values ...any) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, v := range values {
		s, err := Arg(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Arg renders a single argument. See Args.
func Arg(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case bool:
		return strconv.FormatBool(x), nil
	case nil:
		return "", fmt.Errorf("nil argument")
	default:
		return CanonicalJSON(x)
	}
}

// CanonicalJSON encodes v as compact JSON. Struct fields keep declaration
// order and map keys are sorted by encoding/json.
func CanonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Decode unmarshals a contract result into T, classifying failures as
// MalformedResponse.
func Decode[T any](operation string, payload []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, NewError(CategoryMalformedResponse, operation, "decode result", err)
	}
	return &out, nil
}

// DecodeList unmarshals a sequence result. Empty or "null" payloads yield an
// empty, non-nil slice.
func DecodeList[T any](operation string, payload []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, NewError(CategoryMalformedResponse, operation, "decode result list", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
