// Package hasher computes content fingerprints for module payloads.
package hasher

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical re-encodes raw JSON with sorted object keys, no insignificant
// whitespace and numbers in one form, so a value fingerprints the same after
// any parse and re-serialize.
func Canonical(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode json: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(v)); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
	case json.Number:
		return json.Number(canonicalNumber(string(x)))
	}

	return v
}

// maxExactInt is the largest magnitude below which every integer is exact in a float64.
const maxExactInt = 1 << 53

// canonicalNumber writes integral values as integers and everything else in
// shortest float64 form. Integers too large for a float64 keep their text.
func canonicalNumber(s string) string {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}

	if f == math.Trunc(f) && math.Abs(f) < maxExactInt {
		return strconv.FormatInt(int64(f), 10)
	}
	if !strings.ContainsAny(s, ".eE") {
		return s
	}

	return strconv.FormatFloat(f, 'g', -1, 64)
}

func FingerprintJSON(raw []byte) (string, error) {
	canon, err := Canonical(raw)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(canon)
	return hex.EncodeToString(sum[:]), nil
}

func Fingerprint(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}

	return FingerprintJSON(raw)
}
