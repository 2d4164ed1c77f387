package hasher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	a, err := FingerprintJSON([]byte(`{"b":1,"a":[1,2,{"y":true,"x":null}]}`))
	require.NoError(t, err)

	b, err := FingerprintJSON([]byte(" {\n  \"a\": [1, 2, {\"x\": null, \"y\": true}],\n  \"b\": 1\n}"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprintSensitive(t *testing.T) {
	cases := [][2]string{
		{`[{"done":false}]`, `[{"done":true}]`},
		{`[1,2]`, `[2,1]`},
		{`{"n":1}`, `{"n":1.5}`},
		{`[]`, `{}`},
		{`"a"`, `"b"`},
	}

	for _, c := range cases {
		x, err := FingerprintJSON([]byte(c[0]))
		require.NoError(t, err)
		y, err := FingerprintJSON([]byte(c[1]))
		require.NoError(t, err)
		assert.NotEqual(t, x, y, "%s vs %s", c[0], c[1])
	}
}

func TestFingerprintValueMatchesRaw(t *testing.T) {
	type task struct {
		Title string `json:"title"`
		Done  bool   `json:"done"`
	}

	fromValue, err := Fingerprint([]task{{Title: "write <tests>", Done: true}})
	require.NoError(t, err)

	fromRaw, err := FingerprintJSON([]byte(`[{"done":true,"title":"write <tests>"}]`))
	require.NoError(t, err)

	assert.Equal(t, fromRaw, fromValue)
}

func TestCanonicalRejectsInvalid(t *testing.T) {
	_, err := Canonical([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = Canonical([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestCanonicalLargeNumbers(t *testing.T) {
	out, err := Canonical([]byte(`{"id": 12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":12345678901234567890}`, string(out))
}

func TestFingerprintSurvivesRoundTrip(t *testing.T) {
	for _, raw := range []string{
		`{"a":1.0}`,
		`[1e2]`,
		`[1.50]`,
		`{"n":-0.0,"f":0.000001,"big":1e21,"neg":-2.50E1}`,
	} {
		direct, err := FingerprintJSON([]byte(raw))
		require.NoError(t, err)

		var v any
		require.NoError(t, json.Unmarshal([]byte(raw), &v))
		roundTrip, err := Fingerprint(v)
		require.NoError(t, err)

		assert.Equal(t, direct, roundTrip, raw)
	}
}

func TestCanonicalNumbers(t *testing.T) {
	cases := map[string]string{
		`[1.0]`:                  `[1]`,
		`[1e2]`:                  `[100]`,
		`[1.50]`:                 `[1.5]`,
		`[-0]`:                   `[0]`,
		`[0.1]`:                  `[0.1]`,
		`[1e21]`:                 `[1e+21]`,
		`[9007199254740993]`:     `[9007199254740993]`,
		`[12345678901234567890]`: `[12345678901234567890]`,
	}

	for in, want := range cases {
		out, err := Canonical([]byte(in))
		require.NoError(t, err)
		assert.Equal(t, want, string(out), in)
	}
}
