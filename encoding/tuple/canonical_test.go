package tuple_test

import (
	"testing"

	"github.com/zkiotchain/zkiot/encoding/tuple"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestCanonicalJSON_SortsAndCompacts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"key order", `{"b":2,"a":1}`, `{"a":1,"b":2}`},
		{"whitespace", "{\n  \"v\" : 1\n}", `{"v":1}`},
		{"nested", `{"z":{"y":2,"x":[1, 2]},"a":null}`, `{"a":null,"z":{"x":[1,2],"y":2}}`},
		{"array stays ordered", `[3,1,2]`, `[3,1,2]`},
		{"number literal kept", `{"f":1.50,"i":10}`, `{"f":1.50,"i":10}`},
		{"bools", `{"t":true,"f":false}`, `{"f":false,"t":true}`},
		{"scalar string", `"hi"`, `"hi"`},
		{"no html escaping", `{"cmp":"a<b&c>d"}`, `{"cmp":"a<b&c>d"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tuple.CanonicalJSON([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalJSON_EquivalentDocsAgree(t *testing.T) {
	a, err := tuple.CanonicalJSON([]byte(`{ "temp": 21.5, "unit": "C" }`))
	require.NoError(t, err)
	b, err := tuple.CanonicalJSON([]byte(`{"unit":"C","temp":21.5}`))
	require.NoError(t, err)
	assert.DeepEqual(t, a, b)
}

func TestCanonicalJSON_RejectsInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":}`, `1 2`, `{"a":1} trailing`} {
		_, err := tuple.CanonicalJSON([]byte(in))
		assert.ErrorContains(t, "not a single valid JSON value", err, "input %q", in)
	}
}

func TestCanonicalJSON_Idempotent(t *testing.T) {
	first, err := tuple.CanonicalJSON([]byte(`{"b":[{"d":4,"c":3}],"a":"x"}`))
	require.NoError(t, err)
	second, err := tuple.CanonicalJSON(first)
	require.NoError(t, err)
	assert.DeepEqual(t, first, second)
}
