package dimensions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantName string
		wantDims map[string]string
	}{
		{"plain", "app.requests", "app.requests", map[string]string{}},
		{"two pairs", "app.requests[k1=v1,k2=v2]", "app.requests", map[string]string{"k1": "v1", "k2": "v2"}},
		{"no closing bracket", "app.requests[k1=v1", "app.requests[k1=v1", map[string]string{}},
		{"bracket not at end", "app[k=v].count", "app[k=v].count", map[string]string{}},
		{"malformed pair skipped", "m[k1=v1,broken,k2=v2]", "m", map[string]string{"k1": "v1", "k2": "v2"}},
		{"empty key kept", "m[=v,k=x]", "m", map[string]string{"": "v", "k": "x"}},
		{"value keeps extra equals", "m[k=a=b]", "m", map[string]string{"k": "a=b"}},
		{"duplicate keys last wins", "m[k=1,k=2]", "m", map[string]string{"k": "2"}},
		{"empty body", "m[]", "m", map[string]string{}},
		{"first bracket splits", "m[a=1][b=2]", "m", map[string]string{"a": "1][b=2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dims := map[string]string{}
			got := ParseName(dims, tc.raw)
			require.Equal(t, tc.wantName, got)
			require.Equal(t, tc.wantDims, dims)
		})
	}
}

func TestParse_Preseeded(t *testing.T) {
	dims := map[string]string{"env": "prod"}
	name := ParseInto(dims, "plain.metric", nil)
	require.Equal(t, "plain.metric", name)
	require.Equal(t, map[string]string{"env": "prod"}, dims)

	name = ParseInto(dims, "m[env=dev,host=a]", nil)
	require.Equal(t, "m", name)
	require.Equal(t, map[string]string{"env": "dev", "host": "a"}, dims)
}

func TestParseTag(t *testing.T) {
	cases := []struct {
		tag, key, value string
	}{
		{"host=web1", "host", "web1"},
		{`a\=b=value`, "a=b", "value"},
		{"novalue", "novalue", ""},
		{`only\=escaped`, "only=escaped", ""},
		{"k=v=w", "k", "v=w"},
		{`k=v\\w`, "k", `v\w`},
		{`k=v\=w`, "k", "v=w"},
		{"=v", "", "v"},
		{"k=", "k", ""},
		{`trailing\`, `trailing\`, ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.tag, func(t *testing.T) {
			k, v := ParseTag(tc.tag)
			require.Equal(t, tc.key, k)
			require.Equal(t, tc.value, v)
		})
	}
}

func TestParse_TagsTakePrecedenceOverBrackets(t *testing.T) {
	name, dims := Parse("m[a=1]", []string{"b=2", "flag"})
	require.Equal(t, "m[a=1]", name)
	require.Equal(t, map[string]string{"b": "2", "flag": ""}, dims)

	name, dims = Parse("m[a=1]", nil)
	require.Equal(t, "m", name)
	require.Equal(t, map[string]string{"a": "1"}, dims)
}

func TestParseList(t *testing.T) {
	require.Empty(t, ParseList(""))
	require.Equal(t, map[string]string{"env": "prod", "dc": "eu"}, ParseList("env=prod,dc=eu"))
	require.Equal(t, map[string]string{"note": "a,b", "k=x": "y"}, ParseList(`note=a\,b,k\=x=y`))
	require.Equal(t, map[string]string{"solo": ""}, ParseList("solo,"))
}
