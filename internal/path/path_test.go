package path

import (
	"testing"

	"github.com/danmuck/pddbwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const defaultName = "{DEFAULT}"

func withDefault() Parser {
	return Parser{DefaultBasis: func() (string, bool) { return defaultName, true }}
}

func some(s string) *string { return &s }

func TestSplitVectors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		in    string
		basis *string
		dict  *string
	}{
		{"", nil, some("")},
		{"one", nil, some("one")},
		{"one:two", nil, some("one:two")},
		{"one:two:three", nil, some("one:two:three")},
		{":one", some("one"), nil},
		{":one:two", some("one"), some("two")},
		{":one:two:three", some("one"), some("two:three")},
		{":", nil, nil},
		{"::", some(defaultName), nil},
		{"::foo", some(defaultName), some("foo")},
		{"::foo:bar", some(defaultName), some("foo:bar")},
		{"::foo:bar:baz", some(defaultName), some("foo:bar:baz")},
		{": :", some(" "), nil},
		{" ", nil, some(" ")},
		{" : ", nil, some(" : ")},
		{":bar:lorem.ipsum:foo:baz", some("bar"), some("lorem.ipsum:foo:baz")},
	}
	p := withDefault()
	for _, tc := range cases {
		basis, dict, err := p.Split(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.basis, basis, "basis of %q", tc.in)
		require.Equal(t, tc.dict, dict, "dict of %q", tc.in)
	}
}

func TestSplitTrailingSeparatorIsIllegal(t *testing.T) {
	testlog.Start(t)
	p := withDefault()
	for _, in := range []string{
		"one:",
		"one:two:",
		":one:two:",
		":one:two:three:",
		"::foo:bar:baz:",
		"foo:bar::",
		"foo:bar:::",
		":::",
		"::::",
	} {
		_, _, err := p.Split(in)
		require.ErrorIs(t, err, ErrTrailingSeparator, "input %q", in)
	}
}

func TestSplitWithoutDefaultBasis(t *testing.T) {
	testlog.Start(t)
	basis, dict, err := Parser{}.Split("::foo")
	require.NoError(t, err)
	require.Nil(t, basis)
	require.Equal(t, some("foo"), dict)

	notSet := Parser{DefaultBasis: func() (string, bool) { return "", false }}
	basis, _, err = notSet.Split("::foo")
	require.NoError(t, err)
	require.Nil(t, basis)
}

func TestParseClassifiesRoots(t *testing.T) {
	testlog.Start(t)
	root, err := Parse(":")
	require.NoError(t, err)
	require.True(t, root.IsRoot())
	require.False(t, root.IsUnionRoot())

	union, err := Parse("")
	require.NoError(t, err)
	require.True(t, union.IsUnionRoot())
	require.False(t, union.IsRoot())
}

func TestDictKey(t *testing.T) {
	testlog.Start(t)
	p, err := Parse(":.System:wlan.networks:recent")
	require.NoError(t, err)
	dict, key, err := p.DictKey()
	require.NoError(t, err)
	require.Equal(t, "wlan.networks", dict)
	require.Equal(t, "recent", key)

	p, err = Parse(":bar:lorem.ipsum:foo:baz")
	require.NoError(t, err)
	dict, key, err = p.DictKey()
	require.NoError(t, err)
	require.Equal(t, "lorem.ipsum:foo", dict)
	require.Equal(t, "baz", key)

	p, err = Parse("wlan.networks")
	require.NoError(t, err)
	_, _, err = p.DictKey()
	require.ErrorIs(t, err, ErrNoKey)

	p, err = Parse(":only")
	require.NoError(t, err)
	_, _, err = p.DictKey()
	require.ErrorIs(t, err, ErrNoKey)
}

func TestStringIsCanonical(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{":", "", "one:two", ":one", ":one:two:three"} {
		p, err := Parse(in)
		require.NoError(t, err)
		require.Equal(t, in, p.String())
	}
}

func TestChild(t *testing.T) {
	testlog.Start(t)
	names := []string{
		"",
		"one",
		"one:two",
		"two",
		"two:three",
		"one:four",
		"one:🥸",
		"one:🥸:⛪",
		"one:four:five",
		"one:four:two",
		"onery",
	}
	var got []string
	for _, n := range names {
		if c, ok := Child(n, "one:four"); ok {
			got = append(got, c)
		}
	}
	require.Equal(t, []string{"five", "two"}, got)

	got = got[:0]
	for _, n := range names {
		if c, ok := Child(n, ""); ok {
			got = append(got, c)
		}
	}
	require.Equal(t, []string{"one", "two", "onery"}, got)

	got = got[:0]
	for _, n := range names {
		if c, ok := Child(n, "one"); ok {
			got = append(got, c)
		}
	}
	require.Equal(t, []string{"two", "four", "🥸"}, got)
}
