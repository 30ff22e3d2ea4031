package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		in       string
		wantCore [4]int
		wantPre  string
		wantStr  string
	}{
		{name: "three parts", in: "1.2.3", wantCore: [4]int{1, 2, 3, 0}, wantStr: "1.2.3"},
		{name: "four parts", in: "1.2.3.4", wantCore: [4]int{1, 2, 3, 4}, wantStr: "1.2.3.4"},
		{name: "two parts pads to three", in: "1.2", wantCore: [4]int{1, 2, 0, 0}, wantStr: "1.2.0"},
		{name: "prerelease", in: "2.0.0-beta1", wantCore: [4]int{2, 0, 0, 0}, wantPre: "beta1", wantStr: "2.0.0-beta1"},
		{name: "leading v and spaces", in: " v3.1.0 ", wantCore: [4]int{3, 1, 0, 0}, wantStr: "3.1.0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCore, v.Core)
			assert.Equal(t, tc.wantPre, v.Prerelease)
			assert.Equal(t, tc.wantStr, v.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "latest", "1.2.3.4.5", "1.x.0", "1.2.0-", "-1.0.0"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalidVersion)
		})
	}
}

func TestCompare(t *testing.T) {
	testCases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0-beta", 1},
		{"1.2.0-alpha", "1.2.0-beta", -1},
		{"1.2.0-BETA", "1.2.0-beta", 0},
		{"1.2.0-Alpha", "1.2.0-beta", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2", "1.2.0.0", 0},
		{"1.2.3.4", "1.2.3.5", -1},
		{"10.0.0", "9.99.99", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			got := Compare(MustParse(tc.a), MustParse(tc.b))
			assert.Equal(t, tc.want, got)
			assert.Equal(t, -tc.want, Compare(MustParse(tc.b), MustParse(tc.a)), "comparison must be antisymmetric")
		})
	}
}

func TestMax(t *testing.T) {
	best, ok := Max("1.0.0", "garbage", "1.10.0", "1.9.0", "1.10.0-rc1")
	require.True(t, ok)
	assert.Equal(t, "1.10.0", best.String())

	_, ok = Max("nope", "")
	assert.False(t, ok)
}

func TestIsToken(t *testing.T) {
	assert.True(t, IsToken("latest"))
	assert.True(t, IsToken(" Auto "))
	assert.False(t, IsToken("1.0.0"))
	assert.False(t, IsToken(""))
}
