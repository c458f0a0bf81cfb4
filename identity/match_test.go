package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchLike(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"bare wildcard matches present value", "*", "camunda", true},
		{"bare wildcard never matches absent value", "*", "", false},
		{"prefix", "camunda*", "camunda@accso.de", true},
		{"prefix mismatch", "camunda*", "hans@accso.de", false},
		{"suffix", "*@accso.de", "camunda@accso.de", true},
		{"suffix mismatch", "*@accso.de", "camunda@example.org", false},
		{"infix", "*accso*", "camunda@accso.de", true},
		{"infix absent value", "*accso*", "", false},
		{"exact without wildcard", "camunda", "camunda", true},
		{"exact without wildcard mismatch", "camunda", "camunda2", false},
		{"anchored both ends", "a*a", "abba", true},
		{"anchored both ends no overlap", "a*a", "a", false},
		{"multiple segments", "h*ns*mann", "hans.mustermann", true},
		{"multiple segments out of order", "mann*h", "hans.mustermann", false},
		{"case sensitive", "Camunda*", "camunda@accso.de", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchLike(tc.pattern, tc.value))
		})
	}
}
