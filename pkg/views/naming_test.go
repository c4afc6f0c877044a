package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratedViewNameStability(t *testing.T) {
	a := GeneratedViewName("", "SELECT id FROM users")
	b := GeneratedViewName("", "SELECT id FROM users")
	c := GeneratedViewName("", "SELECT id FROM users ")

	assert.Equal(t, a, b, "identical fragments must yield the identical name")
	assert.NotEqual(t, a, c, "any edit to the body must produce a new name")

	assert.True(t, IsGeneratedViewName(a))
	assert.False(t, IsGeneratedViewName("users"))

	// Full name stays under PostgreSQL's 63-byte identifier limit.
	assert.LessOrEqual(t, len(a), 63)
}

func TestGeneratedViewNameVarPrefix(t *testing.T) {
	named := GeneratedViewName("activeUsers", "SELECT id FROM users")
	assert.Contains(t, named, "_activeusers_")
	assert.True(t, IsGeneratedViewName(named))

	// The readable segment never changes identity: the hash still reflects
	// the body, so two variables over the same body get distinct names that
	// share the same hash tail.
	other := GeneratedViewName("allUsers", "SELECT id FROM users")
	assert.NotEqual(t, named, other)
	assert.Equal(t, named[len(named)-32:], other[len(other)-32:])

	long := GeneratedViewName("a_very_long_host_variable_name_indeed_it_goes_on", "SELECT 1")
	assert.LessOrEqual(t, len(long), 63)
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"UserId", "userid"},
		{"my-type.name", "my_type_name"},
		{"9lives", "_9lives"},
		{"", "_"},
		{"already_fine", "already_fine"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeIdentifier(tt.input), "input %q", tt.input)
	}
}
