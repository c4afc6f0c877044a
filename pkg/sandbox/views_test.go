package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindUnqualifiedWildcard(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		flagged bool
	}{
		{
			name:    "bare select star",
			body:    "SELECT * FROM users",
			flagged: true,
		},
		{
			name:    "star after distinct",
			body:    "SELECT DISTINCT * FROM users",
			flagged: true,
		},
		{
			name:    "star after all",
			body:    "SELECT ALL * FROM users",
			flagged: true,
		},
		{
			name:    "star after distinct on group",
			body:    "SELECT DISTINCT ON (user_id) * FROM events",
			flagged: true,
		},
		{
			name:    "star after distinct on group with nested parens",
			body:    "SELECT DISTINCT ON (lower(email)) * FROM users",
			flagged: true,
		},
		{
			name:    "column after distinct on group is fine",
			body:    "SELECT DISTINCT ON (user_id) user_id FROM events",
			flagged: false,
		},
		{
			name:    "qualified wildcard after distinct on group is fine",
			body:    "SELECT DISTINCT ON (user_id) e.* FROM events e",
			flagged: false,
		},
		{
			name:    "star after join on group is multiplication",
			body:    "SELECT t.a FROM t JOIN u ON (t.id = u.id) WHERE (u.n) * 2 > 0",
			flagged: false,
		},
		{
			name:    "star in select list after comma",
			body:    "SELECT id, * FROM users",
			flagged: true,
		},
		{
			name:    "leading whitespace before star",
			body:    "  \n\t* FROM users",
			flagged: true,
		},
		{
			name:    "qualified wildcard is fine",
			body:    "SELECT u.* FROM users u",
			flagged: false,
		},
		{
			name:    "count star is fine",
			body:    "SELECT count(*) FROM users",
			flagged: false,
		},
		{
			name:    "multiplication is fine",
			body:    "SELECT price * quantity FROM orders",
			flagged: false,
		},
		{
			name:    "multiplication with parens is fine",
			body:    "SELECT (price) * quantity FROM orders",
			flagged: false,
		},
		{
			name:    "star inside string literal is fine",
			body:    "SELECT '*' FROM users",
			flagged: false,
		},
		{
			name:    "star inside quoted identifier is fine",
			body:    `SELECT "a*b" FROM users`,
			flagged: false,
		},
		{
			name:    "star inside line comment is fine",
			body:    "SELECT id -- select *\nFROM users",
			flagged: false,
		},
		{
			name:    "star inside block comment is fine",
			body:    "SELECT id /* select * here */ FROM users",
			flagged: false,
		},
		{
			name:    "wildcard after comment still flagged",
			body:    "SELECT /* cols */ * FROM users",
			flagged: true,
		},
		{
			name:    "wildcard in subquery flagged",
			body:    "SELECT id FROM (SELECT * FROM users) u",
			flagged: true,
		},
		{
			name:    "no wildcard at all",
			body:    "SELECT id, email FROM users",
			flagged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, found := findUnqualifiedWildcard(tt.body)
			assert.Equal(t, tt.flagged, found)
			if found {
				assert.Equal(t, byte('*'), tt.body[offset], "offset must point at the star")
			}
		})
	}
}

func TestFindUnqualifiedWildcardOffset(t *testing.T) {
	body := "SELECT id, * FROM users"
	offset, found := findUnqualifiedWildcard(body)
	assert.True(t, found)
	assert.Equal(t, strings.IndexByte(body, '*'), offset)
}
