package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeReturnToPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "/"},
		{name: "thread path", input: "/t/demo", expected: "/t/demo"},
		{name: "thread path with query", input: "/t/demo?page=2", expected: "/t/demo?page=2"},
		{name: "thread path with fragment", input: "/t/demo#comments", expected: "/t/demo#comments"},
		{name: "escaped object id", input: "/t/a%2Fb", expected: "/t/a%2Fb"},
		{name: "no leading slash", input: "t/demo", expected: "/"},
		{name: "absolute url", input: "https://evil.com/t/demo", expected: "/"},
		{name: "protocol relative url", input: "//evil.com", expected: "/"},
		{name: "triple slash", input: "///evil.com", expected: "/"},
		{name: "backslash", input: `/\evil.com`, expected: "/"},
		{name: "url text inside local path", input: "/https://evil.com", expected: "/https://evil.com"},
		{name: "double slash inside local path", input: "/t//demo", expected: "/t//demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, sanitizeReturnToPath(tt.input))
		})
	}
}
