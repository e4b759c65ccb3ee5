package commentbox

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/discuss/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{name: "unset", value: "", expected: 10},
		{name: "valid", value: "25", expected: 25},
		{name: "invalid", value: "many", expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)

			assert.Equal(t, tt.expected, getInt("TEST_INT", 10))
		})
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{name: "unset", value: "", expected: time.Minute},
		{name: "valid", value: "90s", expected: 90 * time.Second},
		{name: "zero", value: "0s", expected: 0},
		{name: "negative", value: "-1s", expected: time.Minute},
		{name: "invalid", value: "soon", expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)

			assert.Equal(t, tt.expected, getDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, slog.LevelDebug, GetLogLevelFromEnv())

	t.Setenv("LOG_LEVEL", "loud")
	assert.Equal(t, slog.LevelInfo, GetLogLevelFromEnv())
}

func TestNewCommentStore(t *testing.T) {
	t.Setenv("COMMENT_STORE", CommentStoreMemory)
	t.Setenv("MEMORY_STORE_DELAY", "0s")

	store, err := newCommentStore(t.Context(), nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	t.Setenv("COMMENT_STORE", "postgres")

	_, err = newCommentStore(t.Context(), nil)

	var unknownErr *UnknownCommentStoreError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "postgres", unknownErr.Store)
}

func TestNewWidgetConfig(t *testing.T) {
	t.Setenv("WIDGET_SORT", "oldest")
	t.Setenv("WIDGET_PAGE_SIZE", "5")
	t.Setenv("WIDGET_THEME", "dark")

	cfg := newWidgetConfig()

	assert.Equal(t, discuss.SortLatest, cfg.Sort)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, "dark", string(cfg.Theme))
	assert.Equal(t, memory.SeedObjectID, cfg.DefaultObjectID)
}

func TestLoadPolicyContent(t *testing.T) {
	t.Setenv("AUTHORIZATION_POLICY_FILE", "")

	content, err := loadPolicyContent()
	require.NoError(t, err)
	assert.Contains(t, content, "listComments")

	policyFile := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(policyFile, []byte("p, a, b, c, d\n"), 0o600))

	t.Setenv("AUTHORIZATION_POLICY_FILE", policyFile)

	content, err = loadPolicyContent()
	require.NoError(t, err)
	assert.Equal(t, "p, a, b, c, d\n", content)

	t.Setenv("AUTHORIZATION_POLICY_FILE", filepath.Join(t.TempDir(), "missing.csv"))

	_, err = loadPolicyContent()
	require.Error(t, err)
}
