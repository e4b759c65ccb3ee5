package i18n_test

import (
	"testing"
	"time"

	"github.com/nasermirzaei89/commentbox/i18n"
	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		params   i18n.Params
		expected string
	}{
		{
			name:     "single placeholder",
			template: "답글 {count}개",
			params:   i18n.Params{"count": 3},
			expected: "답글 3개",
		},
		{
			name:     "missing value keeps placeholder",
			template: "{count} comments by {author}",
			params:   i18n.Params{"count": 2},
			expected: "2 comments by {author}",
		},
		{
			name:     "nil params",
			template: "hello {name}",
			params:   nil,
			expected: "hello {name}",
		},
		{
			name:     "repeated placeholder",
			template: "{n}/{n}",
			params:   i18n.Params{"n": "x"},
			expected: "x/x",
		},
		{
			name:     "no placeholders",
			template: "plain",
			params:   i18n.Params{"n": 1},
			expected: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, i18n.Format(tt.template, tt.params))
		})
	}
}

func TestForLocale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag      string
		locale   string
		expected string
	}{
		{tag: "ko", locale: "ko", expected: "답글 숨기기"},
		{tag: "en", locale: "en", expected: "Hide replies"},
		{tag: "en-US", locale: "en", expected: "Hide replies"},
		{tag: "fr-FR,en;q=0.8", locale: "en", expected: "Hide replies"},
		{tag: "", locale: "ko", expected: "답글 숨기기"},
		{tag: "ja", locale: "ko", expected: "답글 숨기기"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.locale, i18n.Match(tt.tag))
			assert.Equal(t, tt.expected, i18n.ForLocale(tt.tag).Get(i18n.KeyHideReplies))
		})
	}
}

func TestMessagesGetAndMerge(t *testing.T) {
	t.Parallel()

	base := i18n.ForLocale("en")
	custom := base.Merge(i18n.Messages{i18n.KeySubmit: "Send"})

	assert.Equal(t, "Send", custom.Get(i18n.KeySubmit))
	assert.Equal(t, "Post", base.Get(i18n.KeySubmit))
	assert.Equal(t, "unknownKey", custom.Get("unknownKey"))
	assert.Equal(t, "5 replies", custom.Format(i18n.KeyShowReplies, i18n.Params{"count": 5}))
}

func TestTimeAgo(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	messages := i18n.ForLocale("en")

	tests := []struct {
		name     string
		ago      time.Duration
		expected string
	}{
		{name: "seconds", ago: 30 * time.Second, expected: "just now"},
		{name: "future", ago: -time.Hour, expected: "just now"},
		{name: "minutes", ago: 5 * time.Minute, expected: "5 minutes ago"},
		{name: "hours", ago: 3 * time.Hour, expected: "3 hours ago"},
		{name: "days", ago: 2 * 24 * time.Hour, expected: "2 days ago"},
		{name: "months", ago: 65 * 24 * time.Hour, expected: "2 months ago"},
		{name: "years", ago: 400 * 24 * time.Hour, expected: "1 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := now.Add(-tt.ago).Unix()
			assert.Equal(t, tt.expected, i18n.TimeAgo(ts, now, messages))
		})
	}
}
