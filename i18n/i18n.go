// Package i18n holds the widget's message catalogues and formatting helpers.
package i18n

import (
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/language"
)

type Key string

const (
	KeyCommentCount       Key = "commentCount"
	KeyPlaceholder        Key = "placeholder"
	KeyReplyPlaceholder   Key = "replyPlaceholder"
	KeySubmit             Key = "submit"
	KeySave               Key = "save"
	KeyCancel             Key = "cancel"
	KeyReply              Key = "reply"
	KeyEdit               Key = "edit"
	KeyDelete             Key = "delete"
	KeyShowReplies        Key = "showReplies"
	KeyHideReplies        Key = "hideReplies"
	KeyNoComments         Key = "noComments"
	KeyLoading            Key = "loading"
	KeyLoginRequired      Key = "loginRequired"
	KeyLogin              Key = "login"
	KeyConfirmDelete      Key = "confirmDelete"
	KeyManager            Key = "manager"
	KeyEdited             Key = "edited"
	KeyPrev               Key = "prev"
	KeyNext               Key = "next"
	KeyJustNow            Key = "justNow"
	KeyMinutesAgo         Key = "minutesAgo"
	KeyHoursAgo           Key = "hoursAgo"
	KeyDaysAgo            Key = "daysAgo"
	KeyMonthsAgo          Key = "monthsAgo"
	KeyYearsAgo           Key = "yearsAgo"
	KeyErrorOccurred      Key = "errorOccurred"
	KeyAnonymousNickname  Key = "anonymous"
	KeyDeletedPlaceholder Key = "deleted"
)

// Messages maps a key to a template that may contain {name} placeholders.
type Messages map[Key]string

// Params are the values substituted into a template.
type Params map[string]any

// Get returns the template for key, or the key itself when it is missing.
func (m Messages) Get(key Key) string {
	tmpl, ok := m[key]
	if !ok {
		return string(key)
	}

	return tmpl
}

// Format looks up key and substitutes params into it.
func (m Messages) Format(key Key, params Params) string {
	return Format(m.Get(key), params)
}

// Merge returns a copy of m with overrides applied on top.
func (m Messages) Merge(overrides Messages) Messages {
	out := make(Messages, len(m)+len(overrides))

	for k, v := range m {
		out[k] = v
	}

	for k, v := range overrides {
		out[k] = v
	}

	return out
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Format replaces every {name} in template with params[name]. Placeholders
// without a value are kept as they are.
func Format(template string, params Params) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]

		value, ok := params[name]
		if !ok || value == nil {
			return match
		}

		return fmt.Sprint(value)
	})
}

const DefaultLocale = "ko"

var catalogues = map[string]Messages{
	"ko": ko,
	"en": en,
}

var matcher = language.NewMatcher([]language.Tag{
	language.Korean,
	language.English,
})

// Match returns the supported locale best matching tag, a BCP 47 tag or an
// Accept-Language value. Unknown or malformed tags match DefaultLocale.
func Match(tag string) string {
	tags, _, err := language.ParseAcceptLanguage(tag)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}

	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}

	switch index {
	case 1:
		return "en"
	default:
		return "ko"
	}
}

// ForLocale returns a copy of the catalogue for Match(tag).
func ForLocale(tag string) Messages {
	return catalogues[Match(tag)].Merge(nil)
}

const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

// TimeAgo renders the distance between the unix timestamp ts and now, using
// the largest whole unit among years, months, days, hours and minutes.
func TimeAgo(ts int64, now time.Time, messages Messages) string {
	diff := now.Sub(time.Unix(ts, 0))

	switch {
	case diff >= year:
		return messages.Format(KeyYearsAgo, Params{"years": int(diff / year)})
	case diff >= month:
		return messages.Format(KeyMonthsAgo, Params{"months": int(diff / month)})
	case diff >= day:
		return messages.Format(KeyDaysAgo, Params{"days": int(diff / day)})
	case diff >= time.Hour:
		return messages.Format(KeyHoursAgo, Params{"hours": int(diff / time.Hour)})
	case diff >= time.Minute:
		return messages.Format(KeyMinutesAgo, Params{"minutes": int(diff / time.Minute)})
	default:
		return messages.Get(KeyJustNow)
	}
}
