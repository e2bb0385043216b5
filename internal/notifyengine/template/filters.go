package template

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// arabicDigits maps Western digits to Arabic-Indic digits.
var arabicDigits = map[rune]rune{
	'0': '٠', '1': '١', '2': '٢', '3': '٣', '4': '٤',
	'5': '٥', '6': '٦', '7': '٧', '8': '٨', '9': '٩',
}

// truncateWords keeps at most n words of s, appending an ellipsis when
// truncated.
func truncateWords(n int, s string) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "…"
}

// formatDate renders t using a named style ("short", "long", or a literal
// Go reference layout) for the given locale. Locale currently only affects
// RTL marker wrapping done by the caller; the layout itself is
// locale-neutral ISO-ish formatting, generalized into named styles instead
// of one fixed layout.
func formatDate(style string, locale string, t time.Time) string {
	switch style {
	case "short":
		return t.Format("2006-01-02")
	case "long":
		return t.Format("January 2, 2006")
	case "time":
		return t.Format("15:04")
	default:
		return t.Format(style)
	}
}

// formatNumber renders f with locale-appropriate grouping. Only a generic
// thousands-comma grouping is implemented; locale is accepted for forward
// compatibility with a fuller i18n table.
func formatNumber(locale string, f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i:]
	}

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// formatCurrency renders f as an amount in currency code, grouped like
// formatNumber with the ISO code as suffix (a neutral rendering that does
// not depend on a currency-symbol table per locale).
func formatCurrency(code, locale string, f float64) string {
	return fmt.Sprintf("%s %s", formatNumber(locale, f), strings.ToUpper(code))
}

// sanitizeHTML escapes a string for safe inclusion in HTML output.
func sanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// toJSON renders v as a compact JSON string, used for webhook/JSON-channel
// templates.
func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("to_json: %w", err)
	}
	return string(b), nil
}

// arabicNumber converts Western digits in s to Arabic-Indic digits.
func arabicNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if d, ok := arabicDigits[r]; ok {
			b.WriteRune(d)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// rtlLocales lists locales rendered right-to-left, used to decide whether
// rendered output should retain direction markers.
var rtlLocales = map[string]bool{
	"ar": true, "he": true, "fa": true, "ur": true,
}

// IsRTL reports whether locale is a right-to-left locale.
func IsRTL(locale string) bool {
	base := locale
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		base = locale[:i]
	}
	return rtlLocales[strings.ToLower(base)]
}

const (
	rtlMark = "‏" // RIGHT-TO-LEFT MARK
	ltrMark = "‎" // LEFT-TO-RIGHT MARK
)

// wrapDirection wraps s with a direction mark if locale is RTL, so
// rendered output retains locale direction markers even when embedded in
// a wider string.
func wrapDirection(locale, s string) string {
	if IsRTL(locale) {
		return rtlMark + s + rtlMark
	}
	return s
}
