package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxUsernameLength bounds chat usernames in logs (Telegram allows 32)
	MaxUsernameLength = 64
	// MaxChatTextLength bounds free text typed by users
	MaxChatTextLength = 200
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
)

// SanitizeString removes control characters, fixes UTF-8 and truncates to maxLength
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = filterRunes(s)
	if len(s) > maxLength {
		s = truncateUTF8(s, maxLength) + "..."
	}
	return s
}

// SanitizeUsername sanitizes a chat username for safe logging
func SanitizeUsername(username string) string {
	return SanitizeString(username, MaxUsernameLength)
}

// SanitizeChatText sanitizes message text typed by a user. Newlines are
// flattened so one message stays on one log line.
func SanitizeChatText(text string) string {
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	return SanitizeString(text, MaxChatTextLength)
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// filterRunes keeps printable runes plus space, tab, newline and CR
func filterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
