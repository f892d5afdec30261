// Package redaction scrubs learner text before it leaves the process.
// Deterministic and conservative: emails and URLs at minimal, long digit
// runs additionally at strict.
package redaction

import "regexp"

// Level controls how much is scrubbed.
type Level string

const (
	None    Level = "none"
	Minimal Level = "minimal"
	Strict  Level = "strict"
)

// ParseLevel maps arbitrary input to a valid level, defaulting to minimal.
func ParseLevel(s string) Level {
	switch Level(s) {
	case None, Minimal, Strict:
		return Level(s)
	}
	return Minimal
}

var (
	// Email local parts often contain symbols that break \b, so anchor on
	// surrounding whitespace instead.
	emailRE = regexp.MustCompile(`(?i)(^|\s)[\w.+-]+@[\w-]+\.[\w.-]+($|\s)`)
	urlRE   = regexp.MustCompile(`\bhttps?://\S+\b`)
	digitRE = regexp.MustCompile(`\b\d{7,}\b`)
)

// Result is the scrubbed text plus whether anything changed.
type Result struct {
	Text     string
	Redacted bool
}

// Redact applies the level's rules to text.
func Redact(text string, level Level) Result {
	if level == None {
		return Result{Text: text}
	}
	out := text
	redacted := false

	next := emailRE.ReplaceAllString(out, "${1}[REDACTED_EMAIL]${2}")
	redacted = redacted || next != out
	out = next

	next = urlRE.ReplaceAllString(out, "[REDACTED_URL]")
	redacted = redacted || next != out
	out = next

	if level == Strict {
		next = digitRE.ReplaceAllString(out, "[REDACTED_NUMBER]")
		redacted = redacted || next != out
		out = next
	}
	return Result{Text: out, Redacted: redacted}
}

// RedactJSON walks a decoded JSON value and redacts every string in place,
// returning the transformed value.
func RedactJSON(value any, level Level) any {
	if level == None {
		return value
	}
	switch v := value.(type) {
	case string:
		return Redact(v, level).Text
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = RedactJSON(entry, level)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, entry := range v {
			out[k] = RedactJSON(entry, level)
		}
		return out
	}
	return value
}
