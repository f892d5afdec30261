// Package tokenize provides the word segmentation and particle handling the
// envelope validator and the gateway share. Tokens are maximal runs of
// letters, digits, and underscore; Korean particle attachment is handled by
// an explicit suffix table rather than a morphological analyzer.
package tokenize

import "regexp"

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Words returns the tokens of text in order, duplicates preserved.
func Words(text string) []string {
	return wordRE.FindAllString(text, -1)
}

// ParticleSuffixes are the josa endings considered for particle stripping.
// Longer suffixes are not preferred over shorter ones; any match that leaves
// an allowed stem admits the token.
var ParticleSuffixes = []string{
	"이", "가", "은", "는", "을", "를",
	"에", "에서", "로", "으로",
	"와", "과", "랑", "하고", "도", "만",
}

// BaseSupport is basic Korean the assistant may always use, even when not
// listed in allowed_support: particles, copulas, and high-frequency
// function words.
var BaseSupport = []string{
	"이", "가", "은", "는", "을", "를",
	"에", "에서", "로", "으로",
	"와", "과", "랑", "하고", "도", "만",
	"그리고", "그래서", "근데", "그런데",
	"네", "응", "아니요", "맞아요", "아니에요",
	"있어요", "없어요", "있어", "없어",
	"뭐", "뭐가", "뭐예요", "어디", "어디예요",
	"여기", "거기", "저기",
	"지금", "오늘", "내일",
	"좋아요", "싫어요",
	"안", "못", "좀", "더",
	"해주세요", "주세요", "해요", "해", "했어요", "할까요", "싶어요",
	"돼", "되요", "돼요", "맞아",
}

// AlwaysAllowed are interjections and connectives permitted regardless of
// the turn's envelope.
var AlwaysAllowed = []string{
	"아", "응", "네", "그래", "그럼", "음", "아니", "그리고", "그래서",
}

// Set builds a membership set from word lists.
func Set(lists ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			out[w] = struct{}{}
		}
	}
	return out
}

// IsDigits reports whether the token is entirely ASCII digits. Digit tokens
// are exempt from envelope validation.
func IsDigits(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}

// Allowed reports whether token is admitted by the allowed set, either
// directly or as allowed-stem + allowed-particle. A bare suffix never
// validates an empty stem.
func Allowed(token string, allowed map[string]struct{}) bool {
	if _, ok := allowed[token]; ok {
		return true
	}
	for _, suffix := range ParticleSuffixes {
		if len(token) <= len(suffix) || token[len(token)-len(suffix):] != suffix {
			continue
		}
		stem := token[:len(token)-len(suffix)]
		_, stemOK := allowed[stem]
		_, sufOK := allowed[suffix]
		if stemOK && sufOK {
			return true
		}
	}
	return false
}

// MatchesForm reports whether token realizes the surface form, exactly or
// with one particle attached.
func MatchesForm(token, form string) bool {
	if token == form {
		return true
	}
	if len(token) <= len(form) || token[:len(form)] != form {
		return false
	}
	rest := token[len(form):]
	for _, suffix := range ParticleSuffixes {
		if rest == suffix {
			return true
		}
	}
	return false
}
