// Package validate enforces the token envelope and the response contract.
package validate

import (
	"elites/internal/tokenize"
	"elites/internal/types"
)

// TokenValidation is the outcome of an envelope check. UnexpectedTokens is
// deduplicated in first-occurrence order.
type TokenValidation struct {
	UnexpectedTokens []string
}

// OK reports whether every token was inside the envelope.
func (v TokenValidation) OK() bool {
	return len(v.UnexpectedTokens) == 0
}

// ValidateTokens checks text against the request's allowed envelope: the
// support, stretch, and reinforced pools, every target surface form, the
// base function-word vocabulary, and the always-allowed interjections.
// Digit tokens are exempt; particle-attached forms of allowed stems pass.
func ValidateTokens(text string, constraints *types.LanguageConstraints) TokenValidation {
	allowed := tokenize.Set(
		constraints.AllowedSupport,
		constraints.AllowedStretch,
		constraints.ReinforcedWords,
		tokenize.BaseSupport,
		tokenize.AlwaysAllowed,
	)
	for _, mt := range constraints.MustTarget {
		for _, sf := range mt.SurfaceForms {
			allowed[sf] = struct{}{}
		}
	}

	var unexpected []string
	seen := map[string]struct{}{}
	for _, token := range tokenize.Words(text) {
		if tokenize.IsDigits(token) {
			continue
		}
		if tokenize.Allowed(token, allowed) {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		unexpected = append(unexpected, token)
	}
	return TokenValidation{UnexpectedTokens: unexpected}
}
