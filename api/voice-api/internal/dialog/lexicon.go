// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialog

import (
	"strings"
	"unicode"
)

// Lexicon classifies a confirmation-stage transcript. All phrase matching is
// on lowercased, punctuation-stripped words.
type Lexicon struct {
	Affirmative []string
	Negative    []string
	Correction  []string
}

// DefaultLexicon covers common phone-call confirmations.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Affirmative: []string{
			"yes", "yeah", "yep", "yup", "correct", "confirm",
			"right", "that's right", "that is right", "sounds good",
			"sure", "exactly", "perfect",
		},
		Negative: []string{
			"no", "nope", "incorrect", "wrong", "that's wrong",
			"not right", "not correct",
		},
		Correction: []string{
			"actually", "instead", "change", "i meant", "i said",
			"not that", "make it", "rather",
		},
	}
}

// normalizeWords lowercases the text and strips punctuation, keeping word
// boundaries.
func normalizeWords(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsPhrase(text, phrase string) bool {
	padded := " " + text + " "
	return strings.Contains(padded, " "+normalizeWords(phrase)+" ")
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether the transcript confirms the summary.
func (l Lexicon) IsAffirmative(text string) bool {
	return matchesAny(normalizeWords(text), l.Affirmative)
}

// IsNegative reports whether the transcript rejects the summary.
func (l Lexicon) IsNegative(text string) bool {
	return matchesAny(normalizeWords(text), l.Negative)
}

// IsCorrection reports whether the transcript amends a detail. A correction
// outranks an affirmative appearing in the same transcript.
func (l Lexicon) IsCorrection(text string) bool {
	return matchesAny(normalizeWords(text), l.Correction)
}
