// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_synthesize

import "strings"

// spokenReplacements expands symbols the TTS voice would otherwise spell out
// or skip.
var spokenReplacements = strings.NewReplacer(
	"&", " and ",
	"@", " at ",
	"#", " number ",
	"%", " percent ",
)

// Normalize prepares agent text for synthesis: collapse whitespace, expand
// symbols, and make sure the sentence has a terminal pause.
func Normalize(text string) string {
	text = spokenReplacements.Replace(text)
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
	default:
		text += "."
	}
	return text
}
