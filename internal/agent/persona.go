package agent

import (
	"strings"

	"github.com/loopgateway/core/pkg/models"
)

// germanMarkers is a small lexical marker set used for auto language
// detection. Per spec §4.6/§8: 0-2 markers in the user's message ⇒ "en",
// ≥3 ⇒ "de".
var germanMarkers = []string{
	" der ", " die ", " das ", " und ", " ist ", " nicht ", " ich ", " du ",
	" ein ", " eine ", " bitte ", "ä", "ö", "ü", "ß",
}

// detectLanguage implements the persona's "auto" language mode.
func detectLanguage(userMessage string) string {
	lower := " " + strings.ToLower(userMessage) + " "
	count := 0
	for _, marker := range germanMarkers {
		if strings.Contains(lower, marker) {
			count++
		}
	}
	if count >= 3 {
		return "de"
	}
	return "en"
}

var emojiInstructions = map[models.EmojiPolicy]string{
	models.EmojiNone:     "Do not use emoji in your responses.",
	models.EmojiMinimal:  "Use emoji sparingly, at most one per response, only when it adds genuine clarity.",
	models.EmojiModerate: "Use emoji where they naturally fit the tone of the conversation.",
	models.EmojiHeavy:    "Use emoji liberally to keep the conversation lively and expressive.",
}

// composePersonaBlock builds the persona segment of the effective system
// prompt (spec §4.6 step 2): resolved language plus an explicit emoji
// policy instruction. A nil persona yields the package default (auto
// language, minimal emoji).
func composePersonaBlock(persona *models.Persona, userMessage string) string {
	language := "auto"
	emoji := models.EmojiMinimal
	if persona != nil {
		if persona.Language != "" {
			language = persona.Language
		}
		if persona.Emoji != "" {
			emoji = persona.Emoji
		}
	}

	resolvedLang := language
	if language == "auto" || language == "" {
		resolvedLang = detectLanguage(userMessage)
	}

	langInstruction := "Respond in English."
	if resolvedLang == "de" {
		langInstruction = "Antworte auf Deutsch."
	} else if resolvedLang != "en" {
		langInstruction = "Respond in the language: " + resolvedLang + "."
	}

	emojiInstruction, ok := emojiInstructions[emoji]
	if !ok {
		emojiInstruction = emojiInstructions[models.EmojiMinimal]
	}

	return langInstruction + " " + emojiInstruction
}
