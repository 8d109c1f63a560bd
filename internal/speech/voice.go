package speech

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"nyaymitra/client/internal/remote"
)

// Voice is one voice offered by a Synthesizer.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Lang is a BCP 47 tag such as "hi-IN" or "en-gb".
	Lang string `json:"lang"`
}

var (
	hindiIndia   = language.MustParse("hi-IN")
	englishIndia = language.MustParse("en-IN")
)

// Locale returns the tag an utterance in lang is spoken with.
func Locale(lang remote.Language) language.Tag {
	if lang == remote.Hindi {
		return hindiIndia
	}
	return englishIndia
}

// Prosody is the rate and pitch multipliers for lang.
func Prosody(lang remote.Language) (rate, pitch float64) {
	if lang == remote.Hindi {
		return 0.85, 1.05
	}
	return 0.95, 1.05
}

// DetectLanguage reports Hindi when text contains any Devanagari.
func DetectLanguage(text string) remote.Language {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return remote.Hindi
		}
	}
	return remote.English
}

// SelectVoice picks the best voice for lang: same base language required,
// then exact region, then the higher quality "Google"/"Natural" voices.
// ok is false when nothing speaks the language and the synthesizer default
// should be used.
func SelectVoice(voices []Voice, lang remote.Language) (Voice, bool) {
	want := Locale(lang)
	wantBase, _ := want.Base()
	wantRegion, _ := want.Region()

	best, bestScore := Voice{}, -1
	for _, v := range voices {
		tag, err := language.Parse(v.Lang)
		if err != nil {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No || base != wantBase {
			continue
		}
		score := 0
		if region, conf := tag.Region(); conf == language.Exact && region == wantRegion {
			score += 2
		}
		if strings.Contains(v.Name, "Google") || strings.Contains(v.Name, "Natural") {
			score++
		}
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	return best, bestScore >= 0
}
