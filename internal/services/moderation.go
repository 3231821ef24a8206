package services

import (
	"strings"
	"unicode"
)

// Canonical vocabularies. Entries are matched after both sides go through
// normalizeForScreening, so they are written in plain lowercase.
var threatVocabulary = []string{
	"rape",
	"kill",
	"murder",
	"assault",
	"attack",
	"shoot",
	"stab",
	"strangle",
	"threat",
	"threatening",
	"revenge",
	"retaliate",
	"slaughter",
	"massacre",
}

var selfHarmVocabulary = []string{
	"suicide",
	"kill myself",
	"end my life",
	"take my life",
	"end it all",
	"self harm",
	"cut myself",
	"hurt myself",
	"harm myself",
	"want to die",
	"wish i was dead",
	"not worth living",
	"better off dead",
	"unalive",
}

var obfuscation = strings.NewReplacer(
	"@", "a",
	"4", "a",
	"3", "e",
	"!", "i",
	"1", "i",
	"0", "o",
	"$", "s",
	"5", "s",
	"7", "t",
	"+", "t",
	"а", "a", // Cyrillic
	"е", "e",
	"і", "i",
	"о", "o",
	"р", "p",
)

type screenTerm struct {
	word       string
	normalized string
	phrase     bool
}

var (
	threatTerms   = compileVocabulary(threatVocabulary)
	selfHarmTerms = compileVocabulary(selfHarmVocabulary)
)

func compileVocabulary(words []string) []screenTerm {
	terms := make([]screenTerm, 0, len(words))
	for _, w := range words {
		n := normalizeForScreening(w)
		terms = append(terms, screenTerm{word: w, normalized: n, phrase: strings.Contains(n, " ")})
	}
	return terms
}

// ScreenResult reports which vocabularies a message matched.
type ScreenResult struct {
	Threat   bool
	SelfHarm bool
	Matches  []string
}

func (r ScreenResult) Flagged() bool {
	return r.Threat || r.SelfHarm
}

// ScreenContent checks message text against the threat and self-harm
// vocabularies. Common obfuscations (leetspeak, look-alike Cyrillic letters,
// stretched letters, separators) are undone first.
func ScreenContent(content string) ScreenResult {
	var res ScreenResult
	cleaned := normalizeForScreening(content)
	if cleaned == "" {
		return res
	}

	if m := matchTerms(cleaned, threatTerms); len(m) > 0 {
		res.Threat = true
		res.Matches = append(res.Matches, m...)
	}
	if m := matchTerms(cleaned, selfHarmTerms); len(m) > 0 {
		res.SelfHarm = true
		res.Matches = append(res.Matches, m...)
	}
	return res
}

// normalizeForScreening lowercases, undoes obfuscation, turns every non-letter
// into a word break and collapses runs of the same letter.
func normalizeForScreening(text string) string {
	cleaned := obfuscation.Replace(strings.ToLower(text))

	var b strings.Builder
	for _, r := range cleaned {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(collapseRepeats(b.String())), " ")
}

// collapseRepeats reduces repeated letters to one ("kiiiill" -> "kil").
func collapseRepeats(text string) string {
	var b strings.Builder
	var last rune
	lastWasLetter := false
	for _, r := range text {
		isLetter := unicode.IsLetter(r)
		if isLetter && lastWasLetter && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
		lastWasLetter = isLetter
	}
	return b.String()
}

// matchTerms matches single words on word boundaries ("skill" is not "kill")
// and phrases on word-aligned substrings.
func matchTerms(cleaned string, terms []screenTerm) []string {
	padded := " " + cleaned + " "
	var words map[string]struct{}
	var matched []string
	for _, t := range terms {
		if t.phrase {
			if strings.Contains(padded, " "+t.normalized+" ") {
				matched = append(matched, t.word)
			}
			continue
		}
		if words == nil {
			words = make(map[string]struct{})
			for _, w := range strings.Fields(cleaned) {
				words[w] = struct{}{}
			}
		}
		if _, ok := words[t.normalized]; ok {
			matched = append(matched, t.word)
		}
	}
	return matched
}
