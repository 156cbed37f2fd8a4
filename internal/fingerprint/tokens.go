package fingerprint

import (
	"sort"
	"strings"
	"unicode"

	"github.com/integrityx/forensics/pkg/models"
)

const minTokenLength = 3

// semanticTokens extracts the top-k most frequent meaningful tokens from
// text-type fields, plus named-entity-like tokens (capitalized multi-word
// sequences). The list backs the semantic hash and is exposed as the
// fingerprint's keywords.
func semanticTokens(fields []models.FlatField, topK int) []string {
	freq := make(map[string]int)
	entities := make(map[string]bool)

	for _, f := range fields {
		if f.Value.Kind != models.KindString {
			continue
		}
		if f.Type != models.FieldText && f.Type != models.FieldIdentity {
			continue
		}
		text := f.Value.Str
		for _, tok := range tokenize(text) {
			freq[tok]++
		}
		for _, ent := range entityTokens(text) {
			entities[ent] = true
		}
	}

	type scored struct {
		token string
		count int
	}
	ranked := make([]scored, 0, len(freq))
	for tok, count := range freq {
		ranked = append(ranked, scored{tok, count})
	}
	// Frequency descending, alphabetical tie-break for determinism.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}

	tokens := make([]string, 0, len(ranked)+len(entities))
	for _, r := range ranked {
		tokens = append(tokens, r.token)
	}

	entityList := make([]string, 0, len(entities))
	for ent := range entities {
		entityList = append(entityList, ent)
	}
	sort.Strings(entityList)

	return append(tokens, entityList...)
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	result := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) >= minTokenLength && !stopWords[word] {
			result = append(result, word)
		}
	}
	return result
}

// entityTokens finds runs of two or more capitalized words, a cheap proxy
// for proper names.
func entityTokens(text string) []string {
	words := strings.Fields(text)
	var entities []string
	var run []string

	flush := func() {
		if len(run) >= 2 {
			entities = append(entities, strings.ToLower(strings.Join(run, " ")))
		}
		run = nil
	}

	for _, word := range words {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if trimmed != "" && unicode.IsUpper([]rune(trimmed)[0]) {
			run = append(run, trimmed)
			continue
		}
		flush()
	}
	flush()

	return entities
}

var stopWords = func() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "have", "he", "in", "is", "it", "its", "of", "on", "or",
		"she", "that", "the", "they", "this", "to", "was", "were", "will",
		"with", "you", "your", "we", "our", "their", "them", "there", "these",
		"those", "been", "being", "had", "having", "do", "does", "did",
		"would", "could", "should", "may", "might", "must", "can", "cannot",
		"about", "above", "after", "again", "against", "all", "any",
		"because", "before", "below", "between", "both", "but", "during",
		"each", "few", "here", "how", "if", "into", "just", "more",
		"most", "no", "nor", "not", "now", "only", "other", "out", "own",
		"same", "some", "such", "than", "then", "through", "too", "under",
		"until", "very", "what", "when", "where", "which", "while", "who",
		"why", "also", "however", "therefore", "thus",
	}
	result := make(map[string]bool, len(words))
	for _, w := range words {
		result[w] = true
	}
	return result
}()
