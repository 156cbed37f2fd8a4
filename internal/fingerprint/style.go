package fingerprint

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/integrityx/forensics/pkg/models"
)

// styleFeatures derives discrete naming-convention signals from the key
// names of a document. These capture the authoring or tooling fingerprint
// rather than the content: the same template filled with different data
// keeps an identical style set.
func styleFeatures(fields []models.FlatField) []string {
	keys := make(map[string]bool)
	maxDepth := 0
	for _, f := range fields {
		segments := keySegments(f.Path)
		if len(segments) > maxDepth {
			maxDepth = len(segments)
		}
		for _, seg := range segments {
			if seg != "" {
				keys[seg] = true
			}
		}
	}

	if len(keys) == 0 {
		return []string{}
	}

	snake, camel, totalLen, withDigits := 0, 0, 0, 0
	for key := range keys {
		totalLen += len(key)
		if strings.ContainsRune(key, '_') {
			snake++
		}
		if isCamelCase(key) {
			camel++
		}
		if strings.IndexFunc(key, unicode.IsDigit) >= 0 {
			withDigits++
		}
	}

	n := len(keys)
	features := []string{
		"case:" + dominantCase(snake, camel, n),
		fmt.Sprintf("keylen:%s", bucketLength(totalLen/n)),
		fmt.Sprintf("depth:%d", maxDepth),
	}
	if withDigits > 0 {
		features = append(features, "keys_with_digits")
	}
	if snake > 0 && camel > 0 {
		// Mixed conventions hint at merged or hand-edited templates.
		features = append(features, "mixed_case")
	}

	return features
}

func dominantCase(snake, camel, total int) string {
	switch {
	case snake*2 >= total && snake >= camel:
		return "snake"
	case camel*2 >= total:
		return "camel"
	default:
		return "flat"
	}
}

func isCamelCase(key string) bool {
	hasLower := false
	for _, r := range key {
		if unicode.IsLower(r) {
			hasLower = true
		} else if unicode.IsUpper(r) && hasLower {
			return true
		}
	}
	return false
}

func bucketLength(avg int) string {
	switch {
	case avg <= 4:
		return "short"
	case avg <= 10:
		return "medium"
	default:
		return "long"
	}
}
