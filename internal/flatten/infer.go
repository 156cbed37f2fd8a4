package flatten

import (
	"strings"

	"github.com/integrityx/forensics/pkg/models"
)

// Config holds the keyword table driving field type inference. Keywords are
// matched as substrings of the lowercased path.
type Config struct {
	FinancialKeywords []string
	IdentityKeywords  []string
	SignatureKeywords []string
}

// DefaultConfig returns the default keyword table.
func DefaultConfig() Config {
	return Config{
		FinancialKeywords: []string{
			"amount", "loan", "balance", "price", "rate", "payment",
			"principal", "interest", "fee", "income", "salary",
		},
		IdentityKeywords: []string{
			"ssn", "dob", "address", "name", "email", "phone",
			"borrower", "applicant", "license",
		},
		SignatureKeywords: []string{"signature", "initials"},
	}
}

// InferType classifies a leaf by its path against the keyword table.
// Path keywords take precedence over value shape; unknown paths with
// non-date values default to text.
func (e *Extractor) InferType(path string, value models.Scalar) models.FieldType {
	lower := strings.ToLower(path)

	if matchesAny(lower, e.config.FinancialKeywords) {
		return models.FieldFinancial
	}
	if matchesAny(lower, e.config.IdentityKeywords) {
		return models.FieldIdentity
	}
	if matchesAny(lower, e.config.SignatureKeywords) {
		return models.FieldSignature
	}
	if value.Kind == models.KindDate {
		return models.FieldDate
	}
	return models.FieldText
}

func matchesAny(path string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	return false
}
