package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/integrityx/forensics/internal/flatten"
	"github.com/integrityx/forensics/pkg/models"
)

// ErrInvalidConfig indicates the similarity weights or thresholds violate
// basic invariants.
var ErrInvalidConfig = errors.New("invalid fingerprint configuration")

// Config holds fingerprinting and similarity policy.
type Config struct {
	Flatten flatten.Config

	// TopKeywords is the size of the semantic token list.
	TopKeywords int

	// Layer weights for the overall similarity score. Must sum to ~1.0.
	StructuralWeight float64
	ContentWeight    float64
	StyleWeight      float64
	SemanticWeight   float64

	// DerivativeThreshold is the overall similarity above which two
	// documents are flagged as likely derivatives.
	DerivativeThreshold float64

	// AspectMatchThreshold decides whether a layer is reported as a
	// matching or diverging aspect.
	AspectMatchThreshold float64
}

// DefaultConfig returns the default fingerprint policy. The layer weights
// drive the derivative threshold, so changing one usually means retuning
// the other.
func DefaultConfig() Config {
	return Config{
		Flatten:              flatten.DefaultConfig(),
		TopKeywords:          10,
		StructuralWeight:     0.3,
		ContentWeight:        0.3,
		StyleWeight:          0.1,
		SemanticWeight:       0.3,
		DerivativeThreshold:  0.85,
		AspectMatchThreshold: 0.8,
	}
}

// Engine computes multi-layer document fingerprints and compares them.
type Engine struct {
	extractor *flatten.Extractor
	config    Config
}

// NewEngine validates the configuration and returns a fingerprint engine.
func NewEngine(config Config) (*Engine, error) {
	def := DefaultConfig()
	if config.TopKeywords == 0 {
		config.TopKeywords = def.TopKeywords
	}
	if config.StructuralWeight == 0 && config.ContentWeight == 0 &&
		config.StyleWeight == 0 && config.SemanticWeight == 0 {
		config.StructuralWeight = def.StructuralWeight
		config.ContentWeight = def.ContentWeight
		config.StyleWeight = def.StyleWeight
		config.SemanticWeight = def.SemanticWeight
	}
	if config.DerivativeThreshold == 0 {
		config.DerivativeThreshold = def.DerivativeThreshold
	}
	if config.AspectMatchThreshold == 0 {
		config.AspectMatchThreshold = def.AspectMatchThreshold
	}

	sum := config.StructuralWeight + config.ContentWeight + config.StyleWeight + config.SemanticWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("%w: layer weights sum to %.4f, want 1.0", ErrInvalidConfig, sum)
	}
	for _, w := range []float64{config.StructuralWeight, config.ContentWeight, config.StyleWeight, config.SemanticWeight} {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative layer weight", ErrInvalidConfig)
		}
	}
	if config.DerivativeThreshold <= 0 || config.DerivativeThreshold > 1 {
		return nil, fmt.Errorf("%w: derivative threshold out of (0,1]", ErrInvalidConfig)
	}

	return &Engine{
		extractor: flatten.NewExtractor(config.Flatten),
		config:    config,
	}, nil
}

// Compute derives the four-layer fingerprint of a document snapshot.
// Recomputed whenever a new version is fingerprinted, never mutated in
// place.
func (e *Engine) Compute(documentID string, doc map[string]any) (*models.Fingerprint, error) {
	fields, err := e.extractor.Flatten(doc)
	if err != nil {
		return nil, err
	}

	structuralSet := make([]string, 0, len(fields))
	contentEntries := make([]string, 0, len(fields))
	for _, f := range fields {
		structuralSet = append(structuralSet, f.Path+":"+string(f.Type))
		contentEntries = append(contentEntries, f.Path+"="+f.Value.Canonical())
	}

	// Content entries are digested per pair so the fingerprint keeps no
	// raw field values while still supporting set overlap.
	contentSet := make([]string, 0, len(contentEntries))
	for _, entry := range contentEntries {
		contentSet = append(contentSet, shortDigest(entry))
	}

	styleSet := styleFeatures(fields)
	keywords := semanticTokens(fields, e.config.TopKeywords)

	return &models.Fingerprint{
		DocumentID:     documentID,
		StructuralHash: hashStrings(structuralSet),
		ContentHash:    hashStrings(sorted(contentEntries)),
		StyleHash:      hashStrings(sorted(styleSet)),
		SemanticHash:   hashStrings(sorted(keywords)),
		Keywords:       keywords,
		CreatedAt:      time.Now().UTC(),
		StructuralSet:  structuralSet,
		ContentSet:     contentSet,
		StyleSet:       styleSet,
	}, nil
}

func hashStrings(parts []string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func shortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func sorted(parts []string) []string {
	out := make([]string, len(parts))
	copy(out, parts)
	sort.Strings(out)
	return out
}

// StructuralHash computes the schema-shape hash for already-flattened
// fields. Used directly by the template fraud scan so corpus documents are
// only flattened once.
func StructuralHash(fields []models.FlatField) string {
	set := make([]string, 0, len(fields))
	for _, f := range fields {
		set = append(set, f.Path+":"+string(f.Type))
	}
	return hashStrings(set)
}

// StructuralHashOf is a convenience for callers that only need the schema
// shape hash of a raw document.
func (e *Engine) StructuralHashOf(doc map[string]any) (string, error) {
	fields, err := e.extractor.Flatten(doc)
	if err != nil {
		return "", err
	}
	return StructuralHash(fields), nil
}

// keySegments splits a path into its key names, dropping array indices.
func keySegments(path string) []string {
	cleaned := path
	if i := strings.IndexByte(cleaned, '['); i >= 0 {
		// Strip every [i] suffix so items[0].amount yields items, amount.
		var b strings.Builder
		depth := 0
		for _, r := range cleaned {
			switch r {
			case '[':
				depth++
			case ']':
				depth--
			default:
				if depth == 0 {
					b.WriteRune(r)
				}
			}
		}
		cleaned = b.String()
	}
	return strings.Split(cleaned, ".")
}
