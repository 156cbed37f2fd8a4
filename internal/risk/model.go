package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/integrityx/forensics/pkg/models"
)

// ErrInvalidConfig indicates the supplied weights or thresholds violate
// basic invariants. Raised at construction, never at call time.
var ErrInvalidConfig = errors.New("invalid risk configuration")

// Pattern names attached to suspicious changes.
const (
	PatternRoundNumber    = "round_number"
	PatternRapidEditRun   = "rapid_edit_run"
	PatternOffHoursChange = "off_hours_change"
)

// Config holds the risk model policy constants. Every numeric constant is
// tunable; the defaults reproduce the documented scoring behavior.
type Config struct {
	// BaseRisk maps a field type to its inherent change risk.
	BaseRisk map[models.FieldType]float64

	// Magnitude multiplier tiers for numeric changes, keyed by relative
	// change ratio.
	MagnitudeHuge   float64 // ratio > 1.00
	MagnitudeLarge  float64 // ratio > 0.50
	MagnitudeMedium float64 // ratio > 0.25

	// Additive pattern bonuses. Bonuses stack and the final score is
	// clamped to [0,1].
	RoundNumberBonus float64
	RapidEditBonus   float64
	OffHoursBonus    float64

	// Round denominators by magnitude of the new value.
	RoundDenomSmall    float64 // |new| below RoundDenomCutoff
	RoundDenomLarge    float64 // |new| at or above RoundDenomCutoff
	RoundDenomCutoff   float64
	RapidEditThreshold int // modifications by same actor within the window

	// Business hours bounds for the off-hours bonus, local time.
	BusinessHourStart int
	BusinessHourEnd   int

	// Bucketing thresholds, must be strictly decreasing.
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
}

// DefaultConfig returns the default risk policy.
func DefaultConfig() Config {
	return Config{
		BaseRisk: map[models.FieldType]float64{
			models.FieldFinancial: 0.95,
			models.FieldIdentity:  0.90,
			models.FieldSignature: 0.85,
			models.FieldDate:      0.70,
			models.FieldText:      0.50,
		},
		MagnitudeHuge:      1.5,
		MagnitudeLarge:     1.3,
		MagnitudeMedium:    1.1,
		RoundNumberBonus:   0.10,
		RapidEditBonus:     0.15,
		OffHoursBonus:      0.20,
		RoundDenomSmall:    1000,
		RoundDenomLarge:    50000,
		RoundDenomCutoff:   100000,
		RapidEditThreshold: 3,
		BusinessHourStart:  6,
		BusinessHourEnd:    22,
		CriticalThreshold:  0.9,
		HighThreshold:      0.7,
		MediumThreshold:    0.4,
	}
}

// ChangeContext carries optional caller-supplied context about a change.
// Without it only the round-number bonus can trigger.
type ChangeContext struct {
	// Timestamp of the change, used for the off-hours bonus.
	Timestamp time.Time

	// ActorEditsInWindow is the number of modifications the same actor
	// made within the rapid-edit window, this change included.
	ActorEditsInWindow int
}

// Model scores individual field changes. Pure: identical inputs always
// produce identical output.
type Model struct {
	config Config
}

// NewModel validates the configuration and returns a risk model.
func NewModel(config Config) (*Model, error) {
	def := DefaultConfig()
	if config.BaseRisk == nil {
		config.BaseRisk = def.BaseRisk
	}
	if config.MagnitudeHuge == 0 {
		config.MagnitudeHuge = def.MagnitudeHuge
	}
	if config.MagnitudeLarge == 0 {
		config.MagnitudeLarge = def.MagnitudeLarge
	}
	if config.MagnitudeMedium == 0 {
		config.MagnitudeMedium = def.MagnitudeMedium
	}
	if config.RoundNumberBonus == 0 {
		config.RoundNumberBonus = def.RoundNumberBonus
	}
	if config.RapidEditBonus == 0 {
		config.RapidEditBonus = def.RapidEditBonus
	}
	if config.OffHoursBonus == 0 {
		config.OffHoursBonus = def.OffHoursBonus
	}
	if config.RoundDenomSmall == 0 {
		config.RoundDenomSmall = def.RoundDenomSmall
	}
	if config.RoundDenomLarge == 0 {
		config.RoundDenomLarge = def.RoundDenomLarge
	}
	if config.RoundDenomCutoff == 0 {
		config.RoundDenomCutoff = def.RoundDenomCutoff
	}
	if config.RapidEditThreshold == 0 {
		config.RapidEditThreshold = def.RapidEditThreshold
	}
	if config.BusinessHourStart == 0 && config.BusinessHourEnd == 0 {
		config.BusinessHourStart = def.BusinessHourStart
		config.BusinessHourEnd = def.BusinessHourEnd
	}
	if config.CriticalThreshold == 0 {
		config.CriticalThreshold = def.CriticalThreshold
	}
	if config.HighThreshold == 0 {
		config.HighThreshold = def.HighThreshold
	}
	if config.MediumThreshold == 0 {
		config.MediumThreshold = def.MediumThreshold
	}

	for ft, base := range config.BaseRisk {
		if base < 0 || base > 1 {
			return nil, fmt.Errorf("%w: base risk for %s out of [0,1]", ErrInvalidConfig, ft)
		}
	}
	if config.RoundNumberBonus < 0 || config.RapidEditBonus < 0 || config.OffHoursBonus < 0 {
		return nil, fmt.Errorf("%w: negative pattern bonus", ErrInvalidConfig)
	}
	if config.RoundDenomSmall <= 0 || config.RoundDenomLarge <= 0 {
		return nil, fmt.Errorf("%w: round denominators must be positive", ErrInvalidConfig)
	}
	if !(config.CriticalThreshold > config.HighThreshold && config.HighThreshold > config.MediumThreshold) {
		return nil, fmt.Errorf("%w: bucket thresholds must be strictly decreasing", ErrInvalidConfig)
	}
	if config.BusinessHourStart < 0 || config.BusinessHourEnd > 24 || config.BusinessHourStart >= config.BusinessHourEnd {
		return nil, fmt.Errorf("%w: business hours out of range", ErrInvalidConfig)
	}

	return &Model{config: config}, nil
}

// Score computes the risk of a single field change along with the names of
// any suspicious patterns it triggered. old and new are nil for added and
// removed fields respectively.
func (m *Model) Score(fieldType models.FieldType, oldValue, newValue *models.Scalar, chg *ChangeContext) (float64, []string) {
	base, ok := m.config.BaseRisk[fieldType]
	if !ok {
		base = m.config.BaseRisk[models.FieldText]
	}

	score := base * m.magnitudeMultiplier(oldValue, newValue)

	var patterns []string
	if newValue != nil && newValue.Kind == models.KindNumber && m.isRoundNumber(newValue.Number) {
		score += m.config.RoundNumberBonus
		patterns = append(patterns, PatternRoundNumber)
	}
	if chg != nil {
		if chg.ActorEditsInWindow >= m.config.RapidEditThreshold {
			score += m.config.RapidEditBonus
			patterns = append(patterns, PatternRapidEditRun)
		}
		if !chg.Timestamp.IsZero() && m.isOffHours(chg.Timestamp) {
			score += m.config.OffHoursBonus
			patterns = append(patterns, PatternOffHoursChange)
		}
	}

	return clamp(score), patterns
}

// Bucket maps a risk score to its label. Non-decreasing in the score.
func (m *Model) Bucket(score float64) models.RiskLabel {
	switch {
	case score >= m.config.CriticalThreshold:
		return models.RiskCritical
	case score >= m.config.HighThreshold:
		return models.RiskHigh
	case score >= m.config.MediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// magnitudeMultiplier scales numeric changes by their relative size.
// Non-numeric or one-sided changes use a neutral multiplier.
func (m *Model) magnitudeMultiplier(oldValue, newValue *models.Scalar) float64 {
	if oldValue == nil || newValue == nil {
		return 1.0
	}
	if oldValue.Kind != models.KindNumber || newValue.Kind != models.KindNumber {
		return 1.0
	}

	const epsilon = 1e-9
	ratio := math.Abs(newValue.Number-oldValue.Number) / math.Max(math.Abs(oldValue.Number), epsilon)

	switch {
	case ratio > 1.0:
		return m.config.MagnitudeHuge
	case ratio > 0.5:
		return m.config.MagnitudeLarge
	case ratio > 0.25:
		return m.config.MagnitudeMedium
	default:
		return 1.0
	}
}

// isRoundNumber reports whether v lands on a suspiciously round boundary.
// The denominator scales with the magnitude of the value.
func (m *Model) isRoundNumber(v float64) bool {
	if v == 0 {
		return false
	}
	denom := m.config.RoundDenomSmall
	if math.Abs(v) >= m.config.RoundDenomCutoff {
		denom = m.config.RoundDenomLarge
	}
	return math.Mod(math.Abs(v), denom) == 0
}

// isOffHours reports whether t falls outside business hours or on a
// weekend, in t's own location.
func (m *Model) isOffHours(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return true
	}
	hour := t.Hour()
	return hour < m.config.BusinessHourStart || hour >= m.config.BusinessHourEnd
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
