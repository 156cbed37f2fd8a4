package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/integrityx/forensics/pkg/models"
)

// Anomaly type names.
const (
	AnomalyRapidModification = "rapid_modification"
	AnomalyUnusualAccessTime = "unusual_access_time"
	AnomalyUnusualEventOrder = "unusual_event_order"
	AnomalyMissingSeal       = "missing_blockchain_seal"
)

// Config holds the timeline analysis thresholds.
type Config struct {
	// RapidWindow is the sliding window for the rapid-modification check.
	RapidWindow time.Duration

	// RapidThreshold is the number of modifications within the window
	// that triggers an anomaly.
	RapidThreshold int

	// Business hours bounds for the off-hours check, local time.
	BusinessHourStart int
	BusinessHourEnd   int
}

// DefaultConfig returns the default timeline policy.
func DefaultConfig() Config {
	return Config{
		RapidWindow:       5 * time.Minute,
		RapidThreshold:    3,
		BusinessHourStart: 6,
		BusinessHourEnd:   22,
	}
}

// Analyzer flags temporal anomalies in a single document's event log.
type Analyzer struct {
	config Config
}

// NewAnalyzer validates the configuration and returns an analyzer.
func NewAnalyzer(config Config) (*Analyzer, error) {
	def := DefaultConfig()
	if config.RapidWindow == 0 {
		config.RapidWindow = def.RapidWindow
	}
	if config.RapidThreshold == 0 {
		config.RapidThreshold = def.RapidThreshold
	}
	if config.BusinessHourStart == 0 && config.BusinessHourEnd == 0 {
		config.BusinessHourStart = def.BusinessHourStart
		config.BusinessHourEnd = def.BusinessHourEnd
	}

	if config.RapidWindow < 0 || config.RapidThreshold < 0 {
		return nil, fmt.Errorf("timeline: negative rapid-modification threshold")
	}
	if config.BusinessHourStart < 0 || config.BusinessHourEnd > 24 || config.BusinessHourStart >= config.BusinessHourEnd {
		return nil, fmt.Errorf("timeline: business hours out of range")
	}

	return &Analyzer{config: config}, nil
}

// Analyze runs all checks over an event log pre-sorted by timestamp. The
// input is never mutated or reordered. Anomalies come back in timestamp
// order of their triggering evidence; the caller sorts by severity if it
// wants a different presentation.
func (a *Analyzer) Analyze(events []models.TimelineEvent) []models.TimelineAnomaly {
	anomalies := make([]models.TimelineAnomaly, 0)

	anomalies = append(anomalies, a.checkRapidModification(events)...)
	anomalies = append(anomalies, a.checkOffHours(events)...)
	anomalies = append(anomalies, a.checkSequence(events)...)
	anomalies = append(anomalies, a.checkMissingSeal(events)...)

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Evidence[0].Timestamp.Before(anomalies[j].Evidence[0].Timestamp)
	})

	return anomalies
}

// checkRapidModification finds runs of modifications dense enough to fit
// RapidThreshold events inside the sliding window. Overlapping windows
// merge into a single anomaly per run.
func (a *Analyzer) checkRapidModification(events []models.TimelineEvent) []models.TimelineAnomaly {
	var mods []models.TimelineEvent
	for _, ev := range events {
		if ev.EventType == models.EventModified {
			mods = append(mods, ev)
		}
	}
	if len(mods) < a.config.RapidThreshold {
		return nil
	}

	inRun := make([]bool, len(mods))
	lo := 0
	for hi := range mods {
		for mods[hi].Timestamp.Sub(mods[lo].Timestamp) > a.config.RapidWindow {
			lo++
		}
		if hi-lo+1 >= a.config.RapidThreshold {
			for i := lo; i <= hi; i++ {
				inRun[i] = true
			}
		}
	}

	var anomalies []models.TimelineAnomaly
	for i := 0; i < len(mods); {
		if !inRun[i] {
			i++
			continue
		}
		j := i
		for j < len(mods) && inRun[j] {
			j++
		}
		evidence := append([]models.TimelineEvent(nil), mods[i:j]...)
		anomalies = append(anomalies, models.TimelineAnomaly{
			AnomalyType: AnomalyRapidModification,
			Severity:    models.SeverityHigh,
			Evidence:    evidence,
			Description: fmt.Sprintf("%d modifications within a %s window", j-i, a.config.RapidWindow),
		})
		i = j
	}

	return anomalies
}

// checkOffHours flags events outside business hours or on weekends.
// Severity scales with the event type: modifications and verification
// attempts outweigh passive reads.
func (a *Analyzer) checkOffHours(events []models.TimelineEvent) []models.TimelineAnomaly {
	var anomalies []models.TimelineAnomaly
	for _, ev := range events {
		if !a.isOffHours(ev.Timestamp) {
			continue
		}

		severity := models.SeverityMedium
		switch ev.EventType {
		case models.EventModified, models.EventVerificationAttempt:
			severity = models.SeverityHigh
		case models.EventAccessed:
			severity = models.SeverityLow
		}

		anomalies = append(anomalies, models.TimelineAnomaly{
			AnomalyType: AnomalyUnusualAccessTime,
			Severity:    severity,
			Evidence:    []models.TimelineEvent{ev},
			Description: fmt.Sprintf("%s event at %s, outside business hours", ev.EventType, ev.Timestamp.Format(time.RFC3339)),
		})
	}
	return anomalies
}

// checkSequence enforces the canonical created -> modified* -> signed ->
// sealed ordering.
func (a *Analyzer) checkSequence(events []models.TimelineEvent) []models.TimelineAnomaly {
	var anomalies []models.TimelineAnomaly

	var signedAt *models.TimelineEvent
	sawSigned := false
	for i := range events {
		ev := events[i]
		switch ev.EventType {
		case models.EventSigned:
			if !sawSigned {
				sawSigned = true
				signedAt = &events[i]
			}
		case models.EventModified:
			if sawSigned {
				anomalies = append(anomalies, models.TimelineAnomaly{
					AnomalyType: AnomalyUnusualEventOrder,
					Severity:    models.SeverityHigh,
					Evidence:    []models.TimelineEvent{*signedAt, ev},
					Description: "document modified after signing",
				})
			}
		case models.EventSealed:
			if !sawSigned {
				anomalies = append(anomalies, models.TimelineAnomaly{
					AnomalyType: AnomalyUnusualEventOrder,
					Severity:    models.SeverityMedium,
					Evidence:    []models.TimelineEvent{ev},
					Description: "document sealed without a preceding signature",
				})
			}
		}
	}

	return anomalies
}

// checkMissingSeal flags signed events never followed by a seal within the
// observed log.
func (a *Analyzer) checkMissingSeal(events []models.TimelineEvent) []models.TimelineAnomaly {
	var anomalies []models.TimelineAnomaly
	for i, ev := range events {
		if ev.EventType != models.EventSigned {
			continue
		}
		sealed := false
		for _, later := range events[i+1:] {
			if later.EventType == models.EventSealed {
				sealed = true
				break
			}
		}
		if !sealed {
			anomalies = append(anomalies, models.TimelineAnomaly{
				AnomalyType: AnomalyMissingSeal,
				Severity:    models.SeverityHigh,
				Evidence:    []models.TimelineEvent{ev},
				Description: "signed document was never sealed to the ledger",
			})
		}
	}
	return anomalies
}

func (a *Analyzer) isOffHours(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return true
	}
	hour := t.Hour()
	return hour < a.config.BusinessHourStart || hour >= a.config.BusinessHourEnd
}
