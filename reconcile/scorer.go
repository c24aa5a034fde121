package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Factor weights. A candidate's confidence is the sum of the four factors.
const (
	MaxDateScore    = 25
	MaxClientScore  = 35
	MaxVolumeScore  = 25
	MaxFormulaScore = 15

	// same day, but the delivery has no time to compare
	dateScoreNoTime = 10
)

var (
	volumeTier2Pct  = decimal.RequireFromString("0.02")
	volumeTier5Pct  = decimal.RequireFromString("0.05")
	volumeTier10Pct = decimal.RequireFromString("0.10")
)

var timeOfDayLayouts = []string{"15:04:05", "15:04"}

type Scorer struct {
	names NameMatcher
}

func NewScorer(names NameMatcher) *Scorer {
	if names == nil {
		names = ContainmentMatcher{}
	}
	return &Scorer{names: names}
}

// Score compares one batch with one delivery.
func (s *Scorer) Score(batch BatchRecord, delivery DeliveryRecord) LinkCandidate {
	c := LinkCandidate{
		DeliveryId:   delivery.ID,
		DateScore:    DateScore(batch.BatchTime, delivery.Time),
		ClientScore:  s.ClientScore(batch.ClientName, delivery.ClientName),
		VolumeScore:  VolumeScore(batch.TotalVolume, delivery.Volume),
		FormulaScore: FormulaScore(batch.FormulaCode, delivery.FormulaCode),
	}
	c.Confidence = c.DateScore + c.ClientScore + c.VolumeScore + c.FormulaScore
	return c
}

// ScoreAll keeps the delivery order.
func (s *Scorer) ScoreAll(batch BatchRecord, deliveries []DeliveryRecord) []LinkCandidate {
	out := make([]LinkCandidate, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, s.Score(batch, d))
	}
	return out
}

// DateScore places the delivery's time of day on the batch's calendar day.
// Within 30 min -> 25, 60 min -> 20, 2 h -> 15, further -> 0. No time -> 10.
func DateScore(batchTime time.Time, timeOfDay string) int {
	tod, ok := parseTimeOfDay(timeOfDay)
	if !ok {
		return dateScoreNoTime
	}
	y, m, d := batchTime.Date()
	at := time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, batchTime.Location())

	diff := batchTime.Sub(at)
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 30*time.Minute:
		return 25
	case diff <= 60*time.Minute:
		return 20
	case diff <= 2*time.Hour:
		return 15
	}
	return 0
}

func parseTimeOfDay(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Scorer) ClientScore(batchClient, deliveryClient string) int {
	switch s.names.MatchName(batchClient, deliveryClient) {
	case NameMatchExact:
		return MaxClientScore
	case NameMatchPartial:
		return 25
	}
	return 0
}

// VolumeScore grades |delivery - batch| / batch. A zero batch volume scores 0.
func VolumeScore(batchVolume, deliveryVolume decimal.Decimal) int {
	if batchVolume.IsZero() {
		return 0
	}
	pct := deliveryVolume.Sub(batchVolume).Abs().Div(batchVolume.Abs())
	switch {
	case pct.LessThanOrEqual(volumeTier2Pct):
		return 25
	case pct.LessThanOrEqual(volumeTier5Pct):
		return 20
	case pct.LessThanOrEqual(volumeTier10Pct):
		return 15
	}
	return 0
}

// FormulaScore is all-or-nothing: case-insensitive equality or containment.
func FormulaScore(batchFormula, deliveryFormula string) int {
	a := strings.ToLower(strings.TrimSpace(batchFormula))
	b := strings.ToLower(strings.TrimSpace(deliveryFormula))
	if a == "" || b == "" {
		return 0
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return MaxFormulaScore
	}
	return 0
}
