package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func acmeBatch() BatchRecord {
	return BatchRecord{
		BatchNumber: "B-1",
		BatchTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ClientName:  "ACME Corp",
		FormulaCode: "C25",
		TotalVolume: decimal.RequireFromString("8.0"),
	}
}

func TestScore_AutoLinkScenario(t *testing.T) {
	s := NewScorer(nil)
	c := s.Score(acmeBatch(), DeliveryRecord{
		ID: 11, ClientName: "ACME", FormulaCode: "C25",
		Volume: decimal.RequireFromString("8.0"), Time: "10:05",
	})

	assert.Equal(t, LinkCandidate{
		DeliveryId: 11, Confidence: 90,
		DateScore: 25, ClientScore: 25, VolumeScore: 25, FormulaScore: 15,
	}, c)
	assert.Equal(t, LinkStateAutoLinked, Classify([]LinkCandidate{c}, DefaultThresholds()).State())
}

func TestScore_NoTimeScenario(t *testing.T) {
	s := NewScorer(nil)
	c := s.Score(acmeBatch(), DeliveryRecord{
		ID: 12, ClientName: "ACME", FormulaCode: "C25",
		Volume: decimal.RequireFromString("8.5"),
	})

	assert.Equal(t, 10, c.DateScore)
	assert.Equal(t, 25, c.ClientScore)
	assert.Equal(t, 15, c.VolumeScore)
	assert.Equal(t, 15, c.FormulaScore)
	assert.Equal(t, 65, c.Confidence)

	d := Classify([]LinkCandidate{c}, DefaultThresholds())
	assert.Equal(t, LinkStateNoMatch, d.State())
	_, linked := d.DeliveryId()
	assert.False(t, linked)
}

func TestDateScore_Tiers(t *testing.T) {
	bt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		tod      string
		expected int
	}{
		{"10:00", 25},
		{"09:30", 25},
		{"10:30:00", 25},
		{"10:31", 20},
		{"11:00", 20},
		{"08:30", 15},
		{"12:00", 15},
		{"12:01", 0},
		{"", 10},
		{"soon", 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, DateScore(bt, tc.tod), "time %q", tc.tod)
	}
}

func TestVolumeScore_Tiers(t *testing.T) {
	cases := []struct {
		batch, delivery string
		expected        int
	}{
		{"100", "102", 25},
		{"100", "98", 25},
		{"100", "105", 20},
		{"100", "110", 15},
		{"100", "110.01", 0},
		{"0", "5", 0},
	}
	for _, tc := range cases {
		got := VolumeScore(decimal.RequireFromString(tc.batch), decimal.RequireFromString(tc.delivery))
		assert.Equal(t, tc.expected, got, "%s vs %s", tc.batch, tc.delivery)
	}
}

func TestClientAndFormulaScore(t *testing.T) {
	s := NewScorer(ContainmentMatcher{})
	assert.Equal(t, 35, s.ClientScore("Acme-Corp.", "acme corp"))
	assert.Equal(t, 25, s.ClientScore("ACME Corp", "acme"))
	assert.Equal(t, 0, s.ClientScore("ACME", "Beta"))
	assert.Equal(t, 0, s.ClientScore("---", "ACME"))

	assert.Equal(t, 15, FormulaScore("c25", "C25"))
	assert.Equal(t, 15, FormulaScore("C25/S", "c25"))
	assert.Equal(t, 0, FormulaScore("C25", "C30"))
	assert.Equal(t, 0, FormulaScore("", "C30"))
}

func TestScore_FactorsStayInBoundsAndSum(t *testing.T) {
	s := NewScorer(NewEditDistanceMatcher())
	deliveries := []DeliveryRecord{
		{ID: 1, ClientName: "ACME Corp", FormulaCode: "C25", Volume: decimal.NewFromInt(8), Time: "10:00"},
		{ID: 2, ClientName: "Zeta", FormulaCode: "X", Volume: decimal.NewFromInt(100), Time: "23:00"},
		{ID: 3, ClientName: "", FormulaCode: "", Volume: decimal.Zero},
	}
	for _, c := range s.ScoreAll(acmeBatch(), deliveries) {
		assert.GreaterOrEqual(t, c.DateScore, 0)
		assert.LessOrEqual(t, c.DateScore, MaxDateScore)
		assert.GreaterOrEqual(t, c.ClientScore, 0)
		assert.LessOrEqual(t, c.ClientScore, MaxClientScore)
		assert.GreaterOrEqual(t, c.VolumeScore, 0)
		assert.LessOrEqual(t, c.VolumeScore, MaxVolumeScore)
		assert.GreaterOrEqual(t, c.FormulaScore, 0)
		assert.LessOrEqual(t, c.FormulaScore, MaxFormulaScore)
		assert.Equal(t, c.DateScore+c.ClientScore+c.VolumeScore+c.FormulaScore, c.Confidence)
		assert.LessOrEqual(t, c.Confidence, 100)
	}
}

func TestScoreAll_KeepsDeliveryOrder(t *testing.T) {
	got := NewScorer(nil).ScoreAll(acmeBatch(), []DeliveryRecord{{ID: 3}, {ID: 1}, {ID: 2}})
	ids := []int{got[0].DeliveryId, got[1].DeliveryId, got[2].DeliveryId}
	assert.Equal(t, []int{3, 1, 2}, ids)
}
