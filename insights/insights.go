// Package insights produces the school "climate" dashboard numbers.
//
// IMPORTANT: the sentiment and burnout figures here are MOCKED. There is no
// model behind StubGenerator; it exists so the dashboard has a stable surface
// while a real analytics provider is evaluated. Only the participation rate
// is computed from real data. Keep anything that consumes this package aware
// of that distinction.
package insights

import (
	"math/rand"

	"github.com/kindred-inc/kindred-api/schema"
)

// ClimateReport is a school-wide, non-individualized rollup.
type ClimateReport struct {
	SchoolID          string  `json:"school_id"`
	ParticipationRate float64 `json:"participation_rate"`
	SentimentScore    float64 `json:"sentiment_score"`
	KindnessIndex     float64 `json:"kindness_index"`
	BurnoutRisk       float64 `json:"burnout_risk"`
	Mocked            bool    `json:"mocked"`
}

// Generator produces climate reports from consent rollups.
type Generator interface {
	GenerateClimateReport(schoolID string, consentCounts map[schema.ConsentStatus]int64) ClimateReport
}

// StubGenerator returns canned numbers. The seed keeps a school's mocked
// figures stable across requests so dashboards don't flicker.
type StubGenerator struct{}

func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

func (g *StubGenerator) GenerateClimateReport(schoolID string, consentCounts map[schema.ConsentStatus]int64) ClimateReport {
	rng := rand.New(rand.NewSource(seedFor(schoolID)))

	return ClimateReport{
		SchoolID:          schoolID,
		ParticipationRate: ParticipationRate(consentCounts),
		SentimentScore:    55 + rng.Float64()*35,
		KindnessIndex:     40 + rng.Float64()*50,
		BurnoutRisk:       rng.Float64() * 30,
		Mocked:            true,
	}
}

// ParticipationRate is the one real number in the report: the share of
// resolved consent records that ended approved. Pending and expired records
// are excluded from the denominator.
func ParticipationRate(counts map[schema.ConsentStatus]int64) float64 {
	approved := counts[schema.ConsentStatusApproved]
	resolved := approved + counts[schema.ConsentStatusDenied] + counts[schema.ConsentStatusRevoked]

	if resolved == 0 {
		return 0
	}
	return float64(approved) / float64(resolved) * 100
}

func seedFor(schoolID string) int64 {
	var seed int64
	for _, r := range schoolID {
		seed = seed*31 + int64(r)
	}
	return seed
}
