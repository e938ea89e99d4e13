package service

import (
	"github.com/opencouncil/councild/internal/domain/evaluation"
)

// Aggregate holds the summary statistics computed over a set of final
// evaluations.
type Aggregate struct {
	AverageScore      float64
	AverageConfidence float64
	ScoreVariance     float64

	RecommendationCounts map[evaluation.Recommendation]int
	Unanimous            bool

	MinScore float64
	MaxScore float64
}

// AggregateEvaluations reduces the council's final evaluations to summary
// statistics. Degraded evaluations count like any other: their neutral score
// and zero confidence drag the averages toward review, which is the intent.
func AggregateEvaluations(evals []*evaluation.Evaluation) Aggregate {
	if len(evals) == 0 {
		return Aggregate{
			AverageScore:         0.5,
			RecommendationCounts: map[evaluation.Recommendation]int{},
		}
	}

	agg := Aggregate{
		RecommendationCounts: make(map[evaluation.Recommendation]int),
		MinScore:             evals[0].Score,
		MaxScore:             evals[0].Score,
	}

	var scoreSum, confSum float64
	for _, e := range evals {
		scoreSum += e.Score
		confSum += e.Confidence
		agg.RecommendationCounts[e.Recommendation]++
		if e.Score < agg.MinScore {
			agg.MinScore = e.Score
		}
		if e.Score > agg.MaxScore {
			agg.MaxScore = e.Score
		}
	}

	n := float64(len(evals))
	agg.AverageScore = scoreSum / n
	agg.AverageConfidence = confSum / n

	var varSum float64
	for _, e := range evals {
		d := e.Score - agg.AverageScore
		varSum += d * d
	}
	agg.ScoreVariance = varSum / n

	agg.Unanimous = len(agg.RecommendationCounts) == 1

	return agg
}
