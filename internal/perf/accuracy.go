package perf

import (
	"math"

	"strategylab/internal/domain"
	"strategylab/internal/stats"
)

// Weights of the direction and magnitude components of a prediction score.
const (
	directionWeight = 0.7
	magnitudeWeight = 0.3
)

// MinCorrelationSamples is the number of scored predictions required before
// a confidence/accuracy correlation is reported.
const MinCorrelationSamples = 10

// OutcomeHorizon is the number of trading days after a prediction within
// which the close that realizes it must fall.
const OutcomeHorizon = 5

// ScorePrediction rates a prediction against its realized outcome on [0, 1].
// A matching direction scores 1. When the prediction carries an expected
// return and the realized change is non-zero, the score blends direction
// (70%) with magnitude accuracy (30%).
func ScorePrediction(p domain.Prediction, o domain.Outcome) float64 {
	dir := 0.0
	if p.Direction == o.Direction {
		dir = 1.0
	}
	if p.ExpectedReturn == nil || o.Change == 0 {
		return dir
	}
	mag := math.Max(0, 1-math.Abs(*p.ExpectedReturn-o.Change)/math.Abs(o.Change))
	return directionWeight*dir + magnitudeWeight*mag
}

// Scored pairs a prediction's stated confidence with its resulting accuracy.
type Scored struct {
	Symbol     string
	Confidence float64
	Accuracy   float64
}

// Accuracy summarises a set of scored predictions.
type Accuracy struct {
	Mean        float64 // 0-1
	Correlation float64
	Count       int
}

// Summarize returns the mean accuracy and the confidence/accuracy Pearson
// correlation, the latter only with at least MinCorrelationSamples entries.
func Summarize(scored []Scored) Accuracy {
	if len(scored) == 0 {
		return Accuracy{}
	}
	conf := make([]float64, len(scored))
	acc := make([]float64, len(scored))
	for i, s := range scored {
		conf[i] = s.Confidence
		acc[i] = s.Accuracy
	}
	out := Accuracy{Mean: stats.Mean(acc), Count: len(scored)}
	if len(scored) >= MinCorrelationSamples {
		out.Correlation = stats.Pearson(conf, acc)
	}
	return out
}
