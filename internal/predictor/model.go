package predictor

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// encoder standardizes numeric features and one-hot encodes categoricals.
// Unseen categories encode as all zeros.
type encoder struct {
	Means      []float64  `json:"means"`
	Stds       []float64  `json:"stds"`
	Categories [][]string `json:"categories"`
}

func fitEncoder(rows []Row) encoder {
	e := encoder{
		Means:      make([]float64, len(numericNames)),
		Stds:       make([]float64, len(numericNames)),
		Categories: make([][]string, len(categoricalNames)),
	}
	n := float64(len(rows))
	for _, r := range rows {
		for j, v := range r.numeric() {
			e.Means[j] += v / n
		}
	}
	for _, r := range rows {
		for j, v := range r.numeric() {
			d := v - e.Means[j]
			e.Stds[j] += d * d / n
		}
	}
	for j := range e.Stds {
		e.Stds[j] = math.Sqrt(e.Stds[j])
		if e.Stds[j] == 0 {
			e.Stds[j] = 1
		}
	}

	seen := make([]map[string]struct{}, len(categoricalNames))
	for j := range seen {
		seen[j] = make(map[string]struct{})
	}
	for _, r := range rows {
		for j, v := range r.categorical() {
			seen[j][v] = struct{}{}
		}
	}
	for j, set := range seen {
		cats := make([]string, 0, len(set))
		for c := range set {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
	return e
}

func (e encoder) width() int {
	w := len(e.Means)
	for _, c := range e.Categories {
		w += len(c)
	}
	return w
}

func (e encoder) encode(f Features) []float64 {
	x := make([]float64, 0, e.width())
	for j, v := range f.numeric() {
		x = append(x, (v-e.Means[j])/e.Stds[j])
	}
	for j, v := range f.categorical() {
		for _, c := range e.Categories[j] {
			x = append(x, indicator(c == v))
		}
	}
	return x
}

// source maps every encoded column back to the feature it came from.
func (e encoder) source() []string {
	names := slices.Clone(numericNames)
	for j, cats := range e.Categories {
		for range cats {
			names = append(names, categoricalNames[j])
		}
	}
	return names
}

// linear is a weight vector plus bias.
type linear struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (l linear) eval(x []float64) float64 {
	z := l.Bias
	for i, w := range l.Weights {
		z += w * x[i]
	}
	return z
}

const (
	learningRate = 0.1
	epochs       = 400
	l2           = 1e-3
)

// fitGD runs full-batch gradient descent. grad returns the derivative of
// the loss with respect to the model output for sample i.
func fitGD(xs [][]float64, grad func(i int, out float64) float64) linear {
	m := linear{Weights: make([]float64, len(xs[0]))}
	gw := make([]float64, len(m.Weights))
	n := float64(len(xs))
	for range epochs {
		clear(gw)
		var gb float64
		for i, x := range xs {
			g := grad(i, m.eval(x))
			for j, v := range x {
				gw[j] += g * v
			}
			gb += g
		}
		for j := range m.Weights {
			m.Weights[j] -= learningRate * (gw[j]/n + l2*m.Weights[j])
		}
		m.Bias -= learningRate * gb / n
	}
	return m
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Model is the persisted predictor state.
type Model struct {
	TrainedAt time.Time `json:"trained_at"`
	Encoder   encoder   `json:"encoder"`
	Churn     linear    `json:"churn"`
	Spend     linear    `json:"spend"`
	SpendMean float64   `json:"spend_mean"`
	SpendStd  float64   `json:"spend_std"`
	Metrics   Metrics   `json:"metrics"`
}

func (m *Model) churnProbability(x []float64) float64 {
	return sigmoid(m.Churn.eval(x))
}

func (m *Model) spend(x []float64) float64 {
	return math.Max(m.SpendMean+m.SpendStd*m.Spend.eval(x), 0)
}

// FeatureImportance is the share of a model's absolute weight attributed
// to one input feature.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Metrics describes a training run, evaluated on the holdout split.
type Metrics struct {
	ChurnAccuracy   float64             `json:"churn_accuracy"`
	SpendR2         float64             `json:"spend_r2"`
	SpendRMSE       float64             `json:"spend_rmse"`
	TrainSamples    int                 `json:"train_samples"`
	TestSamples     int                 `json:"test_samples"`
	ChurnImportance []FeatureImportance `json:"churn_importance"`
	SpendImportance []FeatureImportance `json:"spend_importance"`
}

func importance(e encoder, l linear) []FeatureImportance {
	byFeature := make(map[string]float64)
	var total float64
	for i, src := range e.source() {
		w := math.Abs(l.Weights[i])
		byFeature[src] += w
		total += w
	}
	out := make([]FeatureImportance, 0, len(byFeature))
	for f, w := range byFeature {
		if total > 0 {
			w /= total
		}
		out = append(out, FeatureImportance{Feature: f, Importance: w})
	}
	slices.SortFunc(out, func(a, b FeatureImportance) int {
		if c := cmp.Compare(b.Importance, a.Importance); c != 0 {
			return c
		}
		return strings.Compare(a.Feature, b.Feature)
	})
	return out
}
