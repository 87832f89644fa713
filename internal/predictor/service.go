// Package predictor scores customers for churn risk and expected spend.
//
// The Service owns a single model guarded by a RWMutex. It starts untrained,
// can Load a model saved by an earlier run and can be retrained at any time;
// predictions made during a retrain see either the old or the new model.
package predictor

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotTrained is returned by Predict and Save before a model exists.
var ErrNotTrained = errors.New("predictor is not trained")

const modelFile = "model.json"

// Risk levels derived from churn probability.
const (
	RiskHigh   = "High"
	RiskMedium = "Medium"
	RiskLow    = "Low"
)

// Prediction is the score for one customer.
type Prediction struct {
	WillChurn        bool
	ChurnProbability float64
	PredictedSpend   float64
	RiskLevel        string
}

// RiskLevel buckets a churn probability.
func RiskLevel(p float64) string {
	switch {
	case p > 0.7:
		return RiskHigh
	case p > 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Service holds the current model.
type Service struct {
	mu    sync.RWMutex
	model *Model
	now   func() time.Time
}

// New creates an untrained Service.
func New() *Service {
	return &Service{now: time.Now}
}

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Metrics returns the metrics of the current model.
func (s *Service) Metrics() (Metrics, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return Metrics{}, time.Time{}, ErrNotTrained
	}
	return s.model.Metrics, s.model.TrainedAt, nil
}

// Load reads a saved model from dir. A missing file is not an error and
// leaves the Service as it was; it reports whether a model was loaded.
func (s *Service) Load(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrap(err, "read model")
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return false, errors.Wrap(err, "decode model")
	}
	if w := m.Encoder.width(); len(m.Churn.Weights) != w || len(m.Spend.Weights) != w {
		return false, errors.Errorf("model weights do not match encoder width %d", w)
	}

	s.mu.Lock()
	s.model = &m
	s.mu.Unlock()
	return true, nil
}

// Save writes the current model to dir, creating it if needed.
func (s *Service) Save(dir string) error {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m == nil {
		return ErrNotTrained
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode model")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create model dir")
	}
	// Write then rename so a concurrent Load never sees a partial file.
	tmp := filepath.Join(dir, modelFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write model")
	}
	if err := os.Rename(tmp, filepath.Join(dir, modelFile)); err != nil {
		return errors.Wrap(err, "replace model")
	}
	return nil
}

// Train fits both models on rows, holding out a fifth of them for
// evaluation, and swaps the result in.
func (s *Service) Train(rows []Row) (Metrics, error) {
	if len(rows) < 10 {
		return Metrics{}, errors.Errorf("need at least 10 rows, got %d", len(rows))
	}

	shuffled := make([]Row, len(rows))
	for i, j := range rand.New(rand.NewPCG(42, 42)).Perm(len(rows)) {
		shuffled[i] = rows[j]
	}
	nTest := len(rows) / 5
	test, train := shuffled[:nTest], shuffled[nTest:]

	enc := fitEncoder(train)
	xs := make([][]float64, len(train))
	var spendMean, spendVar float64
	for i, r := range train {
		xs[i] = enc.encode(r.Features)
		spendMean += r.Spend / float64(len(train))
	}
	for _, r := range train {
		d := r.Spend - spendMean
		spendVar += d * d / float64(len(train))
	}
	spendStd := math.Sqrt(spendVar)
	if spendStd == 0 {
		spendStd = 1
	}

	m := &Model{
		TrainedAt: s.now(),
		Encoder:   enc,
		SpendMean: spendMean,
		SpendStd:  spendStd,
	}
	m.Churn = fitGD(xs, func(i int, out float64) float64 {
		return sigmoid(out) - indicator(train[i].WillChurn)
	})
	m.Spend = fitGD(xs, func(i int, out float64) float64 {
		return out - (train[i].Spend-spendMean)/spendStd
	})

	m.Metrics = evaluate(m, test)
	m.Metrics.TrainSamples = len(train)
	m.Metrics.ChurnImportance = importance(enc, m.Churn)
	m.Metrics.SpendImportance = importance(enc, m.Spend)

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
	return m.Metrics, nil
}

func evaluate(m *Model, test []Row) Metrics {
	var (
		correct      int
		mean, ss, se float64
	)
	for _, r := range test {
		mean += r.Spend / float64(len(test))
	}
	for _, r := range test {
		x := m.Encoder.encode(r.Features)
		if (m.churnProbability(x) >= 0.5) == r.WillChurn {
			correct++
		}
		d := m.spend(x) - r.Spend
		se += d * d
		t := r.Spend - mean
		ss += t * t
	}
	metrics := Metrics{
		ChurnAccuracy: float64(correct) / float64(len(test)),
		SpendRMSE:     math.Sqrt(se / float64(len(test))),
		TestSamples:   len(test),
	}
	if ss > 0 {
		metrics.SpendR2 = 1 - se/ss
	}
	return metrics
}

// Predict scores one customer.
func (s *Service) Predict(f Features) (Prediction, error) {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m == nil {
		return Prediction{}, ErrNotTrained
	}

	x := m.Encoder.encode(f)
	p := m.churnProbability(x)
	return Prediction{
		WillChurn:        p >= 0.5,
		ChurnProbability: p,
		PredictedSpend:   math.Round(m.spend(x)*100) / 100,
		RiskLevel:        RiskLevel(p),
	}, nil
}

// Retrain generates a fresh synthetic dataset of n rows, trains on it and
// persists the model to dir when dir is set.
func (s *Service) Retrain(n int, seed uint64, dir string) (Metrics, error) {
	metrics, err := s.Train(Generate(n, seed))
	if err != nil {
		return Metrics{}, errors.Wrap(err, "train")
	}
	if dir == "" {
		return metrics, nil
	}
	if err := s.Save(dir); err != nil {
		return Metrics{}, errors.Wrap(err, "save")
	}
	return metrics, nil
}
