package predictor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
)

// Messages returns human readable advice for a prediction.
func Messages(p Prediction) []string {
	var out []string
	switch p.RiskLevel {
	case RiskHigh:
		out = append(out,
			"High churn risk: immediate retention action recommended",
			"Consider offering a personalized discount or loyalty reward",
		)
	case RiskMedium:
		out = append(out,
			"Medium churn risk: monitor engagement closely",
			"Consider a targeted email campaign",
		)
	default:
		out = append(out, "Low churn risk: customer appears engaged")
	}
	switch spend := p.PredictedSpend; {
	case spend > 500:
		out = append(out,
			fmt.Sprintf("High value customer, predicted to spend $%.0f", spend),
			"Target with premium product recommendations",
		)
	case spend > 100:
		out = append(out,
			fmt.Sprintf("Moderate spender, predicted to spend $%.0f", spend),
			"Cross-sell opportunities available",
		)
	default:
		out = append(out,
			fmt.Sprintf("Low spending predicted: $%.0f", spend),
			"Focus on engagement and value demonstration",
		)
	}
	return out
}

// Directory is the customer lookup the Analyzer needs.
type Directory interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
	List(ctx context.Context) ([]customer.Customer, error)
}

// History lists the orders of an account.
type History interface {
	ListForAccount(ctx context.Context, accountID string) ([]order.Order, error)
}

// CustomerPrediction is a prediction tied to a customer.
type CustomerPrediction struct {
	CustomerID   string
	CustomerName string
	Prediction
	Messages []string
	ScoredAt time.Time
}

// Report aggregates predictions over many customers.
type Report struct {
	Analyzed              int
	HighRisk              int
	MediumRisk            int
	LowRisk               int
	AvgChurnProbability   float64
	TotalPredictedRevenue float64
	TopSpenders           []CustomerPrediction
	Metrics               Metrics
	TrainedAt             time.Time
}

// Batch is the outcome of scoring every stored customer.
type Batch struct {
	// Processed counts the customers scored, which may exceed
	// len(Predictions).
	Processed   int
	Predictions []CustomerPrediction
	ScoredAt    time.Time
}

const (
	topSpenders = 10
	// BatchLimit caps the predictions returned by BatchPredict.
	BatchLimit = 50
	// RecentCapacity is how many predictions the Analyzer remembers.
	RecentCapacity = 100
)

// Analyzer joins stored customers and orders with the predictor.
type Analyzer struct {
	model       *Service
	customers   Directory
	orders      History
	concurrency int
	now         func() time.Time
	recent      recentLog
}

// NewAnalyzer creates an Analyzer running at most concurrency predictions
// at once.
func NewAnalyzer(model *Service, customers Directory, orders History, concurrency int) *Analyzer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Analyzer{
		model:       model,
		customers:   customers,
		orders:      orders,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// PredictCustomer scores a single stored customer.
func (a *Analyzer) PredictCustomer(ctx context.Context, customerID string) (*CustomerPrediction, error) {
	if !a.model.Ready() {
		return nil, ErrNotTrained
	}
	c, err := a.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return a.predict(ctx, *c)
}

func (a *Analyzer) predict(ctx context.Context, c customer.Customer) (*CustomerPrediction, error) {
	orders, err := a.orders.ListForAccount(ctx, c.AccountID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of %s", c.ID)
	}
	now := a.now()
	p, err := a.model.Predict(Extract(c, orders, now))
	if err != nil {
		return nil, err
	}
	cp := CustomerPrediction{
		CustomerID:   c.ID,
		CustomerName: strings.TrimSpace(c.FirstName + " " + c.LastName),
		Prediction:   p,
		Messages:     Messages(p),
		ScoredAt:     now,
	}
	a.recent.add(cp)
	return &cp, nil
}

// scoreAll predicts customers concurrently, keeping their order. A customer
// whose history cannot be read is logged and skipped.
func (a *Analyzer) scoreAll(ctx context.Context, customers []customer.Customer) ([]CustomerPrediction, error) {
	scored := make([]*CustomerPrediction, len(customers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range customers {
		g.Go(func() error {
			p, err := a.predict(gctx, c)
			if err != nil {
				if errors.Is(err, ErrNotTrained) || gctx.Err() != nil {
					return err
				}
				zctx.From(gctx).Warn("Skipping customer",
					zap.String("customer_id", c.ID),
					zap.Error(err),
				)
				return nil
			}
			scored[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]CustomerPrediction, 0, len(scored))
	for _, p := range scored {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// BatchPredict scores every stored customer and returns the first
// BatchLimit predictions in customer order.
func (a *Analyzer) BatchPredict(ctx context.Context) (*Batch, error) {
	if !a.model.Ready() {
		return nil, ErrNotTrained
	}
	customers, err := a.customers.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	results, err := a.scoreAll(ctx, customers)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Batch prediction finished",
		zap.Int("customers", len(customers)),
		zap.Int("scored", len(results)),
	)
	return &Batch{
		Processed:   len(results),
		Predictions: results[:min(BatchLimit, len(results))],
		ScoredAt:    a.now(),
	}, nil
}

// Recent returns up to limit of the latest predictions, newest first.
func (a *Analyzer) Recent(limit int) ([]CustomerPrediction, error) {
	if !a.model.Ready() {
		return nil, ErrNotTrained
	}
	return a.recent.latest(limit), nil
}

// recentLog keeps the last RecentCapacity predictions.
type recentLog struct {
	mu  sync.Mutex
	buf []CustomerPrediction
}

func (l *recentLog) add(p CustomerPrediction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) == RecentCapacity {
		copy(l.buf, l.buf[1:])
		l.buf = l.buf[:len(l.buf)-1]
	}
	l.buf = append(l.buf, p)
}

func (l *recentLog) latest(n int) []CustomerPrediction {
	l.mu.Lock()
	defer l.mu.Unlock()
	n = min(n, len(l.buf))
	out := make([]CustomerPrediction, 0, max(n, 0))
	for i := len(l.buf) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.buf[i])
	}
	return out
}

// Insights scores up to limit customers concurrently.
func (a *Analyzer) Insights(ctx context.Context, limit int) (*Report, error) {
	metrics, trainedAt, err := a.model.Metrics()
	if err != nil {
		return nil, err
	}
	customers, err := a.customers.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}

	results, err := a.scoreAll(ctx, customers)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Analyzed:  len(results),
		Metrics:   metrics,
		TrainedAt: trainedAt,
	}
	var probSum float64
	for _, p := range results {
		switch p.RiskLevel {
		case RiskHigh:
			r.HighRisk++
		case RiskMedium:
			r.MediumRisk++
		default:
			r.LowRisk++
		}
		probSum += p.ChurnProbability
		r.TotalPredictedRevenue += p.PredictedSpend
	}
	if len(results) > 0 {
		r.AvgChurnProbability = probSum / float64(len(results))
	}

	slices.SortFunc(results, func(x, y CustomerPrediction) int {
		if c := cmp.Compare(y.PredictedSpend, x.PredictedSpend); c != 0 {
			return c
		}
		return strings.Compare(x.CustomerID, y.CustomerID)
	})
	r.TopSpenders = results[:min(topSpenders, len(results))]
	return r, nil
}
