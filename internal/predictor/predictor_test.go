package predictor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
)

func trainedService(t *testing.T) (*Service, Metrics) {
	t.Helper()
	s := New()
	m, err := s.Train(Generate(1500, 42))
	require.NoError(t, err)
	return s, m
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(50, 7)
	b := Generate(50, 7)
	require.Equal(t, a, b)

	for _, r := range Generate(500, 1) {
		assert.GreaterOrEqual(t, r.Age, 18.0)
		assert.LessOrEqual(t, r.Age, 80.0)
		assert.GreaterOrEqual(t, r.Spend, 0.0)
		assert.GreaterOrEqual(t, r.CartAbandonmentRate, 0.0)
		assert.LessOrEqual(t, r.CartAbandonmentRate, 1.0)
		assert.GreaterOrEqual(t, r.PagesPerSession, 1.0)
	}
}

func TestService_Train(t *testing.T) {
	s, m := trainedService(t)
	require.True(t, s.Ready())

	assert.Equal(t, 1200, m.TrainSamples)
	assert.Equal(t, 300, m.TestSamples)
	assert.Greater(t, m.ChurnAccuracy, 0.5)
	assert.LessOrEqual(t, m.ChurnAccuracy, 1.0)
	assert.Greater(t, m.SpendR2, 0.0)
	assert.Greater(t, m.SpendRMSE, 0.0)

	require.Len(t, m.ChurnImportance, len(numericNames)+len(categoricalNames))
	var sum float64
	for _, fi := range m.ChurnImportance {
		sum += fi.Importance
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestService_Predict(t *testing.T) {
	_, err := New().Predict(Features{})
	require.ErrorIs(t, err, ErrNotTrained)

	s, _ := trainedService(t)
	rows := Generate(100, 99)
	for _, r := range rows {
		p, err := s.Predict(r.Features)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.ChurnProbability, 0.0)
		assert.LessOrEqual(t, p.ChurnProbability, 1.0)
		assert.GreaterOrEqual(t, p.PredictedSpend, 0.0)
		assert.Equal(t, RiskLevel(p.ChurnProbability), p.RiskLevel)
		assert.Equal(t, p.ChurnProbability >= 0.5, p.WillChurn)
	}

	// Unseen categories must not break encoding.
	f := rows[0].Features
	f.Region = "Antarctica"
	_, err = s.Predict(f)
	require.NoError(t, err)
}

func TestService_SaveLoad(t *testing.T) {
	dir := t.TempDir()

	empty := New()
	loaded, err := empty.Load(dir)
	require.NoError(t, err)
	assert.False(t, loaded)
	require.ErrorIs(t, empty.Save(dir), ErrNotTrained)

	s, _ := trainedService(t)
	require.NoError(t, s.Save(dir))

	restored := New()
	loaded, err = restored.Load(dir)
	require.NoError(t, err)
	require.True(t, loaded)

	f := Generate(1, 5)[0].Features
	want, err := s.Predict(f)
	require.NoError(t, err)
	got, err := restored.Predict(f)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, RiskLevel(0.71))
	assert.Equal(t, RiskMedium, RiskLevel(0.7))
	assert.Equal(t, RiskMedium, RiskLevel(0.31))
	assert.Equal(t, RiskLow, RiskLevel(0.3))
}

func TestExtract(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	c := customer.Customer{ID: "c", CreatedAt: now.AddDate(0, 0, -100)}
	orders := []order.Order{
		{Status: order.StatusClosed, Total: decimal.RequireFromString("40"), OrderDate: now.AddDate(0, 0, -10)},
		{Status: order.StatusDelivered, Total: decimal.RequireFromString("60"), OrderDate: now.AddDate(0, 0, -3)},
		{Status: order.StatusOpen, Total: decimal.RequireFromString("999"), OrderDate: now},
	}

	f := Extract(c, orders, now)
	assert.Equal(t, 100.0, f.TenureDays)
	assert.Equal(t, 2.0, f.TotalOrders)
	assert.Equal(t, 100.0, f.TotalSpent)
	assert.Equal(t, 50.0, f.AvgOrderValue)
	assert.Equal(t, 3.0, f.DaysSinceLastOrder)
	assert.Equal(t, 5.0, f.TotalSessions)

	none := Extract(c, nil, now)
	assert.Equal(t, float64(noOrdersDaysSinceLastOrder), none.DaysSinceLastOrder)
	assert.Zero(t, none.AvgOrderValue)
}

// --- Mock implementations ---

type mockDirectory struct {
	customers []customer.Customer
}

func (m *mockDirectory) Get(_ context.Context, id string) (*customer.Customer, error) {
	for i := range m.customers {
		if m.customers[i].ID == id {
			return &m.customers[i], nil
		}
	}
	return nil, apperr.NotFound("customer", id)
}

func (m *mockDirectory) List(context.Context) ([]customer.Customer, error) {
	return m.customers, nil
}

type mockHistory struct {
	orders map[string][]order.Order
	failOn string
}

func (m *mockHistory) ListForAccount(_ context.Context, accountID string) ([]order.Order, error) {
	if accountID == m.failOn {
		return nil, errors.New("history unavailable")
	}
	return m.orders[accountID], nil
}

// customerFixture builds n customers where customer i has i closed orders,
// plus one whose history cannot be read.
func customerFixture(n int) (*mockDirectory, *mockHistory) {
	now := time.Now()
	dir := &mockDirectory{}
	hist := &mockHistory{orders: map[string][]order.Order{}, failOn: "acc-broken"}
	for i := range n {
		id := string(rune('a' + i))
		dir.customers = append(dir.customers, customer.Customer{
			ID:        "cust-" + id,
			AccountID: "acc-" + id,
			FirstName: "Customer",
			LastName:  id,
			CreatedAt: now.AddDate(0, 0, -30*i),
		})
		for j := range i {
			hist.orders["acc-"+id] = append(hist.orders["acc-"+id], order.Order{
				Status:    order.StatusClosed,
				Total:     decimal.NewFromInt(int64(20 * (j + 1))),
				OrderDate: now.AddDate(0, 0, -j),
			})
		}
	}
	dir.customers = append(dir.customers, customer.Customer{ID: "cust-broken", AccountID: "acc-broken"})
	return dir, hist
}

func TestAnalyzer_Insights(t *testing.T) {
	dir, hist := customerFixture(15)

	untrained := NewAnalyzer(New(), dir, hist, 4)
	_, err := untrained.Insights(context.Background(), 0)
	require.ErrorIs(t, err, ErrNotTrained)

	s, metrics := trainedService(t)
	a := NewAnalyzer(s, dir, hist, 4)

	r, err := a.Insights(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 15, r.Analyzed)
	assert.Equal(t, r.Analyzed, r.HighRisk+r.MediumRisk+r.LowRisk)
	assert.Len(t, r.TopSpenders, topSpenders)
	for i := 1; i < len(r.TopSpenders); i++ {
		assert.GreaterOrEqual(t, r.TopSpenders[i-1].PredictedSpend, r.TopSpenders[i].PredictedSpend)
	}
	assert.Equal(t, metrics.ChurnAccuracy, r.Metrics.ChurnAccuracy)

	limited, err := a.Insights(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, limited.Analyzed)

	one, err := a.PredictCustomer(context.Background(), "cust-c")
	require.NoError(t, err)
	assert.Equal(t, "Customer c", one.CustomerName)
	assert.NotEmpty(t, one.Messages)

	_, err = a.PredictCustomer(context.Background(), "missing")
	require.True(t, apperr.IsNotFound(err))
}

func TestAnalyzer_BatchPredict(t *testing.T) {
	dir, hist := customerFixture(20)
	// Pad past BatchLimit with customers that have no orders.
	for i := range BatchLimit {
		dir.customers = append(dir.customers, customer.Customer{
			ID:        fmt.Sprintf("cust-new-%02d", i),
			AccountID: fmt.Sprintf("acc-new-%02d", i),
			CreatedAt: time.Now(),
		})
	}

	_, err := NewAnalyzer(New(), dir, hist, 4).BatchPredict(context.Background())
	require.ErrorIs(t, err, ErrNotTrained)

	s, _ := trainedService(t)
	a := NewAnalyzer(s, dir, hist, 8)
	scoredAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return scoredAt }

	b, err := a.BatchPredict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20+BatchLimit, b.Processed)
	require.Len(t, b.Predictions, BatchLimit)
	assert.Equal(t, scoredAt, b.ScoredAt)
	// Customer order survives concurrent scoring.
	assert.Equal(t, "cust-a", b.Predictions[0].CustomerID)
	assert.Equal(t, "cust-t", b.Predictions[19].CustomerID)
	assert.Equal(t, "cust-new-00", b.Predictions[20].CustomerID)
	for _, p := range b.Predictions {
		assert.NotEqual(t, "cust-broken", p.CustomerID)
		assert.Equal(t, scoredAt, p.ScoredAt)
	}
}

func TestAnalyzer_Recent(t *testing.T) {
	dir, hist := customerFixture(5)

	_, err := NewAnalyzer(New(), dir, hist, 4).Recent(10)
	require.ErrorIs(t, err, ErrNotTrained)

	s, _ := trainedService(t)
	a := NewAnalyzer(s, dir, hist, 4)
	tick := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	empty, err := a.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, id := range []string{"cust-a", "cust-b", "cust-c"} {
		_, err := a.PredictCustomer(context.Background(), id)
		require.NoError(t, err)
	}

	recent, err := a.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "cust-c", recent[0].CustomerID)
	assert.Equal(t, "cust-b", recent[1].CustomerID)
	assert.True(t, recent[0].ScoredAt.After(recent[1].ScoredAt))

	// The log keeps only the newest RecentCapacity entries.
	for range RecentCapacity {
		_, err := a.PredictCustomer(context.Background(), "cust-e")
		require.NoError(t, err)
	}
	all, err := a.Recent(RecentCapacity * 2)
	require.NoError(t, err)
	assert.Len(t, all, RecentCapacity)
	for _, p := range all {
		assert.Equal(t, "cust-e", p.CustomerID)
	}
}
