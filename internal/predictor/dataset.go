package predictor

import (
	"math"
	"math/rand/v2"
)

// Row is a labelled training sample.
type Row struct {
	Features
	WillChurn bool
	Spend     float64
}

// Generate builds a synthetic customer dataset. The same seed always
// yields the same rows.
func Generate(n int, seed uint64) []Row {
	r := &sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = r.row()
	}
	return rows
}

type sampler struct {
	rng *rand.Rand
}

func (s *sampler) row() Row {
	f := Features{
		Age:    clamp(math.Trunc(s.normal(35, 12)), 18, 80),
		Gender: s.choice([]string{"M", "F", "Other"}, []float64{0.45, 0.52, 0.03}),
		Region: s.choice(
			[]string{"North", "South", "East", "West", "Central"},
			[]float64{0.2, 0.25, 0.2, 0.25, 0.1},
		),
		TenureDays:  clamp(math.Trunc(s.rng.ExpFloat64()*180), 1, 1095),
		TotalOrders: clamp(float64(s.poisson(8)), 0, 50),
	}
	f.TotalSpent = math.Max(f.TotalOrders*s.normal(75, 25), 0)
	if f.TotalOrders > 0 {
		f.AvgOrderValue = f.TotalSpent / f.TotalOrders
	}
	f.DaysSinceLastOrder = clamp(math.Trunc(s.rng.ExpFloat64()*30), 0, 365)
	f.TotalSessions = f.TotalOrders + float64(s.poisson(15))
	f.AvgSessionDuration = math.Max(s.normal(8.5, 4), 0.5)
	f.PagesPerSession = clamp(s.gamma(2)*2, 1, 20)
	f.CartAbandonmentRate = s.beta(3, 2)
	f.SupportTickets = float64(s.poisson(1.5))
	f.PreferredCategory = s.choice([]string{"Electronics", "Clothing", "Home", "Books", "Sports"}, nil)
	f.SeasonalActivity = s.beta(2, 2)
	f.MarketingChannel = s.choice(
		[]string{"Organic", "Paid_Search", "Social", "Email", "Direct"},
		[]float64{0.3, 0.25, 0.2, 0.15, 0.1},
	)

	p := 0.1
	p += 0.3 * indicator(f.DaysSinceLastOrder > 90)
	p += 0.2 * indicator(f.TotalOrders < 3)
	p += 0.15 * indicator(f.AvgSessionDuration < 3)
	p += 0.2 * indicator(f.CartAbandonmentRate > 0.7)
	p += 0.1 * indicator(f.SupportTickets > 3)
	p -= 0.3 * indicator(f.TotalSpent > 500)
	p -= 0.2 * indicator(f.TotalOrders > 10)
	p -= 0.1 * indicator(f.TenureDays > 365)
	churn := s.rng.Float64() < clamp(p, 0, 1)

	mult := 1.0
	mult += 0.5 * indicator(f.TotalSpent > 1000)
	mult += 0.3 * indicator(f.TenureDays > 365)
	mult += 0.2 * indicator(f.AvgSessionDuration > 10)
	mult -= 0.6 * indicator(churn)
	mult -= 0.3 * indicator(f.DaysSinceLastOrder > 60)
	spend := math.Max(f.AvgOrderValue*float64(s.poisson(2))*mult, 0)
	spend = math.Max(spend*s.normal(1, 0.2), 0)

	return Row{Features: f, WillChurn: churn, Spend: math.Round(spend*100) / 100}
}

func (s *sampler) normal(mean, std float64) float64 {
	return mean + std*s.rng.NormFloat64()
}

// poisson uses Knuth's multiplication method; lambda is small here.
func (s *sampler) poisson(lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= s.rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// gamma samples Gamma(shape, 1) with the Marsaglia-Tsang method.
func (s *sampler) gamma(shape float64) float64 {
	if shape < 1 {
		return s.gamma(shape+1) * math.Pow(s.rng.Float64(), 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if math.Log(u) < 0.5*x*x+d-d*v+d*math.Log(v) {
			return d * v
		}
	}
}

func (s *sampler) beta(a, b float64) float64 {
	x := s.gamma(a)
	y := s.gamma(b)
	return x / (x + y)
}

func (s *sampler) choice(values []string, weights []float64) string {
	if weights == nil {
		return values[s.rng.IntN(len(values))]
	}
	u := s.rng.Float64()
	for i, w := range weights {
		if u < w {
			return values[i]
		}
		u -= w
	}
	return values[len(values)-1]
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
