package predictor

import (
	"slices"
	"time"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
)

// Features is one customer's model input.
type Features struct {
	Age                 float64
	Gender              string
	Region              string
	TenureDays          float64
	TotalOrders         float64
	TotalSpent          float64
	AvgOrderValue       float64
	DaysSinceLastOrder  float64
	TotalSessions       float64
	AvgSessionDuration  float64
	PagesPerSession     float64
	CartAbandonmentRate float64
	SupportTickets      float64
	PreferredCategory   string
	SeasonalActivity    float64
	MarketingChannel    string
}

var numericNames = []string{
	"age",
	"tenure_days",
	"total_orders",
	"total_spent",
	"avg_order_value",
	"days_since_last_order",
	"total_sessions",
	"avg_session_duration",
	"pages_per_session",
	"cart_abandonment_rate",
	"support_tickets",
	"seasonal_activity",
}

var categoricalNames = []string{
	"gender",
	"region",
	"preferred_category",
	"marketing_channel",
}

func (f Features) numeric() []float64 {
	return []float64{
		f.Age,
		f.TenureDays,
		f.TotalOrders,
		f.TotalSpent,
		f.AvgOrderValue,
		f.DaysSinceLastOrder,
		f.TotalSessions,
		f.AvgSessionDuration,
		f.PagesPerSession,
		f.CartAbandonmentRate,
		f.SupportTickets,
		f.SeasonalActivity,
	}
}

func (f Features) categorical() []string {
	return []string{f.Gender, f.Region, f.PreferredCategory, f.MarketingChannel}
}

// Defaults for signals the shop does not collect. They are the means of the
// training distributions so they do not push predictions either way.
const (
	defaultAge                 = 35
	defaultGender              = "M"
	defaultRegion              = "Central"
	defaultSessionDuration     = 8.5
	defaultPagesPerSession     = 4
	defaultCartAbandonment     = 0.6
	defaultSupportTickets      = 1
	defaultPreferredCategory   = "Electronics"
	defaultSeasonalActivity    = 0.5
	defaultMarketingChannel    = "Organic"
	noOrdersDaysSinceLastOrder = 365
)

// Extract derives features from a customer and its order history. OPEN
// orders are drafts and do not count as purchases.
func Extract(c customer.Customer, orders []order.Order, now time.Time) Features {
	placed := slices.DeleteFunc(slices.Clone(orders), func(o order.Order) bool {
		return o.Status == order.StatusOpen
	})

	f := Features{
		Age:                 defaultAge,
		Gender:              defaultGender,
		Region:              defaultRegion,
		TenureDays:          days(now.Sub(c.CreatedAt)),
		TotalOrders:         float64(len(placed)),
		DaysSinceLastOrder:  noOrdersDaysSinceLastOrder,
		AvgSessionDuration:  defaultSessionDuration,
		PagesPerSession:     defaultPagesPerSession,
		CartAbandonmentRate: defaultCartAbandonment,
		SupportTickets:      defaultSupportTickets,
		PreferredCategory:   defaultPreferredCategory,
		SeasonalActivity:    defaultSeasonalActivity,
		MarketingChannel:    defaultMarketingChannel,
	}

	var last time.Time
	for _, o := range placed {
		f.TotalSpent += o.Total.InexactFloat64()
		if o.OrderDate.After(last) {
			last = o.OrderDate
		}
	}
	if len(placed) > 0 {
		f.AvgOrderValue = f.TotalSpent / f.TotalOrders
		f.DaysSinceLastOrder = days(now.Sub(last))
	}
	f.TotalSessions = max(2*f.TotalOrders, 5)
	return f
}

func days(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(int(d.Hours() / 24))
}
