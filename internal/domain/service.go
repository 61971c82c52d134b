package domain

import "github.com/shopspring/decimal"

// DefaultDurationMinutes is used for services without a configured duration.
const DefaultDurationMinutes = 60

var hundred = decimal.NewFromInt(100)

type Service struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	ProviderID      string          `json:"provider_id"`
	Name            string          `json:"name"`
	BasePrice       decimal.Decimal `json:"base_price"`
	Currency        string          `json:"currency"`
	DurationMinutes int             `json:"duration_minutes"`
	Active          bool            `json:"active"`
	CommissionRate  decimal.Decimal `json:"commission_rate"`
	Addons          []ServiceAddon  `json:"addons,omitempty"`
}

// EffectiveDuration returns the slot length in minutes.
func (s *Service) EffectiveDuration() int {
	if s.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return s.DurationMinutes
}

type ServiceAddon struct {
	ID        string          `json:"id"`
	ServiceID string          `json:"service_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

// Quote prices a booking: the base price plus every addon, and the platform
// commission on that total rounded to cents.
func Quote(basePrice decimal.Decimal, addons []ServiceAddon, commissionRate decimal.Decimal) (total, commission decimal.Decimal) {
	total = basePrice
	for _, a := range addons {
		total = total.Add(a.Price)
	}
	commission = total.Mul(commissionRate).Div(hundred).Round(2)
	return total, commission
}
