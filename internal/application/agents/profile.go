package agents

import (
	"github.com/rs/zerolog/log"

	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/domain/loan"
)

// Profile defaults applied when a field is missing from loose map input.
const (
	defaultCustomerID   = "GUEST_USER"
	defaultCustomerName = "Valued Customer"
	defaultAge          = 25
	defaultCity         = "Bangalore"
	defaultPhone        = "9876543210"
	defaultAddress      = "Bangalore, Karnataka"
	defaultCreditScore  = 750
	defaultLimit        = 500000.0
	defaultEmployment   = "salaried"
	defaultSalary       = 50000.0
)

func mapString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func collectedString(conv *conversation.Context, key string) string {
	if v, ok := conv.GetCollectedValue(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mapFloat(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func mapInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

// profileFromMap converts a loose customer payload into a validated
// profile, substituting defaults for anything missing. Payloads arrive
// both from JSON decoding and from collected conversation data, so
// numeric fields may be float64 or int.
func profileFromMap(m map[string]any) *loan.CustomerProfile {
	if m == nil {
		m = map[string]any{}
	}
	profile := &loan.CustomerProfile{
		ID:               mapString(m, "id", defaultCustomerID),
		Name:             mapString(m, "name", defaultCustomerName),
		Age:              mapInt(m, "age", defaultAge),
		City:             mapString(m, "city", defaultCity),
		Phone:            mapString(m, "phone", defaultPhone),
		Address:          mapString(m, "address", defaultAddress),
		CreditScore:      mapInt(m, "credit_score", defaultCreditScore),
		PreApprovedLimit: mapFloat(m, "pre_approved_limit", defaultLimit),
		EmploymentType:   mapString(m, "employment_type", defaultEmployment),
		Salary:           mapFloat(m, "salary", defaultSalary),
	}
	if loans, ok := m["current_loans"].([]any); ok {
		for _, entry := range loans {
			lm, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			profile.CurrentLoans = append(profile.CurrentLoans, loan.ExistingLoan{
				ID:           mapString(lm, "id", ""),
				Amount:       mapFloat(lm, "amount", 0),
				Tenure:       mapInt(lm, "tenure", 0),
				InterestRate: mapFloat(lm, "interest_rate", 0),
				EMI:          mapFloat(lm, "emi", 0),
				Status:       mapString(lm, "status", ""),
			})
		}
	}
	if err := profile.Validate(); err != nil {
		log.Warn().Err(err).Str("customer_id", profile.ID).Msg("customer payload failed validation, using defaults")
		profile.Age = defaultAge
		profile.CreditScore = defaultCreditScore
		profile.Phone = defaultPhone
	}
	return profile
}

// profileToMap flattens a profile for collected-data storage and sharing.
func profileToMap(p *loan.CustomerProfile) map[string]any {
	return map[string]any{
		"id":                 p.ID,
		"name":               p.Name,
		"age":                p.Age,
		"city":               p.City,
		"phone":              p.Phone,
		"address":            p.Address,
		"credit_score":       p.CreditScore,
		"pre_approved_limit": p.PreApprovedLimit,
		"employment_type":    p.EmploymentType,
		"salary":             p.Salary,
	}
}
