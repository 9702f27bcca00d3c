package apiclients

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ValidateCustomer checks a CRM payload. Missing identity fields are hard
// errors; missing optional demographics only log warnings.
func ValidateCustomer(c *CRMCustomer) error {
	if c == nil {
		return ValidationError{Field: "customer", Message: "response is nil"}
	}
	if strings.TrimSpace(c.ID) == "" {
		return ValidationError{Field: "id", Message: "missing customer id"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError{Field: "name", Message: "missing customer name"}
	}
	if strings.TrimSpace(c.Phone) == "" {
		return ValidationError{Field: "phone", Message: "missing customer phone"}
	}

	if c.Age != 0 && (c.Age < 18 || c.Age > 100) {
		log.Warn().
			Str("customer_id", c.ID).
			Int("age", c.Age).
			Msg("CRM returned implausible age")
	}
	if c.Salary < 0 {
		log.Warn().
			Str("customer_id", c.ID).
			Float64("salary", c.Salary).
			Msg("CRM returned negative salary, ignoring")
		c.Salary = 0
	}
	return nil
}

// ValidateCreditReport checks a credit bureau payload. Scores must sit in the
// bureau's 300-900 band.
func ValidateCreditReport(r *CreditReport) error {
	if r == nil {
		return ValidationError{Field: "report", Message: "response is nil"}
	}
	if !r.Success {
		return ValidationError{Field: "success", Message: "bureau reported failure"}
	}
	if r.CreditScore < 300 || r.CreditScore > 900 {
		return ValidationError{
			Field:   "creditScore",
			Message: fmt.Sprintf("score %d outside 300-900", r.CreditScore),
		}
	}
	return nil
}

// ValidateOfferSheet checks an offer mart payload. A zero limit is legal (no
// pre-approval); a negative one is not.
func ValidateOfferSheet(s *OfferSheet) error {
	if s == nil {
		return ValidationError{Field: "sheet", Message: "response is nil"}
	}
	if !s.Success {
		return ValidationError{Field: "success", Message: "offer mart reported failure"}
	}
	if s.PreApprovedLimit < 0 {
		return ValidationError{
			Field:   "preApprovedLimit",
			Message: fmt.Sprintf("negative limit %.2f", s.PreApprovedLimit),
		}
	}
	if s.InterestRate != 0 && (s.InterestRate < 5 || s.InterestRate > 36) {
		log.Warn().
			Float64("interest_rate", s.InterestRate).
			Msg("offer mart rate outside expected band")
	}
	return nil
}
