package card

import (
	"fmt"
	"strings"
)

// Validate checks a canonical card for structural soundness. It is pure and
// total: it never panics, and a malformed or nil card yields valid=false
// with at least one message. The orchestrator rejects cards before encoding
// with it, and the verification engine reuses it as the data_consistency
// check.
func Validate(c *UnifiedCardData) (bool, []string) {
	var errs []string

	if c == nil {
		return false, []string{"card is nil"}
	}
	if c.ID == "" {
		errs = append(errs, "card id is empty")
	}
	if c.SerialNumber == "" {
		errs = append(errs, "serial number is empty")
	}

	switch c.Kind {
	case KindStamp:
		if c.Stamp == nil {
			errs = append(errs, "kind is stamp but stamp details are missing")
		}
		if c.Membership != nil {
			errs = append(errs, "kind is stamp but membership details are present")
		}
	case KindMembership:
		if c.Membership == nil {
			errs = append(errs, "kind is membership but membership details are missing")
		}
		if c.Stamp != nil {
			errs = append(errs, "kind is membership but stamp details are present")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown card kind %q", c.Kind))
	}

	if c.Stamp != nil {
		errs = append(errs, validateStamp(c.Stamp)...)
	}
	if c.Membership != nil {
		errs = append(errs, validateMembership(c.Membership)...)
	}

	if c.Business.Name == "" {
		errs = append(errs, "business name is empty")
	}
	if c.Business.Email == "" {
		errs = append(errs, "business email is empty")
	}

	if c.Customer != nil && c.Customer.Email == "" {
		errs = append(errs, "customer email is empty")
	}

	if c.Barcode.Value == "" {
		errs = append(errs, "barcode value is empty")
	} else if !strings.HasPrefix(c.Barcode.Value, BarcodeNamespace+"-") {
		errs = append(errs, fmt.Sprintf("barcode value lacks %s namespace prefix", BarcodeNamespace))
	}

	return len(errs) == 0, errs
}

func validateStamp(s *StampDetails) []string {
	var errs []string
	if s.TotalStamps <= 0 {
		errs = append(errs, "total stamps must be positive")
	}
	if s.CurrentStamps < 0 || (s.TotalStamps > 0 && s.CurrentStamps > s.TotalStamps) {
		errs = append(errs, "current stamps out of range")
	}
	return errs
}

func validateMembership(m *MembershipDetails) []string {
	var errs []string
	if m.TotalSessions <= 0 {
		errs = append(errs, "total sessions must be positive")
	}
	if m.SessionsUsed < 0 || (m.TotalSessions > 0 && m.SessionsUsed > m.TotalSessions) {
		errs = append(errs, "sessions used out of range")
	}
	if m.Cost < 0 {
		errs = append(errs, "cost must not be negative")
	}
	if m.DurationDays <= 0 {
		errs = append(errs, "duration days must be positive")
	}
	return errs
}
