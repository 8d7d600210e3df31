// Package verification runs the fixed battery of named checks that proves
// the three pass artifacts stay structurally and semantically consistent
// with the canonical card. The engine never propagates an error to its
// caller: any internal failure becomes one synthetic critical check result.
package verification

import "time"

// Category groups checks by what layer of the chain they exercise.
type Category string

const (
	CategoryDataIntegrity    Category = "data_integrity"
	CategoryFormatValidation Category = "format_validation"
	CategoryCompatibility    Category = "platform_compatibility"
	CategoryEndToEnd         Category = "end_to_end"
)

// Severity weights a failing check in the run summary.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Check is one static catalog entry. The catalog is defined once at process
// start and never mutated.
type Check struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
}

// Catalog check ids, stable across releases.
const (
	CheckDataConsistency    = "data_consistency"
	CheckBusinessFields     = "business_fields"
	CheckCustomerFields     = "customer_fields"
	CheckAppleRequired      = "apple_required_fields"
	CheckGoogleRequired     = "google_required_fields"
	CheckWebRequired        = "web_required_fields"
	CheckBarcodeConsistency = "barcode_consistency"
	CheckAppleRoundTrip     = "apple_round_trip"
	CheckGoogleRoundTrip    = "google_round_trip"
	CheckWebActions         = "web_actions"
	CheckQueueReachable     = "queue_reachable"
)

// Catalog returns the fixed battery in execution order.
func Catalog() []Check {
	return []Check{
		{CheckDataConsistency, "Canonical data consistency", "the canonical card passes structural validation", CategoryDataIntegrity, SeverityCritical},
		{CheckBusinessFields, "Business identity fields", "business name and contact email are present", CategoryDataIntegrity, SeverityCritical},
		{CheckCustomerFields, "Customer fields", "customer identity is complete when a customer was requested", CategoryDataIntegrity, SeverityMedium},
		{CheckAppleRequired, "Apple pass required fields", "format version, pass type id, serial, team id and organization are present", CategoryFormatValidation, SeverityCritical},
		{CheckGoogleRequired, "Google object required fields", "object id, class id, state and barcode are present", CategoryFormatValidation, SeverityCritical},
		{CheckWebRequired, "Web pass required fields", "id, title, business and barcode are present", CategoryFormatValidation, SeverityCritical},
		{CheckWebActions, "Web pass action list", "the hosted pass carries exactly the scan/share/view-details actions", CategoryFormatValidation, SeverityMedium},
		{CheckBarcodeConsistency, "Cross-platform barcode consistency", "all three artifacts embed an identical scan payload", CategoryCompatibility, SeverityCritical},
		{CheckAppleRoundTrip, "Apple descriptor round trip", "the serialized descriptor still satisfies the required-field contract", CategoryCompatibility, SeverityHigh},
		{CheckGoogleRoundTrip, "Google object round trip", "the serialized object still satisfies the required-field contract", CategoryCompatibility, SeverityHigh},
		{CheckQueueReachable, "Generation queue reachable", "the orchestrator accepts new work and exposes a well-formed queue snapshot", CategoryEndToEnd, SeverityLow},
	}
}

// CheckResult is the outcome of one executed check.
type CheckResult struct {
	Check    Check          `json:"check"`
	Passed   bool           `json:"passed"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Summary counts outcomes by severity. Critical counts failed checks of
// critical severity; Warnings counts failed checks of high severity.
type Summary struct {
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Critical int `json:"critical"`
	Warnings int `json:"warnings"`
}

// Run status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ChainVerification is one full verification run for a card.
type ChainVerification struct {
	CardID     string        `json:"card_id"`
	CustomerID string        `json:"customer_id,omitempty"`
	Results    []CheckResult `json:"results"`
	Summary    Summary       `json:"summary"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
