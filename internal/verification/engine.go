package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"passforge/internal/card"
	"passforge/internal/encoder"
	"passforge/internal/orchestrator"
)

// QueueInspector is the slice of the orchestrator the end-to-end checks
// need.
type QueueInspector interface {
	QueueStatus() orchestrator.Status
	Capacity() int
	Accepting() bool
}

// Engine runs the verification battery. Verification is self-contained: it
// rebuilds the canonical card and re-encodes all three artifacts on every
// run instead of reusing prior generation output, so it can run
// concurrently with generation without coordination.
type Engine struct {
	builder *card.Builder
	enc     *encoder.Encoder
	queue   QueueInspector // optional; nil fails only the end_to_end check
	log     *zap.Logger
}

// NewEngine constructs an Engine. queue may be nil when no orchestrator is
// running (e.g. offline audits).
func NewEngine(builder *card.Builder, enc *encoder.Encoder, queue QueueInspector, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{builder: builder, enc: enc, queue: queue, log: log}
}

// chainState carries the card and encoder outputs shared by all checks in
// one run.
type chainState struct {
	customerRequested bool
	card              *card.UnifiedCardData
	apple             *encoder.ApplePass
	appleErr          error
	google            *encoder.GoogleObject
	googleErr         error
	web               *encoder.WebPass
	webErr            error
}

// VerifyWalletChain runs the full battery for one card. It always returns a
// report; any internal panic or build failure is folded into it as a
// synthetic critical result.
func (e *Engine) VerifyWalletChain(ctx context.Context, cardID, customerID string) (report *ChainVerification) {
	started := time.Now()
	report = &ChainVerification{
		CardID:     cardID,
		CustomerID: customerID,
		StartedAt:  started.UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("verification panicked", zap.String("card_id", cardID), zap.Any("panic", r))
			report.Results = append(report.Results, syntheticFailure(fmt.Sprintf("panic: %v", r)))
		}
		report.Summary = summarize(report.Results)
		if report.Summary.Critical > 0 {
			report.Status = StatusFailed
		} else {
			report.Status = StatusCompleted
		}
		report.Duration = time.Since(started)
	}()

	c, err := e.builder.Build(ctx, cardID, customerID)
	if err != nil {
		report.Results = append(report.Results, syntheticFailure(fmt.Sprintf("build canonical card: %v", err)))
		return report
	}

	state := &chainState{customerRequested: customerID != "", card: c}
	state.apple, state.appleErr = e.enc.Apple(c)
	state.google, state.googleErr = e.enc.Google(c)
	state.web, state.webErr = e.enc.Web(c)

	for _, check := range Catalog() {
		checkStart := time.Now()
		passed, message, details := e.runCheck(check.ID, state)
		report.Results = append(report.Results, CheckResult{
			Check:    check,
			Passed:   passed,
			Message:  message,
			Details:  details,
			Duration: time.Since(checkStart),
		})
	}
	return report
}

// QuickVerifyWalletChain is the pre-publish gate: it reports only
// critical-severity failures.
func (e *Engine) QuickVerifyWalletChain(ctx context.Context, cardID, customerID string) (bool, []string) {
	report := e.VerifyWalletChain(ctx, cardID, customerID)
	var issues []string
	for _, res := range report.Results {
		if !res.Passed && res.Check.Severity == SeverityCritical {
			issues = append(issues, res.Message)
		}
	}
	return len(issues) == 0, issues
}

func (e *Engine) runCheck(id string, s *chainState) (bool, string, map[string]any) {
	switch id {
	case CheckDataConsistency:
		ok, errs := card.Validate(s.card)
		if !ok {
			return false, fmt.Sprintf("card data invalid: %v", errs), map[string]any{"errors": errs}
		}
		return true, "canonical card is valid", nil

	case CheckBusinessFields:
		if s.card.Business.Name == "" {
			return false, "business name is missing", nil
		}
		if s.card.Business.Email == "" {
			return false, "business email is missing", nil
		}
		return true, "business identity is complete", nil

	case CheckCustomerFields:
		if !s.customerRequested {
			return true, "template card, no customer requested", nil
		}
		if s.card.Customer == nil {
			return true, "no progress record for customer, template card issued", nil
		}
		if s.card.Customer.ID == "" || s.card.Customer.Email == "" {
			return false, "customer identity is incomplete", nil
		}
		return true, "customer identity is complete", nil

	case CheckAppleRequired:
		if s.appleErr != nil {
			return false, fmt.Sprintf("apple encoding failed: %v", s.appleErr), nil
		}
		return checkApple(s.apple)

	case CheckGoogleRequired:
		if s.googleErr != nil {
			return false, fmt.Sprintf("google encoding failed: %v", s.googleErr), nil
		}
		return checkGoogle(s.google)

	case CheckWebRequired:
		if s.webErr != nil {
			return false, fmt.Sprintf("web encoding failed: %v", s.webErr), nil
		}
		return checkWeb(s.web)

	case CheckWebActions:
		if s.webErr != nil {
			return false, fmt.Sprintf("web encoding failed: %v", s.webErr), nil
		}
		want := []string{encoder.ActionScan, encoder.ActionShare, encoder.ActionDetails}
		if len(s.web.Actions) != len(want) {
			return false, fmt.Sprintf("expected %d actions, got %d", len(want), len(s.web.Actions)), nil
		}
		for i, action := range s.web.Actions {
			if action.Type != want[i] {
				return false, fmt.Sprintf("action %d is %q, want %q", i, action.Type, want[i]), nil
			}
		}
		return true, "action list is complete", nil

	case CheckBarcodeConsistency:
		if s.appleErr != nil || s.googleErr != nil || s.webErr != nil {
			return false, "cannot compare barcodes: at least one encoder failed", nil
		}
		want := s.card.Barcode.Value
		if s.apple.Barcode.Message != want || s.google.Barcode.Value != want || s.web.Barcode.DisplayValue != want {
			return false, "barcode payload differs between platforms", map[string]any{
				"canonical": want,
				"apple":     s.apple.Barcode.Message,
				"google":    s.google.Barcode.Value,
				"web":       s.web.Barcode.DisplayValue,
			}
		}
		return true, "scan payload identical on all platforms", nil

	case CheckAppleRoundTrip:
		if s.appleErr != nil {
			return false, fmt.Sprintf("apple encoding failed: %v", s.appleErr), nil
		}
		var decoded encoder.ApplePass
		if ok, msg := roundTrip(s.apple, &decoded); !ok {
			return false, msg, nil
		}
		return checkApple(&decoded)

	case CheckGoogleRoundTrip:
		if s.googleErr != nil {
			return false, fmt.Sprintf("google encoding failed: %v", s.googleErr), nil
		}
		var decoded encoder.GoogleObject
		if ok, msg := roundTrip(s.google, &decoded); !ok {
			return false, msg, nil
		}
		return checkGoogle(&decoded)

	case CheckQueueReachable:
		if e.queue == nil {
			return false, "no orchestrator attached", nil
		}
		st := e.queue.QueueStatus()
		if st.Pending == nil || st.Processing == nil || st.Completed == nil || st.Failed == nil {
			return false, "queue snapshot is malformed", nil
		}
		if e.queue.Capacity() <= 0 {
			return false, "orchestrator reports zero capacity", nil
		}
		if !e.queue.Accepting() {
			return false, "orchestrator is not accepting new work", nil
		}
		return true, "queue accepts work and the snapshot is well-formed", map[string]any{
			"pending":    len(st.Pending),
			"processing": len(st.Processing),
			"capacity":   e.queue.Capacity(),
		}

	default:
		return false, fmt.Sprintf("unknown check %q", id), nil
	}
}

// roundTrip serializes and re-parses a descriptor, catching partial or
// placeholder implementations whose structs look fine in memory but do not
// survive the wire format.
func roundTrip(in, out any) (bool, string) {
	raw, err := json.Marshal(in)
	if err != nil {
		return false, fmt.Sprintf("marshal: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Sprintf("unmarshal: %v", err)
	}
	return true, ""
}

func checkApple(p *encoder.ApplePass) (bool, string, map[string]any) {
	switch {
	case p.FormatVersion != 1:
		return false, fmt.Sprintf("format version is %d, want 1", p.FormatVersion), nil
	case p.PassTypeIdentifier == "":
		return false, "pass type identifier is missing", nil
	case p.SerialNumber == "":
		return false, "serial number is missing", nil
	case p.TeamIdentifier == "":
		return false, "team identifier is missing", nil
	case p.OrganizationName == "":
		return false, "organization name is missing", nil
	}
	return true, "apple required fields present", nil
}

func checkGoogle(o *encoder.GoogleObject) (bool, string, map[string]any) {
	switch {
	case o.ID == "":
		return false, "object id is missing", nil
	case o.ClassID == "":
		return false, "class id is missing", nil
	case o.State != "ACTIVE":
		return false, fmt.Sprintf("state is %q, want ACTIVE", o.State), nil
	case o.Barcode.Value == "":
		return false, "barcode value is missing", nil
	}
	return true, "google required fields present", nil
}

func checkWeb(w *encoder.WebPass) (bool, string, map[string]any) {
	switch {
	case w.ID == "":
		return false, "pass id is missing", nil
	case w.Title == "":
		return false, "title is missing", nil
	case w.Business.Name == "" || w.Business.Email == "":
		return false, "embedded business is incomplete", nil
	case w.Barcode.DisplayValue == "":
		return false, "barcode display value is missing", nil
	}
	return true, "web required fields present", nil
}

// syntheticFailure wraps an uncaught error as one critical check result so
// the run still produces a report.
func syntheticFailure(message string) CheckResult {
	return CheckResult{
		Check: Check{
			ID:          "verification_error",
			Name:        "Verification run error",
			Description: "an internal error interrupted the verification run",
			Category:    CategoryEndToEnd,
			Severity:    SeverityCritical,
		},
		Passed:  false,
		Message: message,
	}
}

func summarize(results []CheckResult) Summary {
	var s Summary
	for _, res := range results {
		if res.Passed {
			s.Passed++
			continue
		}
		s.Failed++
		switch res.Check.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.Warnings++
		}
	}
	return s
}
