package encoder

import (
	"fmt"

	"passforge/internal/card"
)

// GoogleObject is the Google Wallet loyalty object for one card instance.
type GoogleObject struct {
	ID              string             `json:"id"`
	ClassID         string             `json:"classId"`
	State           string             `json:"state"`
	AccountName     string             `json:"accountName,omitempty"`
	Barcode         GoogleBarcode      `json:"barcode"`
	TextModulesData []GoogleTextModule `json:"textModulesData"`
}

// GoogleBarcode carries the scan payload verbatim.
type GoogleBarcode struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	AlternateText string `json:"alternateText,omitempty"`
}

// GoogleTextModule is one free-form text block on the object.
type GoogleTextModule struct {
	ID     string `json:"id"`
	Header string `json:"header"`
	Body   string `json:"body"`
}

const (
	googleStateActive = "ACTIVE"
	googleBarcodeType = "QR_CODE"
	// Text module ids, stable across releases: scanners and the web
	// dashboard key off them.
	ModuleReward   = "reward-info"
	ModuleProgress = "progress-info"
	ModuleSessions = "sessions-info"
	ModuleExpiry   = "expiry-info"
	ModuleBenefits = "benefits-info"
)

// Google renders the Google Wallet loyalty object. Object id, class id,
// state and barcode are required.
func (e *Encoder) Google(c *card.UnifiedCardData) (*GoogleObject, error) {
	if e.creds.GoogleIssuerID == "" {
		return nil, &EncodingError{Platform: PlatformGoogle, Field: "id", Reason: "missing issuer id configuration"}
	}
	if e.creds.GoogleClassID == "" {
		return nil, &EncodingError{Platform: PlatformGoogle, Field: "classId", Reason: "missing class id configuration"}
	}
	if c.SerialNumber == "" {
		return nil, &EncodingError{Platform: PlatformGoogle, Field: "id", Reason: "card has no serial number"}
	}
	if c.Barcode.Value == "" {
		return nil, &EncodingError{Platform: PlatformGoogle, Field: "barcode", Reason: "barcode value is empty"}
	}

	obj := &GoogleObject{
		ID:      fmt.Sprintf("%s.%s", e.creds.GoogleIssuerID, c.SerialNumber),
		ClassID: fmt.Sprintf("%s.%s", e.creds.GoogleIssuerID, e.creds.GoogleClassID),
		State:   googleStateActive,
		Barcode: GoogleBarcode{
			Type:          googleBarcodeType,
			Value:         c.Barcode.Value,
			AlternateText: c.Barcode.AltText,
		},
		TextModulesData: googleTextModules(c),
	}
	if c.Customer != nil {
		obj.AccountName = c.Customer.Name
	}
	return obj, nil
}

func googleTextModules(c *card.UnifiedCardData) []GoogleTextModule {
	fs := card.Fields(c)
	var modules []GoogleTextModule

	if f, ok := fs.Lookup(card.FieldReward); ok {
		modules = append(modules, GoogleTextModule{ID: ModuleReward, Header: f.Label, Body: f.Value})
	}
	if f, ok := fs.Lookup(card.FieldProgress); ok {
		modules = append(modules, GoogleTextModule{ID: ModuleProgress, Header: f.Label, Body: f.Value})
	}
	if f, ok := fs.Lookup(card.FieldSessions); ok {
		modules = append(modules, GoogleTextModule{ID: ModuleSessions, Header: f.Label, Body: f.Value})
	}
	if f, ok := fs.Lookup(card.FieldExpiry); ok {
		modules = append(modules, GoogleTextModule{ID: ModuleExpiry, Header: f.Label, Body: f.Value})
	}
	for i, benefit := range fs.Benefits {
		modules = append(modules, GoogleTextModule{
			ID:     fmt.Sprintf("%s-%d", ModuleBenefits, i+1),
			Header: "Benefit",
			Body:   benefit,
		})
	}
	return modules
}
