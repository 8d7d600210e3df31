package encoder

import "passforge/internal/card"

// ApplePass is the pass.json descriptor for an Apple Wallet store card.
type ApplePass struct {
	FormatVersion      int              `json:"formatVersion"`
	PassTypeIdentifier string           `json:"passTypeIdentifier"`
	SerialNumber       string           `json:"serialNumber"`
	TeamIdentifier     string           `json:"teamIdentifier"`
	OrganizationName   string           `json:"organizationName"`
	Description        string           `json:"description"`
	LogoText           string           `json:"logoText,omitempty"`
	BackgroundColor    string           `json:"backgroundColor"`
	ForegroundColor    string           `json:"foregroundColor"`
	LabelColor         string           `json:"labelColor"`
	Barcode            ApplePassBarcode `json:"barcode"`
	StoreCard          ApplePassFields  `json:"storeCard"`
}

// ApplePassBarcode carries the scan payload verbatim.
type ApplePassBarcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// ApplePassFields groups the labeled value tiers on the pass front.
type ApplePassFields struct {
	PrimaryFields   []ApplePassField `json:"primaryFields"`
	SecondaryFields []ApplePassField `json:"secondaryFields"`
	AuxiliaryFields []ApplePassField `json:"auxiliaryFields,omitempty"`
}

// ApplePassField is one key/label/value entry.
type ApplePassField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

const appleBarcodeFormat = "PKBarcodeFormatQR"

// Apple renders the Apple Wallet descriptor. Format version, pass type id,
// serial number, team id and organization name are required; a missing one
// is a hard EncodingError, not a degraded pass.
func (e *Encoder) Apple(c *card.UnifiedCardData) (*ApplePass, error) {
	if e.creds.ApplePassTypeID == "" {
		return nil, &EncodingError{Platform: PlatformApple, Field: "passTypeIdentifier", Reason: "missing credential configuration"}
	}
	if e.creds.AppleTeamID == "" {
		return nil, &EncodingError{Platform: PlatformApple, Field: "teamIdentifier", Reason: "missing credential configuration"}
	}
	if c.SerialNumber == "" {
		return nil, &EncodingError{Platform: PlatformApple, Field: "serialNumber", Reason: "card has no serial number"}
	}
	if c.Business.Name == "" {
		return nil, &EncodingError{Platform: PlatformApple, Field: "organizationName", Reason: "business name is empty"}
	}

	fs := card.Fields(c)

	pass := &ApplePass{
		FormatVersion:      1,
		PassTypeIdentifier: e.creds.ApplePassTypeID,
		SerialNumber:       c.SerialNumber,
		TeamIdentifier:     e.creds.AppleTeamID,
		OrganizationName:   c.Business.Name,
		Description:        c.Display.Description,
		LogoText:           c.Display.LogoText,
		BackgroundColor:    c.Display.BackgroundColor,
		ForegroundColor:    c.Display.ForegroundColor,
		LabelColor:         c.Display.LabelColor,
		Barcode: ApplePassBarcode{
			Format:          appleBarcodeFormat,
			Message:         c.Barcode.Value,
			MessageEncoding: "iso-8859-1",
			AltText:         c.Barcode.AltText,
		},
		StoreCard: ApplePassFields{
			PrimaryFields:   applePassFields(fs.Primary),
			SecondaryFields: applePassFields(fs.Secondary),
			AuxiliaryFields: applePassFields(fs.Auxiliary),
		},
	}
	return pass, nil
}

func applePassFields(fields []card.Field) []ApplePassField {
	out := make([]ApplePassField, 0, len(fields))
	for _, f := range fields {
		out = append(out, ApplePassField{Key: f.Key, Label: f.Label, Value: f.Value})
	}
	return out
}
