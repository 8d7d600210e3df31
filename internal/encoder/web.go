package encoder

import "passforge/internal/card"

// WebPass is the browser-hosted pass document. Unlike the native formats it
// embeds the business and the type-specific sub-object verbatim; the web
// renderer decides presentation.
type WebPass struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Subtitle    string                  `json:"subtitle,omitempty"`
	Description string                  `json:"description,omitempty"`
	Theme       WebTheme                `json:"theme"`
	Business    card.Business           `json:"business"`
	Stamp       *card.StampDetails      `json:"stamp,omitempty"`
	Membership  *card.MembershipDetails `json:"membership,omitempty"`
	Customer    *card.Customer          `json:"customer,omitempty"`
	Barcode     WebBarcode              `json:"barcode"`
	Actions     []WebAction             `json:"actions"`
}

// WebTheme carries the three shared color fields.
type WebTheme struct {
	BackgroundColor string `json:"background_color"`
	ForegroundColor string `json:"foreground_color"`
	LabelColor      string `json:"label_color"`
}

// WebBarcode relabels the scan payload as DisplayValue for the web
// renderer; the bytes are still copied verbatim from the canonical card.
type WebBarcode struct {
	Format       string `json:"format"`
	DisplayValue string `json:"display_value"`
	AltText      string `json:"alt_text,omitempty"`
}

// WebAction is one interactive affordance on the hosted pass page.
type WebAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// The fixed action list every web pass carries, in order.
const (
	ActionScan    = "scan"
	ActionShare   = "share"
	ActionDetails = "view-details"
)

// Web renders the web pass document. ID, title, business and barcode are
// required.
func (e *Encoder) Web(c *card.UnifiedCardData) (*WebPass, error) {
	if c.ID == "" {
		return nil, &EncodingError{Platform: PlatformWeb, Field: "id", Reason: "card id is empty"}
	}
	if c.Display.Name == "" {
		return nil, &EncodingError{Platform: PlatformWeb, Field: "title", Reason: "display name is empty"}
	}
	if c.Business.Name == "" || c.Business.Email == "" {
		return nil, &EncodingError{Platform: PlatformWeb, Field: "business", Reason: "business name or email is empty"}
	}
	if c.Barcode.Value == "" {
		return nil, &EncodingError{Platform: PlatformWeb, Field: "barcode", Reason: "barcode value is empty"}
	}

	return &WebPass{
		ID:          c.ID,
		Title:       c.Display.Name,
		Subtitle:    c.Business.Name,
		Description: c.Display.Description,
		Theme: WebTheme{
			BackgroundColor: c.Display.BackgroundColor,
			ForegroundColor: c.Display.ForegroundColor,
			LabelColor:      c.Display.LabelColor,
		},
		Business:   c.Business,
		Stamp:      c.Stamp,
		Membership: c.Membership,
		Customer:   c.Customer,
		Barcode: WebBarcode{
			Format:       string(c.Barcode.Format),
			DisplayValue: c.Barcode.Value,
			AltText:      c.Barcode.AltText,
		},
		Actions: []WebAction{
			{Type: ActionScan, Label: "Scan"},
			{Type: ActionShare, Label: "Share"},
			{Type: ActionDetails, Label: "View details"},
		},
	}, nil
}
