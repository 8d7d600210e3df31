package card

import "fmt"

// BarcodeNamespace prefixes every scan payload so scanners can reject codes
// issued by other systems.
const BarcodeNamespace = "PASSFORGE"

// TemplateCustomerToken stands in for the customer segment on template cards.
const TemplateCustomerToken = "TEMPLATE"

func barcodeKindToken(k Kind) string {
	switch k {
	case KindStamp:
		return "STAMP"
	case KindMembership:
		return "MEMBER"
	default:
		return "UNKNOWN"
	}
}

// BarcodeValue derives the namespaced scan payload for a card/customer pair.
// The payload must be byte-identical across every platform artifact, so it
// is computed exactly once, here, at canonical-card build time.
func BarcodeValue(kind Kind, cardID, customerID string) string {
	customer := customerID
	if customer == "" {
		customer = TemplateCustomerToken
	}
	return fmt.Sprintf("%s-%s-%s-%s", BarcodeNamespace, barcodeKindToken(kind), cardID, customer)
}
