// Package encoder renders UnifiedCardData into the three pass formats:
// an Apple Wallet pass descriptor, a Google Wallet loyalty object, and a
// web pass document. Every encoder is pure, with no I/O and no mutation of
// the input card, and every encoder copies Barcode.Value verbatim, which is
// what keeps the scan code identical across platforms.
package encoder

import (
	"fmt"

	"passforge/internal/card"
)

// Platform names one pass target.
type Platform string

const (
	PlatformApple  Platform = "apple"
	PlatformGoogle Platform = "google"
	PlatformWeb    Platform = "web"
)

// Platforms lists every supported target in stable order.
var Platforms = []Platform{PlatformApple, PlatformGoogle, PlatformWeb}

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformApple, PlatformGoogle, PlatformWeb:
		return true
	}
	return false
}

// EncodingError reports a required field one platform could not produce.
// It is scoped to that platform; sibling encoders are unaffected.
type EncodingError struct {
	Platform Platform
	Field    string
	Reason   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s encoder: field %q: %s", e.Platform, e.Field, e.Reason)
}

// Credentials is the signing/issuer material injected as configuration.
// Nothing in the encoding path fetches credentials at request time.
type Credentials struct {
	AppleTeamID     string
	ApplePassTypeID string
	GoogleIssuerID  string
	GoogleClassID   string
}

// Encoder renders canonical cards for each platform using injected
// credentials. Encoders hold no mutable state and are safe for concurrent
// use.
type Encoder struct {
	creds Credentials
}

// New constructs an Encoder with the given credential material.
func New(creds Credentials) *Encoder {
	return &Encoder{creds: creds}
}

// Encode dispatches to the platform-specific encoder. The payload is a
// JSON-serializable descriptor; callers that need the concrete type use
// Apple/Google/Web directly.
func (e *Encoder) Encode(p Platform, c *card.UnifiedCardData) (any, error) {
	switch p {
	case PlatformApple:
		return e.Apple(c)
	case PlatformGoogle:
		return e.Google(c)
	case PlatformWeb:
		return e.Web(c)
	default:
		return nil, &EncodingError{Platform: p, Field: "platform", Reason: "unknown platform"}
	}
}
