// Package card defines the canonical, platform-agnostic representation of a
// loyalty or membership card and the pure transforms that produce it from
// backing-store records. Nothing in this package performs I/O beyond the
// narrow Datastore interface consumed by the builder.
package card

import (
	"context"
	"time"
)

// Kind discriminates the two card families. Exactly one of
// UnifiedCardData.Stamp / UnifiedCardData.Membership is populated and must
// match this tag.
type Kind string

const (
	KindStamp      Kind = "stamp"
	KindMembership Kind = "membership"
)

// Status is the lifecycle state of a card.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// BarcodeFormat is fixed to a 2-D matrix code for every platform.
type BarcodeFormat string

const FormatQR BarcodeFormat = "QR"

// Business identifies the card-issuing business. Name and Email are
// required; everything else is optional display material.
type Business struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Display carries the visual identity shared by all three pass formats.
type Display struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	BackgroundColor string `json:"background_color"`
	ForegroundColor string `json:"foreground_color"`
	LabelColor      string `json:"label_color"`
	LogoText        string `json:"logo_text,omitempty"`
}

// StampDetails is the stamp-card sub-object. Progress is derived once by the
// builder, never recomputed by consumers.
type StampDetails struct {
	TotalStamps       int     `json:"total_stamps"`
	CurrentStamps     int     `json:"current_stamps"`
	RewardDescription string  `json:"reward_description"`
	Progress          float64 `json:"progress"`
}

// MembershipDetails is the session-based membership sub-object.
type MembershipDetails struct {
	MembershipType string    `json:"membership_type"`
	TotalSessions  int       `json:"total_sessions"`
	SessionsUsed   int       `json:"sessions_used"`
	Cost           float64   `json:"cost"`
	DurationDays   int       `json:"duration_days"`
	ExpiryDate     time.Time `json:"expiry_date"`
	Benefits       []string  `json:"benefits"`
}

// Customer is present only on customer-specific instances, never on
// template cards.
type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email"`
	MemberSince time.Time `json:"member_since"`
}

// Barcode is the scan payload. Value must be byte-identical across every
// platform encoder; encoders copy it verbatim and never re-derive it.
type Barcode struct {
	Format  BarcodeFormat `json:"format"`
	Value   string        `json:"value"`
	AltText string        `json:"alt_text"`
}

// UnifiedCardData is the single canonical card representation. It is built
// fresh from current datastore state on every generation or verification
// call and treated as immutable once returned by the builder.
type UnifiedCardData struct {
	ID           string             `json:"id"`
	Kind         Kind               `json:"kind"`
	SerialNumber string             `json:"serial_number"`
	Business     Business           `json:"business"`
	Display      Display            `json:"display"`
	Stamp        *StampDetails      `json:"stamp,omitempty"`
	Membership   *MembershipDetails `json:"membership,omitempty"`
	Customer     *Customer          `json:"customer,omitempty"`
	Barcode      Barcode            `json:"barcode"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	Version      int                `json:"version"`
	Status       Status             `json:"status"`
}

// IsTemplate reports whether the card was built without a customer join.
func (c *UnifiedCardData) IsTemplate() bool {
	return c.Customer == nil
}

// BusinessRecord is the raw issuing-business row as the datastore returns it.
type BusinessRecord struct {
	ID          string
	Name        string
	Email       string
	Description string
	LogoURL     string
	Address     string
	Phone       string
}

// StampCardRecord is the raw stamp-card row joined with its business.
type StampCardRecord struct {
	ID                string
	BusinessID        string
	Name              string
	Description       string
	TotalStamps       int
	RewardDescription string
	BackgroundColor   string
	ForegroundColor   string
	LabelColor        string
	LogoText          string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MembershipCardRecord is the raw membership-card row joined with its
// business.
type MembershipCardRecord struct {
	ID              string
	BusinessID      string
	Name            string
	Description     string
	MembershipType  string
	TotalSessions   int
	Cost            float64
	DurationDays    int
	Benefits        []string
	BackgroundColor string
	ForegroundColor string
	LabelColor      string
	LogoText        string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CustomerProgressRecord is the per-customer join row for one card. For
// stamp cards CurrentStamps is meaningful; for membership cards
// SessionsUsed and ExpiryDate are.
type CustomerProgressRecord struct {
	CardID        string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CurrentStamps int
	SessionsUsed  int
	ExpiryDate    *time.Time
	MemberSince   time.Time
}

// Datastore is the narrow read interface the builder consumes. Lookups that
// find nothing return ErrCardNotFound (card lookups) or ErrNoProgress
// (customer join); the builder decides what each absence means.
type Datastore interface {
	StampCard(ctx context.Context, id string) (*StampCardRecord, *BusinessRecord, error)
	MembershipCard(ctx context.Context, id string) (*MembershipCardRecord, *BusinessRecord, error)
	CustomerProgress(ctx context.Context, cardID, customerID string) (*CustomerProgressRecord, error)
}
