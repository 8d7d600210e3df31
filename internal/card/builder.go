package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrCardNotFound is returned when an id matches neither a stamp card nor a
// membership card.
var ErrCardNotFound = errors.New("card not found")

// ErrNoProgress is returned by Datastore.CustomerProgress when no join row
// exists for the card/customer pair. The builder treats it as "template
// card", not as a failure.
var ErrNoProgress = errors.New("no customer progress record")

// Builder turns backing-store records into UnifiedCardData values. It holds
// no per-call state; one Builder may serve concurrent callers.
type Builder struct {
	ds  Datastore
	log *zap.Logger
	now func() time.Time
}

// NewBuilder constructs a Builder over the given datastore. A nil logger is
// replaced with a no-op logger.
func NewBuilder(ds Datastore, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{ds: ds, log: log, now: time.Now}
}

// Build assembles the canonical card for cardID. The id is looked up first
// as a stamp card, then as a membership card; if neither exists the call
// fails with ErrCardNotFound. An empty customerID yields a template card.
// A customerID with no matching progress row also yields a template card;
// absence of the join is not an error.
func (b *Builder) Build(ctx context.Context, cardID, customerID string) (*UnifiedCardData, error) {
	now := b.now().UTC()

	stamp, biz, err := b.ds.StampCard(ctx, cardID)
	switch {
	case err == nil:
		return b.buildStamp(ctx, stamp, biz, customerID, now)
	case errors.Is(err, ErrCardNotFound):
		// Fall through to the membership lookup.
	default:
		return nil, fmt.Errorf("stamp card lookup: %w", err)
	}

	member, biz, err := b.ds.MembershipCard(ctx, cardID)
	switch {
	case err == nil:
		return b.buildMembership(ctx, member, biz, customerID, now)
	case errors.Is(err, ErrCardNotFound):
		return nil, fmt.Errorf("card %q: %w", cardID, ErrCardNotFound)
	default:
		return nil, fmt.Errorf("membership card lookup: %w", err)
	}
}

func (b *Builder) buildStamp(ctx context.Context, rec *StampCardRecord, biz *BusinessRecord, customerID string, now time.Time) (*UnifiedCardData, error) {
	progress, err := b.progress(ctx, rec.ID, customerID)
	if err != nil {
		return nil, err
	}

	current := 0
	var customer *Customer
	if progress != nil {
		current = clampInt(progress.CurrentStamps, 0, rec.TotalStamps)
		customer = customerFromProgress(progress)
	}

	c := &UnifiedCardData{
		ID:           rec.ID,
		Kind:         KindStamp,
		SerialNumber: serialNumber(rec.ID, now),
		Business:     businessFromRecord(biz),
		Display: Display{
			Name:            rec.Name,
			Description:     rec.Description,
			BackgroundColor: rec.BackgroundColor,
			ForegroundColor: rec.ForegroundColor,
			LabelColor:      rec.LabelColor,
			LogoText:        rec.LogoText,
		},
		Stamp: &StampDetails{
			TotalStamps:       rec.TotalStamps,
			CurrentStamps:     current,
			RewardDescription: rec.RewardDescription,
			Progress:          stampProgress(current, rec.TotalStamps),
		},
		Customer:  customer,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Version:   1,
		Status:    statusFromRecord(rec.Status),
	}
	c.Barcode = Barcode{
		Format:  FormatQR,
		Value:   BarcodeValue(KindStamp, rec.ID, customerID),
		AltText: rec.Name,
	}

	b.log.Debug("built canonical stamp card",
		zap.String("card_id", rec.ID),
		zap.Bool("template", customer == nil))
	return c, nil
}

func (b *Builder) buildMembership(ctx context.Context, rec *MembershipCardRecord, biz *BusinessRecord, customerID string, now time.Time) (*UnifiedCardData, error) {
	progress, err := b.progress(ctx, rec.ID, customerID)
	if err != nil {
		return nil, err
	}

	used := 0
	var customer *Customer
	// Default expiry applies to template cards and to customers whose
	// progress row omits one.
	expiry := now.AddDate(0, 0, rec.DurationDays)
	if progress != nil {
		used = clampInt(progress.SessionsUsed, 0, rec.TotalSessions)
		customer = customerFromProgress(progress)
		if progress.ExpiryDate != nil {
			expiry = progress.ExpiryDate.UTC()
		}
	}

	c := &UnifiedCardData{
		ID:           rec.ID,
		Kind:         KindMembership,
		SerialNumber: serialNumber(rec.ID, now),
		Business:     businessFromRecord(biz),
		Display: Display{
			Name:            rec.Name,
			Description:     rec.Description,
			BackgroundColor: rec.BackgroundColor,
			ForegroundColor: rec.ForegroundColor,
			LabelColor:      rec.LabelColor,
			LogoText:        rec.LogoText,
		},
		Membership: &MembershipDetails{
			MembershipType: rec.MembershipType,
			TotalSessions:  rec.TotalSessions,
			SessionsUsed:   used,
			Cost:           rec.Cost,
			DurationDays:   rec.DurationDays,
			ExpiryDate:     expiry,
			Benefits:       append([]string(nil), rec.Benefits...),
		},
		Customer:  customer,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		ExpiresAt: &expiry,
		Version:   1,
		Status:    statusFromRecord(rec.Status),
	}
	c.Barcode = Barcode{
		Format:  FormatQR,
		Value:   BarcodeValue(KindMembership, rec.ID, customerID),
		AltText: rec.Name,
	}

	b.log.Debug("built canonical membership card",
		zap.String("card_id", rec.ID),
		zap.Bool("template", customer == nil))
	return c, nil
}

func (b *Builder) progress(ctx context.Context, cardID, customerID string) (*CustomerProgressRecord, error) {
	if customerID == "" {
		return nil, nil
	}
	rec, err := b.ds.CustomerProgress(ctx, cardID, customerID)
	if errors.Is(err, ErrNoProgress) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("customer progress lookup: %w", err)
	}
	return rec, nil
}

// serialNumber makes a serial unique per generation instance: same card,
// different build time, different serial.
func serialNumber(cardID string, now time.Time) string {
	return fmt.Sprintf("%s-%d", cardID, now.UnixMilli())
}

func stampProgress(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total)
}

func businessFromRecord(rec *BusinessRecord) Business {
	if rec == nil {
		return Business{}
	}
	return Business{
		ID:          rec.ID,
		Name:        rec.Name,
		Email:       rec.Email,
		Description: rec.Description,
		LogoURL:     rec.LogoURL,
		Address:     rec.Address,
		Phone:       rec.Phone,
	}
}

func customerFromProgress(rec *CustomerProgressRecord) *Customer {
	return &Customer{
		ID:          rec.CustomerID,
		Name:        rec.CustomerName,
		Email:       rec.CustomerEmail,
		MemberSince: rec.MemberSince,
	}
}

func statusFromRecord(s string) Status {
	switch Status(s) {
	case StatusActive, StatusInactive, StatusExpired:
		return Status(s)
	default:
		return StatusActive
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
