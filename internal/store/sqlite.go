package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"passforge/internal/card"
)

// SQLiteStore is the durable datastore and artifact store. One connection,
// WAL mode; the driver is pure Go so deployments need no cgo toolchain.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

const timeLayout = time.RFC3339Nano

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			logo_url    TEXT NOT NULL DEFAULT '',
			address     TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS stamp_cards (
			id                 TEXT PRIMARY KEY,
			business_id        TEXT NOT NULL REFERENCES businesses(id),
			name               TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			total_stamps       INTEGER NOT NULL,
			reward_description TEXT NOT NULL DEFAULT '',
			background_color   TEXT NOT NULL DEFAULT '',
			foreground_color   TEXT NOT NULL DEFAULT '',
			label_color        TEXT NOT NULL DEFAULT '',
			logo_text          TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'active',
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS membership_cards (
			id               TEXT PRIMARY KEY,
			business_id      TEXT NOT NULL REFERENCES businesses(id),
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			membership_type  TEXT NOT NULL,
			total_sessions   INTEGER NOT NULL,
			cost             REAL NOT NULL DEFAULT 0,
			duration_days    INTEGER NOT NULL,
			benefits         TEXT NOT NULL DEFAULT '[]',
			background_color TEXT NOT NULL DEFAULT '',
			foreground_color TEXT NOT NULL DEFAULT '',
			label_color      TEXT NOT NULL DEFAULT '',
			logo_text        TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'active',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS customer_progress (
			card_id        TEXT NOT NULL,
			customer_id    TEXT NOT NULL,
			customer_name  TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			current_stamps INTEGER NOT NULL DEFAULT 0,
			sessions_used  INTEGER NOT NULL DEFAULT 0,
			expiry_date    TEXT,
			member_since   TEXT NOT NULL,
			PRIMARY KEY (card_id, customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id            TEXT PRIMARY KEY,
			serial_number TEXT NOT NULL,
			platform      TEXT NOT NULL,
			payload       BLOB NOT NULL,
			stored_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_serial ON artifacts(serial_number)`,
		`CREATE TABLE IF NOT EXISTS generation_results (
			request_id   TEXT PRIMARY KEY,
			success      INTEGER NOT NULL,
			payload      BLOB NOT NULL,
			generated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) PutBusiness(ctx context.Context, rec *card.BusinessRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, email, description, logo_url, address, phone)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email,
			description = excluded.description, logo_url = excluded.logo_url,
			address = excluded.address, phone = excluded.phone`,
		rec.ID, rec.Name, rec.Email, rec.Description, rec.LogoURL, rec.Address, rec.Phone)
	if err != nil {
		return fmt.Errorf("put business: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutStampCard(ctx context.Context, rec *card.StampCardRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stamp_cards (id, business_id, name, description, total_stamps,
			reward_description, background_color, foreground_color, label_color,
			logo_text, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			total_stamps = excluded.total_stamps,
			reward_description = excluded.reward_description,
			background_color = excluded.background_color,
			foreground_color = excluded.foreground_color,
			label_color = excluded.label_color, logo_text = excluded.logo_text,
			status = excluded.status, updated_at = excluded.updated_at`,
		rec.ID, rec.BusinessID, rec.Name, rec.Description, rec.TotalStamps,
		rec.RewardDescription, rec.BackgroundColor, rec.ForegroundColor,
		rec.LabelColor, rec.LogoText, rec.Status,
		rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put stamp card: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutMembershipCard(ctx context.Context, rec *card.MembershipCardRecord) error {
	benefits, err := json.Marshal(rec.Benefits)
	if err != nil {
		return fmt.Errorf("marshal benefits: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO membership_cards (id, business_id, name, description,
			membership_type, total_sessions, cost, duration_days, benefits,
			background_color, foreground_color, label_color, logo_text,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			membership_type = excluded.membership_type,
			total_sessions = excluded.total_sessions, cost = excluded.cost,
			duration_days = excluded.duration_days, benefits = excluded.benefits,
			background_color = excluded.background_color,
			foreground_color = excluded.foreground_color,
			label_color = excluded.label_color, logo_text = excluded.logo_text,
			status = excluded.status, updated_at = excluded.updated_at`,
		rec.ID, rec.BusinessID, rec.Name, rec.Description, rec.MembershipType,
		rec.TotalSessions, rec.Cost, rec.DurationDays, string(benefits),
		rec.BackgroundColor, rec.ForegroundColor, rec.LabelColor, rec.LogoText,
		rec.Status, rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put membership card: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutCustomerProgress(ctx context.Context, rec *card.CustomerProgressRecord) error {
	var expiry any
	if rec.ExpiryDate != nil {
		expiry = rec.ExpiryDate.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_progress (card_id, customer_id, customer_name,
			customer_email, current_stamps, sessions_used, expiry_date, member_since)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id, customer_id) DO UPDATE SET
			customer_name = excluded.customer_name,
			customer_email = excluded.customer_email,
			current_stamps = excluded.current_stamps,
			sessions_used = excluded.sessions_used,
			expiry_date = excluded.expiry_date,
			member_since = excluded.member_since`,
		rec.CardID, rec.CustomerID, rec.CustomerName, rec.CustomerEmail,
		rec.CurrentStamps, rec.SessionsUsed, expiry,
		rec.MemberSince.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put customer progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StampCard(ctx context.Context, id string) (*card.StampCardRecord, *card.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.business_id, c.name, c.description, c.total_stamps,
			c.reward_description, c.background_color, c.foreground_color,
			c.label_color, c.logo_text, c.status, c.created_at, c.updated_at,
			b.id, b.name, b.email, b.description, b.logo_url, b.address, b.phone
		FROM stamp_cards c
		JOIN businesses b ON b.id = c.business_id
		WHERE c.id = ?`, id)

	var rec card.StampCardRecord
	var biz card.BusinessRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.BusinessID, &rec.Name, &rec.Description,
		&rec.TotalStamps, &rec.RewardDescription, &rec.BackgroundColor,
		&rec.ForegroundColor, &rec.LabelColor, &rec.LogoText, &rec.Status,
		&createdAt, &updatedAt,
		&biz.ID, &biz.Name, &biz.Email, &biz.Description, &biz.LogoURL,
		&biz.Address, &biz.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, card.ErrCardNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query stamp card: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, &biz, nil
}

func (s *SQLiteStore) MembershipCard(ctx context.Context, id string) (*card.MembershipCardRecord, *card.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.business_id, c.name, c.description, c.membership_type,
			c.total_sessions, c.cost, c.duration_days, c.benefits,
			c.background_color, c.foreground_color, c.label_color, c.logo_text,
			c.status, c.created_at, c.updated_at,
			b.id, b.name, b.email, b.description, b.logo_url, b.address, b.phone
		FROM membership_cards c
		JOIN businesses b ON b.id = c.business_id
		WHERE c.id = ?`, id)

	var rec card.MembershipCardRecord
	var biz card.BusinessRecord
	var benefits, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.BusinessID, &rec.Name, &rec.Description,
		&rec.MembershipType, &rec.TotalSessions, &rec.Cost, &rec.DurationDays,
		&benefits, &rec.BackgroundColor, &rec.ForegroundColor, &rec.LabelColor,
		&rec.LogoText, &rec.Status, &createdAt, &updatedAt,
		&biz.ID, &biz.Name, &biz.Email, &biz.Description, &biz.LogoURL,
		&biz.Address, &biz.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, card.ErrCardNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query membership card: %w", err)
	}
	if err := json.Unmarshal([]byte(benefits), &rec.Benefits); err != nil {
		return nil, nil, fmt.Errorf("decode benefits: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, &biz, nil
}

func (s *SQLiteStore) CustomerProgress(ctx context.Context, cardID, customerID string) (*card.CustomerProgressRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT card_id, customer_id, customer_name, customer_email,
			current_stamps, sessions_used, expiry_date, member_since
		FROM customer_progress
		WHERE card_id = ? AND customer_id = ?`, cardID, customerID)

	var rec card.CustomerProgressRecord
	var expiry sql.NullString
	var memberSince string
	err := row.Scan(&rec.CardID, &rec.CustomerID, &rec.CustomerName,
		&rec.CustomerEmail, &rec.CurrentStamps, &rec.SessionsUsed,
		&expiry, &memberSince)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, card.ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("query customer progress: %w", err)
	}
	if expiry.Valid {
		t := parseTime(expiry.String)
		rec.ExpiryDate = &t
	}
	rec.MemberSince = parseTime(memberSince)
	return &rec, nil
}

func (s *SQLiteStore) StoreArtifact(ctx context.Context, serialNumber, platform string, payload []byte) (ArtifactRef, error) {
	if serialNumber == "" {
		return ArtifactRef{}, fmt.Errorf("store artifact: serial number is empty")
	}
	ref := ArtifactRef{
		ID:           uuid.NewString(),
		SerialNumber: serialNumber,
		Platform:     platform,
		Location:     fmt.Sprintf("sqlite://artifacts/%s", serialNumber),
		StoredAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, serial_number, platform, payload, stored_at)
		VALUES (?, ?, ?, ?, ?)`,
		ref.ID, ref.SerialNumber, ref.Platform, payload, ref.StoredAt.Format(timeLayout))
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("store artifact: %w", err)
	}
	return ref, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, requestID string, success bool, payload []byte, generatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_results (request_id, success, payload, generated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING`,
		requestID, boolToInt(success), payload, generatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCards(ctx context.Context) ([]CardRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 'stamp' FROM stamp_cards
		UNION ALL
		SELECT id, 'membership' FROM membership_cards`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var refs []CardRef
	for rows.Next() {
		var ref CardRef
		var kind string
		if err := rows.Scan(&ref.ID, &kind); err != nil {
			return nil, fmt.Errorf("scan card ref: %w", err)
		}
		ref.Kind = card.Kind(kind)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
