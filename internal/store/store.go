package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/socialcast/internal/social"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for a (user, platform) key.
var ErrNotFound = errors.New("credentials not found")

// Record is the stored connection of one user to one platform.
type Record struct {
	UserID      string
	Platform    social.Platform
	Credentials social.Credentials
	Settings    social.SettingsOverride
	Active      bool
	Connected   bool
	Health      social.Health
	LastError   string
	LastChecked time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository persists per-user platform credentials.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, userID string, p social.Platform) (Record, error)
	// GetAll returns the active records of userID in platform order.
	GetAll(ctx context.Context, userID string) ([]Record, error)
	Delete(ctx context.Context, userID string, p social.Platform) error
	Deactivate(ctx context.Context, userID string, p social.Platform) error
	UpdateConnectionStatus(ctx context.Context, userID string, status social.ConnectionStatus) error
}

var _ Repository = (*SQLite)(nil)

// SQLite is a Repository backed by a modernc.org/sqlite database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; avoids SQLITE_BUSY between goroutines of one process
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces the credentials and settings of rec. The stored
// connection status is kept.
func (s *SQLite) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.UserID) == "" {
		return errors.New("user id is required")
	}
	if !rec.Platform.Valid() {
		return fmt.Errorf("%w: %q", social.ErrUnknownPlatform, rec.Platform)
	}
	creds, err := json.Marshal(rec.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
INSERT INTO platform_credentials(user_id, platform, credentials, settings, active, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, platform) DO UPDATE SET
  credentials = excluded.credentials,
  settings = excluded.settings,
  active = excluded.active,
  updated_at = excluded.updated_at
`, rec.UserID, string(rec.Platform), string(creds), string(settings), boolInt(rec.Active), now, now)
	if err != nil {
		return fmt.Errorf("save %s credentials: %w", rec.Platform, err)
	}
	return nil
}

const selectColumns = `user_id, platform, credentials, settings, active, connected, health, last_error, last_checked, created_at, updated_at`

// Get returns the record for (userID, p), active or not.
func (s *SQLite) Get(ctx context.Context, userID string, p social.Platform) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM platform_credentials WHERE user_id = ? AND platform = ?`,
		userID, string(p))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s/%s: %w", userID, p, ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetAll returns the active records of userID.
func (s *SQLite) GetAll(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM platform_credentials WHERE user_id = ? AND active = 1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	byPlatform := map[social.Platform]Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		byPlatform[rec.Platform] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	out := make([]Record, 0, len(byPlatform))
	for _, p := range social.Platforms() {
		if rec, ok := byPlatform[p]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes the record for (userID, p).
func (s *SQLite) Delete(ctx context.Context, userID string, p social.Platform) error {
	return s.exec(ctx, userID, p, `DELETE FROM platform_credentials WHERE user_id = ? AND platform = ?`)
}

// Deactivate keeps the record but excludes it from GetAll.
func (s *SQLite) Deactivate(ctx context.Context, userID string, p social.Platform) error {
	return s.exec(ctx, userID, p,
		`UPDATE platform_credentials SET active = 0, updated_at = ? WHERE user_id = ? AND platform = ?`,
		formatTime(time.Now()))
}

// UpdateConnectionStatus records the outcome of a connection check.
func (s *SQLite) UpdateConnectionStatus(ctx context.Context, userID string, status social.ConnectionStatus) error {
	checked := status.LastChecked
	if checked.IsZero() {
		checked = time.Now()
	}
	return s.exec(ctx, userID, status.Platform, `
UPDATE platform_credentials
SET connected = ?, health = ?, last_error = ?, last_checked = ?, updated_at = ?
WHERE user_id = ? AND platform = ?`,
		boolInt(status.Connected), string(status.Health), status.Error, formatTime(checked), formatTime(time.Now()))
}

// exec runs a statement whose trailing parameters are (userID, p) and maps
// "no rows affected" to ErrNotFound.
func (s *SQLite) exec(ctx context.Context, userID string, p social.Platform, query string, args ...any) error {
	args = append(args, userID, string(p))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", userID, p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s/%s: rows affected: %w", userID, p, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", userID, p, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                       Record
		platform, creds, settings string
		active, connected         int
		health                    string
		lastChecked               sql.NullString
		createdAt, updatedAt      string
	)
	if err := row.Scan(&rec.UserID, &platform, &creds, &settings, &active, &connected, &health,
		&rec.LastError, &lastChecked, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.Platform = social.Platform(platform)
	if err := json.Unmarshal([]byte(creds), &rec.Credentials); err != nil {
		return Record{}, fmt.Errorf("decode %s credentials: %w", platform, err)
	}
	if err := json.Unmarshal([]byte(settings), &rec.Settings); err != nil {
		return Record{}, fmt.Errorf("decode %s settings: %w", platform, err)
	}
	rec.Active = active != 0
	rec.Connected = connected != 0
	rec.Health = social.Health(health)
	if lastChecked.Valid {
		rec.LastChecked = parseTime(lastChecked.String)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
