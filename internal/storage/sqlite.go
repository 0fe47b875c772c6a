package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
)

const sqliteClientColumns = `id, name, email, active, expiration_date, face_signature, face_image_key, created_at_ms, updated_at_ms`

// SQLiteStore is a single-file store for small single-door deployments.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "./data/facegate.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One connection serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	ms, err := loadMigrations("sqlite", nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateSQL(ctx, db, ms); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Clients ---

func (s *SQLiteStore) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c.ExpirationDate = models.DateOf(c.ExpirationDate)

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO clients (id, name, email, active, expiration_date, face_signature, face_image_key, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			c.ID.String(), c.Name, c.Email, boolInt(c.Active), c.ExpirationDate.Format(models.DateLayout),
			nullBytes(c.Signature), c.FaceImageKey, now.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			if isSQLiteUnique(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("create client: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return getSQLiteClient(ctx, s.db, `WHERE id = ?`, id.String())
}

func (s *SQLiteStore) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	return getSQLiteClient(ctx, s.db, `WHERE lower(email) = lower(?)`, email)
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteClient(ctx context.Context, q sqlQuerier, where string, args ...any) (*models.Client, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sqliteClientColumns+` FROM clients `+where, args...)
	c, err := scanSQLiteClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.listClients(ctx, `ORDER BY created_at_ms, rowid`)
}

func (s *SQLiteStore) ListActiveClients(ctx context.Context, asOf time.Time) ([]models.Client, error) {
	return s.listClients(ctx, `WHERE active = 1 AND expiration_date >= ? ORDER BY created_at_ms, rowid`,
		models.DateOf(asOf).Format(models.DateLayout))
}

func (s *SQLiteStore) listClients(ctx context.Context, tail string, args ...any) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteClientColumns+` FROM clients `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		c, err := scanSQLiteClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *SQLiteStore) UpdateClient(ctx context.Context, id uuid.UUID, upd models.ClientUpdate) (*models.Client, error) {
	var out *models.Client
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := getSQLiteClient(ctx, tx, `WHERE id = ?`, id.String())
		if err != nil {
			return err
		}
		applyUpdate(c, upd)
		c.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx, `
UPDATE clients SET name = ?, email = ?, expiration_date = ?, active = ?, updated_at_ms = ?
WHERE id = ?;`,
			c.Name, c.Email, c.ExpirationDate.Format(models.DateLayout), boolInt(c.Active),
			c.UpdatedAt.UnixMilli(), id.String(),
		)
		if err != nil {
			if isSQLiteUnique(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("update client: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) DeactivateClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	inactive := false
	return s.UpdateClient(ctx, id, models.ClientUpdate{Active: &inactive})
}

func (s *SQLiteStore) StoreSignature(ctx context.Context, id uuid.UUID, sig biometric.Signature, imageKey string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE clients SET face_signature = ?, face_image_key = ?, updated_at_ms = ? WHERE id = ?;`,
			sig.Bytes(), imageKey, time.Now().UTC().UnixMilli(), id.String())
		if err != nil {
			return fmt.Errorf("store signature: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store signature: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) FetchSignatureRoster(ctx context.Context, limit int) ([]models.RosterEntry, error) {
	query := `SELECT id, face_signature FROM clients
WHERE face_signature IS NOT NULL AND active = 1
ORDER BY created_at_ms, rowid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer rows.Close()

	var roster []models.RosterEntry
	for rows.Next() {
		var id string
		var e models.RosterEntry
		if err := rows.Scan(&id, &e.Signature); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		if e.ClientID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// --- Access events ---

func (s *SQLiteStore) RecordAccessEvent(ctx context.Context, ev *models.AccessEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.DecidedAt.IsZero() {
		ev.DecidedAt = time.Now().UTC()
	}
	var clientID any
	if ev.ClientID != nil {
		clientID = ev.ClientID.String()
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO access_events (id, client_id, outcome, confidence, reason, snapshot_key, decided_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
			ev.ID.String(), clientID, string(ev.Outcome), ev.Confidence, ev.Reason, ev.SnapshotKey,
			ev.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("record access event: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetAccessEvent(ctx context.Context, id uuid.UUID) (*models.AccessEvent, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, client_id, outcome, confidence, reason, snapshot_key, decided_at_ms
FROM access_events WHERE id = ?;`, id.String())
	ev, err := scanSQLiteEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get access event: %w", err)
	}
	return ev, nil
}

func (s *SQLiteStore) ListAccessEvents(ctx context.Context, f models.AccessEventFilter) ([]models.AccessEvent, int, error) {
	limit := clampEventLimit(f.Limit)

	var conds []string
	var args []any
	if f.ClientID != nil {
		conds = append(conds, "client_id = ?")
		args = append(args, f.ClientID.String())
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, client_id, outcome, confidence, reason, snapshot_key, decided_at_ms
FROM access_events `+where+` ORDER BY decided_at_ms DESC LIMIT ? OFFSET ?;`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query access events: %w", err)
	}
	defer rows.Close()

	var events []models.AccessEvent
	for rows.Next() {
		ev, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan access event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, total, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteClient(row rowScanner) (*models.Client, error) {
	var (
		c                  models.Client
		id, expiration     string
		active             int
		createdMs, updated int64
	)
	if err := row.Scan(&id, &c.Name, &c.Email, &active, &expiration, &c.Signature,
		&c.FaceImageKey, &createdMs, &updated); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse client id: %w", err)
	}
	if c.ExpirationDate, err = models.ParseDate(expiration); err != nil {
		return nil, fmt.Errorf("parse expiration date: %w", err)
	}
	c.Active = active == 1
	c.CreatedAt = time.UnixMilli(createdMs).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return &c, nil
}

func scanSQLiteEvent(row rowScanner) (*models.AccessEvent, error) {
	var (
		ev        models.AccessEvent
		id        string
		clientID  sql.NullString
		outcome   string
		decidedMs int64
	)
	if err := row.Scan(&id, &clientID, &outcome, &ev.Confidence, &ev.Reason, &ev.SnapshotKey, &decidedMs); err != nil {
		return nil, err
	}
	var err error
	if ev.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	if clientID.Valid {
		cid, err := uuid.Parse(clientID.String)
		if err != nil {
			return nil, fmt.Errorf("parse event client id: %w", err)
		}
		ev.ClientID = &cid
	}
	ev.Outcome = models.Outcome(outcome)
	ev.DecidedAt = time.UnixMilli(decidedMs).UTC()
	return &ev, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
