package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

const clientColumns = `id, name, email, active, expiration_date, face_signature, face_image_key, created_at, updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, signatureDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx, signatureDim); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) migrate(ctx context.Context, signatureDim int) error {
	ms, err := loadMigrations("postgres", map[string]string{"SIGNATURE_DIM": strconv.Itoa(signatureDim)})
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range ms {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var applied bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version,
			).Scan(&applied); err != nil {
				return fmt.Errorf("check migration %d: %w", m.version, err)
			}
			if applied {
				return nil
			}
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// --- Clients ---

func (s *PostgresStore) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.ExpirationDate = models.DateOf(c.ExpirationDate)

	vec, err := signatureVector(c.Signature)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO clients (id, name, email, active, expiration_date, face_signature, signature_vec, face_image_key)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
			c.ID, c.Name, c.Email, c.Active, c.ExpirationDate, c.Signature, vec, c.FaceImageKey,
		).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("create client: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return s.getClient(ctx, s.pool, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	return s.getClient(ctx, s.pool, `WHERE lower(email) = lower($1)`, email)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) getClient(ctx context.Context, q pgQuerier, where string, args ...any) (*models.Client, error) {
	row := q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients `+where, args...)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.listClients(ctx, `ORDER BY created_at, id`)
}

func (s *PostgresStore) ListActiveClients(ctx context.Context, asOf time.Time) ([]models.Client, error) {
	return s.listClients(ctx, `WHERE active = TRUE AND expiration_date >= $1 ORDER BY created_at, id`, models.DateOf(asOf))
}

func (s *PostgresStore) listClients(ctx context.Context, tail string, args ...any) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *PostgresStore) UpdateClient(ctx context.Context, id uuid.UUID, upd models.ClientUpdate) (*models.Client, error) {
	var out *models.Client
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := s.getClient(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		applyUpdate(c, upd)

		err = tx.QueryRow(ctx,
			`UPDATE clients SET name = $1, email = $2, expiration_date = $3, active = $4, updated_at = now()
			 WHERE id = $5 RETURNING updated_at`,
			c.Name, c.Email, c.ExpirationDate, c.Active, id,
		).Scan(&c.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
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

func (s *PostgresStore) DeactivateClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	inactive := false
	return s.UpdateClient(ctx, id, models.ClientUpdate{Active: &inactive})
}

func (s *PostgresStore) StoreSignature(ctx context.Context, id uuid.UUID, sig biometric.Signature, imageKey string) error {
	vec := pgvector.NewVector(sig.Float32())
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE clients SET face_signature = $1, signature_vec = $2, face_image_key = $3, updated_at = now() WHERE id = $4`,
			sig.Bytes(), vec, imageKey, id)
		if err != nil {
			return fmt.Errorf("store signature: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) FetchSignatureRoster(ctx context.Context, limit int) ([]models.RosterEntry, error) {
	query := `SELECT id, face_signature FROM clients
		WHERE face_signature IS NOT NULL AND active = TRUE
		ORDER BY created_at, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer rows.Close()

	var roster []models.RosterEntry
	for rows.Next() {
		var e models.RosterEntry
		if err := rows.Scan(&e.ClientID, &e.Signature); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// NearestClients ranks enrolled active clients by L2 distance using the
// pgvector index.
func (s *PostgresStore) NearestClients(ctx context.Context, sig biometric.Signature, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(sig.Float32())

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, signature_vec <-> $1 AS distance
		FROM clients
		WHERE signature_vec IS NOT NULL AND active = TRUE
		ORDER BY signature_vec <-> $1, created_at, id
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.ClientID, &m.Name, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		m.Confidence = biometric.Confidence(m.Distance)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- Access events ---

func (s *PostgresStore) RecordAccessEvent(ctx context.Context, ev *models.AccessEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.DecidedAt.IsZero() {
		ev.DecidedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_events (id, client_id, outcome, confidence, reason, snapshot_key, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.ClientID, string(ev.Outcome), ev.Confidence, ev.Reason, ev.SnapshotKey, ev.DecidedAt)
	if err != nil {
		return fmt.Errorf("record access event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccessEvent(ctx context.Context, id uuid.UUID) (*models.AccessEvent, error) {
	var ev models.AccessEvent
	err := s.pool.QueryRow(ctx,
		`SELECT id, client_id, outcome, confidence, reason, snapshot_key, decided_at
		 FROM access_events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.ClientID, &ev.Outcome, &ev.Confidence, &ev.Reason, &ev.SnapshotKey, &ev.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get access event: %w", err)
	}
	return &ev, nil
}

func (s *PostgresStore) ListAccessEvents(ctx context.Context, f models.AccessEventFilter) ([]models.AccessEvent, int, error) {
	limit := clampEventLimit(f.Limit)

	var conds []string
	var args []any
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		conds = append(conds, fmt.Sprintf("outcome = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM access_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, client_id, outcome, confidence, reason, snapshot_key, decided_at
		 FROM access_events %s ORDER BY decided_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query access events: %w", err)
	}
	defer rows.Close()

	var events []models.AccessEvent
	for rows.Next() {
		var ev models.AccessEvent
		if err := rows.Scan(&ev.ID, &ev.ClientID, &ev.Outcome, &ev.Confidence, &ev.Reason, &ev.SnapshotKey, &ev.DecidedAt); err != nil {
			return nil, 0, fmt.Errorf("scan access event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// --- helpers ---

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Active, &c.ExpirationDate,
		&c.Signature, &c.FaceImageKey, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func signatureVector(raw []byte) (*pgvector.Vector, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	sig, err := biometric.Decode(raw)
	if err != nil {
		return nil, err
	}
	v := pgvector.NewVector(sig.Float32())
	return &v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func applyUpdate(c *models.Client, upd models.ClientUpdate) {
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.ExpirationDate != nil {
		c.ExpirationDate = models.DateOf(*upd.ExpirationDate)
	}
	if upd.Active != nil {
		c.Active = *upd.Active
	}
}
