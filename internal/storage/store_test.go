package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "facegate.db"))
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "facegate.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	c := &models.Client{Name: "Ann", Email: "ann@example.com", Active: true, ExpirationDate: time.Now().AddDate(0, 1, 0)}
	require.NoError(t, s.CreateClient(ctx, c))
	s.Close()

	// Reapplying migrations on an existing database is a no-op.
	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err, "reopen")
	defer s.Close()
	got, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Email, got.Email)

	err = s.CreateClient(ctx, newClient("Ann", "ANN@example.com", true, 30))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "open.db")}, 128)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	mem, err := Open(ctx, config.DatabaseConfig{Driver: "memory"}, 128)
	require.NoError(t, err)
	assert.NotNil(t, mem)

	_, err = Open(ctx, config.DatabaseConfig{Driver: "mysql"}, 128)
	assert.Error(t, err, "unknown driver must fail")
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		c := newClient("Ann", "ann@example.com", true, 30)
		require.NoError(t, s.CreateClient(ctx, c))
		require.NotEqual(t, uuid.Nil, c.ID, "expected ID to be assigned")

		got, err := s.GetClient(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ann", got.Name)
		assert.True(t, got.Active)
		assert.False(t, got.HasFace())
		assert.True(t, got.ExpirationDate.Equal(models.DateOf(c.ExpirationDate)),
			"expiration = %v, want %v", got.ExpirationDate, c.ExpirationDate)

		byEmail, err := s.GetClientByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byEmail.ID)
	})

	t.Run("unknown client", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.GetClient(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetClientByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		err = s.StoreSignature(ctx, uuid.New(), biometric.Signature{0.1, 0.2}, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("email uniqueness ignores case", func(t *testing.T) {
		tests := []struct {
			name   string
			second string
		}{
			{"exact duplicate", "Ann@example.com"},
			{"lower case", "ann@example.com"},
			{"upper case", "ANN@EXAMPLE.COM"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				ann := newClient("Ann", "Ann@example.com", true, 30)
				require.NoError(t, s.CreateClient(ctx, ann))

				err := s.CreateClient(ctx, newClient("Other Ann", tt.second, true, 30))
				require.ErrorIs(t, err, ErrEmailTaken)

				got, err := s.GetClientByEmail(ctx, tt.second)
				require.NoError(t, err)
				assert.Equal(t, ann.ID, got.ID)
			})
		}
	})

	t.Run("update to a case variant of another email", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateClient(ctx, newClient("Ann", "ann@example.com", true, 30)))
		bob := newClient("Bob", "bob@example.com", true, 30)
		require.NoError(t, s.CreateClient(ctx, bob))

		taken := "ANN@example.com"
		_, err := s.UpdateClient(ctx, bob.ID, models.ClientUpdate{Email: &taken})
		require.ErrorIs(t, err, ErrEmailTaken)

		// Changing the case of one's own email is fine.
		own := "Bob@Example.com"
		got, err := s.UpdateClient(ctx, bob.ID, models.ClientUpdate{Email: &own})
		require.NoError(t, err)
		assert.Equal(t, own, got.Email)
	})

	t.Run("active listing excludes inactive and expired", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		good := newClient("Good", "good@example.com", true, 30)
		expired := newClient("Expired", "expired@example.com", true, -1)
		inactive := newClient("Inactive", "inactive@example.com", false, 30)
		today := newClient("Today", "today@example.com", true, 0)
		for _, c := range []*models.Client{good, expired, inactive, today} {
			require.NoError(t, s.CreateClient(ctx, c))
		}

		active, err := s.ListActiveClients(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{good.ID, today.ID}, clientIDs(active), "active = %v", names(active))

		all, err := s.ListClients(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("roster holds active enrolled clients in creation order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		first := newClient("First", "first@example.com", true, 30)
		noFace := newClient("NoFace", "noface@example.com", true, 30)
		inactive := newClient("Inactive", "inactive@example.com", false, 30)
		expired := newClient("Expired", "expired@example.com", true, -10)
		last := newClient("Last", "last@example.com", true, 30)
		for _, c := range []*models.Client{first, noFace, inactive, expired, last} {
			require.NoError(t, s.CreateClient(ctx, c))
		}
		for _, c := range []*models.Client{last, inactive, expired, first} {
			require.NoError(t, s.StoreSignature(ctx, c.ID, biometric.Signature{0.1, 0.2, 0.3}, ""))
		}

		roster, err := s.FetchSignatureRoster(ctx, 0)
		require.NoError(t, err)
		want := []uuid.UUID{first.ID, expired.ID, last.ID}
		require.Len(t, roster, len(want))
		for i, e := range roster {
			assert.Equal(t, want[i], e.ClientID, "roster[%d]", i)
			sig, err := biometric.Decode(e.Signature)
			require.NoError(t, err)
			assert.Len(t, sig, 3)
		}

		limited, err := s.FetchSignatureRoster(ctx, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, first.ID, limited[0].ClientID)
	})

	t.Run("deactivation keeps signature", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		c := newClient("Ann", "ann@example.com", true, 30)
		require.NoError(t, s.CreateClient(ctx, c))
		require.NoError(t, s.StoreSignature(ctx, c.ID, biometric.Signature{0.5, 0.5}, "clients/ann.jpg"))

		got, err := s.DeactivateClient(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, got.Active, "client still active")

		stored, err := s.GetClient(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, stored.HasFace(), "signature lost on deactivation")
		assert.Equal(t, "clients/ann.jpg", stored.FaceImageKey)

		roster, err := s.FetchSignatureRoster(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, roster, "inactive client still in roster")
	})

	t.Run("partial update", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		c := newClient("Ann", "ann@example.com", true, 30)
		require.NoError(t, s.CreateClient(ctx, c))

		name := "Ann Smith"
		exp := time.Date(2030, 1, 2, 15, 0, 0, 0, time.UTC)
		got, err := s.UpdateClient(ctx, c.ID, models.ClientUpdate{Name: &name, ExpirationDate: &exp})
		require.NoError(t, err)
		assert.Equal(t, name, got.Name)
		assert.Equal(t, "ann@example.com", got.Email)
		assert.Equal(t, "2030-01-02", got.ExpirationDate.Format(models.DateLayout))

		_, err = s.UpdateClient(ctx, uuid.New(), models.ClientUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("access events", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		c := newClient("Ann", "ann@example.com", true, 30)
		require.NoError(t, s.CreateClient(ctx, c))

		base := time.Now().UTC().Truncate(time.Millisecond)
		granted := &models.AccessEvent{ClientID: &c.ID, Outcome: models.OutcomeGranted, Confidence: 71.5, DecidedAt: base}
		denied := &models.AccessEvent{Outcome: models.OutcomeDeniedNoMatch, DecidedAt: base.Add(time.Second)}
		for _, ev := range []*models.AccessEvent{granted, denied} {
			require.NoError(t, s.RecordAccessEvent(ctx, ev))
		}
		// Redelivered events are ignored.
		require.NoError(t, s.RecordAccessEvent(ctx, granted))

		events, total, err := s.ListAccessEvents(ctx, models.AccessEventFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, events, 2)
		assert.Equal(t, denied.ID, events[0].ID, "newest first")

		events, total, err = s.ListAccessEvents(ctx, models.AccessEventFilter{ClientID: &c.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, events, 1)
		assert.Equal(t, models.OutcomeGranted, events[0].Outcome)
		assert.Equal(t, 71.5, events[0].Confidence)

		got, err := s.GetAccessEvent(ctx, denied.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ClientID)
		assert.Equal(t, models.OutcomeDeniedNoMatch, got.Outcome)

		_, err = s.GetAccessEvent(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func newClient(name, email string, active bool, daysLeft int) *models.Client {
	return &models.Client{
		Name:           name,
		Email:          email,
		Active:         active,
		ExpirationDate: models.DateOf(time.Now()).AddDate(0, 0, daysLeft),
	}
}

func clientIDs(cs []models.Client) []uuid.UUID {
	ids := make([]uuid.UUID, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func names(cs []models.Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
