package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
)

// MemoryStore keeps everything in process memory. Used by tests and the
// "memory" database driver.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*models.Client
	order   []uuid.UUID
	events  []models.AccessEvent
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[uuid.UUID]*models.Client),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close()                     {}

func (s *MemoryStore) CreateClient(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(c.Email, uuid.Nil) {
		return ErrEmailTaken
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.now()
	// Keep created_at strictly increasing so roster order matches insertion.
	if n := len(s.order); n > 0 {
		if last := s.clients[s.order[n-1]].CreatedAt; !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}
	c.CreatedAt, c.UpdatedAt = now, now
	c.ExpirationDate = models.DateOf(c.ExpirationDate)

	cp := *c
	cp.Signature = cloneBytes(c.Signature)
	s.clients[c.ID] = &cp
	s.order = append(s.order, c.ID)
	return nil
}

func (s *MemoryStore) emailTakenLocked(email string, except uuid.UUID) bool {
	for id, c := range s.clients {
		if id != except && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetClient(_ context.Context, id uuid.UUID) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyClient(c), nil
}

func (s *MemoryStore) GetClientByEmail(_ context.Context, email string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if c := s.clients[id]; strings.EqualFold(c.Email, email) {
			return copyClient(c), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListClients(context.Context) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Client, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *copyClient(s.clients[id]))
	}
	return out, nil
}

func (s *MemoryStore) ListActiveClients(_ context.Context, asOf time.Time) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Client
	for _, id := range s.order {
		if c := s.clients[id]; c.InGoodStanding(asOf) {
			out = append(out, *copyClient(c))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateClient(_ context.Context, id uuid.UUID, upd models.ClientUpdate) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != nil && s.emailTakenLocked(*upd.Email, id) {
		return nil, ErrEmailTaken
	}
	applyUpdate(c, upd)
	c.UpdatedAt = s.now()
	return copyClient(c), nil
}

func (s *MemoryStore) DeactivateClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	inactive := false
	return s.UpdateClient(ctx, id, models.ClientUpdate{Active: &inactive})
}

func (s *MemoryStore) StoreSignature(_ context.Context, id uuid.UUID, sig biometric.Signature, imageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.Signature = sig.Bytes()
	c.FaceImageKey = imageKey
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) FetchSignatureRoster(_ context.Context, limit int) ([]models.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roster []models.RosterEntry
	for _, id := range s.order {
		c := s.clients[id]
		if !c.Active || len(c.Signature) == 0 {
			continue
		}
		roster = append(roster, models.RosterEntry{ClientID: id, Signature: cloneBytes(c.Signature)})
		if limit > 0 && len(roster) == limit {
			break
		}
	}
	return roster, nil
}

// SetSignatureBytes stores raw signature bytes without validation, letting
// tests plant corrupt roster entries.
func (s *MemoryStore) SetSignatureBytes(id uuid.UUID, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		c.Signature = cloneBytes(raw)
	}
}

func (s *MemoryStore) RecordAccessEvent(_ context.Context, ev *models.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.DecidedAt.IsZero() {
		ev.DecidedAt = s.now()
	}
	for _, e := range s.events {
		if e.ID == ev.ID {
			return nil
		}
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) GetAccessEvent(_ context.Context, id uuid.UUID) (*models.AccessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			ev := e
			return &ev, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAccessEvents(_ context.Context, f models.AccessEventFilter) ([]models.AccessEvent, int, error) {
	s.mu.RLock()
	var matched []models.AccessEvent
	for _, e := range s.events {
		if f.ClientID != nil && (e.ClientID == nil || *e.ClientID != *f.ClientID) {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].DecidedAt.After(matched[j].DecidedAt) })

	total := len(matched)
	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + clampEventLimit(f.Limit)
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func copyClient(c *models.Client) *models.Client {
	cp := *c
	cp.Signature = cloneBytes(c.Signature)
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// MemoryArchive is an ImageArchive backed by a map.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte)}
}

func (a *MemoryArchive) PutObject(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = cloneBytes(data)
	return nil
}

func (a *MemoryArchive) GetObject(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(b), nil
}

func (a *MemoryArchive) DeleteObject(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *MemoryArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}
