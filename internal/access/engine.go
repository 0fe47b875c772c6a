package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

// ErrScanAborted is returned when the roster scan is cancelled or runs past
// the configured scan timeout.
var ErrScanAborted = errors.New("roster scan aborted")

// ErrUnavailable is returned when no extractor is configured, e.g. the ONNX
// models failed to load.
var ErrUnavailable = errors.New("face recognition is not available")

// SignatureExtractor turns an encoded image into a face signature.
type SignatureExtractor interface {
	Extract(data []byte) (biometric.Signature, error)
}

type Options struct {
	// Tolerance is the maximum distance accepted as a match. nil means
	// biometric.DefaultTolerance; zero is a legal, exact-match setting.
	Tolerance     *float64
	ScanTimeout   time.Duration
	MaxRosterSize int
	ArchiveProbes bool
}

type Config struct {
	Store     storage.ClientStore
	Extractor SignatureExtractor
	// Archive and Recorder are optional.
	Archive  storage.ImageArchive
	Recorder Recorder
	Options  Options
}

// Engine identifies probe faces against the enrolled roster and manages
// enrollment.
type Engine struct {
	store     storage.ClientStore
	extractor SignatureExtractor
	archive   storage.ImageArchive
	recorder  Recorder
	opts      Options
	tolerance float64
	now       func() time.Time
}

func NewEngine(cfg Config) *Engine {
	tolerance := biometric.DefaultTolerance
	if t := cfg.Options.Tolerance; t != nil {
		if *t >= 0 {
			tolerance = *t
		} else {
			slog.Warn("ignoring negative match tolerance", "tolerance", *t, "default", tolerance)
		}
	}
	return &Engine{
		store:     cfg.Store,
		extractor: cfg.Extractor,
		archive:   cfg.Archive,
		recorder:  cfg.Recorder,
		opts:      cfg.Options,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Tolerance returns the match threshold in effect.
func (e *Engine) Tolerance() float64 {
	return e.tolerance
}

// Result is the outcome of one identification.
type Result struct {
	Outcome    models.Outcome
	Client     *models.Client
	Confidence float64
	EventID    uuid.UUID
}

func (r *Result) Granted() bool {
	return r.Outcome == models.OutcomeGranted
}

func (r *Result) Message() string {
	switch r.Outcome {
	case models.OutcomeGranted:
		return fmt.Sprintf("Welcome %s!", r.Client.Name)
	case models.OutcomeDeniedExpired:
		return fmt.Sprintf("Hello %s, your membership has expired. Please contact reception.", r.Client.Name)
	default:
		return "Face not recognized. Access denied."
	}
}

// Identify extracts the probe face and decides whether to let it in. Every
// attempt, including rejected ones, is recorded as an access event.
func (e *Engine) Identify(ctx context.Context, image []byte) (*Result, error) {
	eventID := uuid.New()

	probe, err := e.extract(image)
	if err != nil {
		e.record(ctx, eventID, image, nil, err)
		return nil, err
	}

	res, err := e.Decide(ctx, probe)
	if err != nil {
		e.record(ctx, eventID, image, nil, err)
		return nil, err
	}

	res.EventID = eventID
	e.record(ctx, eventID, image, res, nil)
	return res, nil
}

// Decide runs one probe signature against the roster. The best match is the
// one with strictly highest confidence; ties keep the earlier roster entry.
func (e *Engine) Decide(ctx context.Context, probe biometric.Signature) (*Result, error) {
	scanCtx := ctx
	if e.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, e.opts.ScanTimeout)
		defer cancel()
	}

	roster, err := e.roster(scanCtx)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return e.decided(&Result{Outcome: models.OutcomeDeniedNoMatch}), nil
	}

	start := time.Now()
	best := -1
	var bestConfidence float64
	for i, cand := range roster {
		if err := scanCtx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d of %d candidates: %w", ErrScanAborted, i, len(roster), err)
		}
		match, confidence, err := biometric.CompareRaw(cand.Signature, probe, e.tolerance)
		if err != nil {
			observability.ComparisonErrors.Inc()
			slog.Warn("skip roster candidate", "client_id", cand.ClientID, "error", err)
			continue
		}
		if match && (best < 0 || confidence > bestConfidence) {
			best, bestConfidence = i, confidence
		}
	}
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())

	if best < 0 {
		return e.decided(&Result{Outcome: models.OutcomeDeniedNoMatch}), nil
	}

	client, err := e.store.GetClient(ctx, roster[best].ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Warn("matched client disappeared", "client_id", roster[best].ClientID)
		return e.decided(&Result{Outcome: models.OutcomeDeniedNoMatch}), nil
	}
	if err != nil {
		return nil, biometric.Wrap(biometric.ReasonNoRoster, "could not load matched client", err)
	}

	res := &Result{Outcome: models.OutcomeDeniedExpired, Client: client, Confidence: bestConfidence}
	if client.InGoodStanding(e.now()) {
		res.Outcome = models.OutcomeGranted
	}
	return e.decided(res), nil
}

func (e *Engine) roster(ctx context.Context) ([]models.RosterEntry, error) {
	limit := e.opts.MaxRosterSize
	if limit > 0 {
		// One extra row tells us whether the roster was cut.
		limit++
	}
	roster, err := e.store.FetchSignatureRoster(ctx, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w while loading roster: %w", ErrScanAborted, ctxErr)
		}
		return nil, biometric.Wrap(biometric.ReasonNoRoster, "could not load enrolled signatures", err)
	}
	if e.opts.MaxRosterSize > 0 && len(roster) > e.opts.MaxRosterSize {
		slog.Warn("roster truncated", "limit", e.opts.MaxRosterSize)
		roster = roster[:e.opts.MaxRosterSize]
	}
	observability.RosterSize.Set(float64(len(roster)))
	return roster, nil
}

func (e *Engine) decided(r *Result) *Result {
	observability.AccessDecisions.WithLabelValues(string(r.Outcome)).Inc()
	return r
}

// Enroll replaces the signature of an existing client. A failed extraction
// leaves the previous signature in place.
func (e *Engine) Enroll(ctx context.Context, clientID uuid.UUID, image []byte) (*models.Client, error) {
	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, notFound(err)
	}

	sig, err := e.extract(image)
	if err != nil {
		return nil, err
	}

	key := e.archiveImage(ctx, storage.EnrollmentKey(clientID), image)
	if err := e.store.StoreSignature(ctx, clientID, sig, key); err != nil {
		e.discard(ctx, key)
		return nil, notFound(err)
	}
	if client.FaceImageKey != "" && client.FaceImageKey != key {
		e.discard(ctx, client.FaceImageKey)
	}

	client.Signature = sig.Bytes()
	client.FaceImageKey = key
	slog.Info("face enrolled", "client_id", clientID)
	return client, nil
}

// CreateWithFace extracts first and only then creates the client together
// with its signature, so a failure creates nothing. A taken email is reported
// before any inference runs.
func (e *Engine) CreateWithFace(ctx context.Context, c *models.Client, image []byte) error {
	switch _, err := e.store.GetClientByEmail(ctx, c.Email); {
	case err == nil:
		return storage.ErrEmailTaken
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	sig, err := e.extract(image)
	if err != nil {
		return err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Signature = sig.Bytes()
	c.FaceImageKey = e.archiveImage(ctx, storage.EnrollmentKey(c.ID), image)

	if err := e.store.CreateClient(ctx, c); err != nil {
		e.discard(ctx, c.FaceImageKey)
		c.Signature, c.FaceImageKey = nil, ""
		return err
	}
	slog.Info("client created with face", "client_id", c.ID)
	return nil
}

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Search lists the enrolled clients nearest to the probe face, closest first,
// regardless of tolerance or standing.
func (e *Engine) Search(ctx context.Context, image []byte, limit int) ([]storage.SearchMatch, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	probe, err := e.extract(image)
	if err != nil {
		return nil, err
	}

	if s, ok := e.store.(storage.SignatureSearcher); ok {
		matches, err := s.NearestClients(ctx, probe, limit)
		if err != nil {
			return nil, biometric.Wrap(biometric.ReasonNoRoster, "signature search failed", err)
		}
		return matches, nil
	}

	roster, err := e.roster(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]storage.SearchMatch, 0, len(roster))
	for _, cand := range roster {
		known, err := biometric.Decode(cand.Signature)
		if err != nil {
			continue
		}
		d, err := biometric.Distance(known, probe)
		if err != nil {
			continue
		}
		matches = append(matches, storage.SearchMatch{ClientID: cand.ClientID, Distance: d, Confidence: biometric.Confidence(d)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		if c, err := e.store.GetClient(ctx, matches[i].ClientID); err == nil {
			matches[i].Name = c.Name
		}
	}
	return matches, nil
}

func (e *Engine) extract(image []byte) (biometric.Signature, error) {
	if e.extractor == nil {
		return nil, ErrUnavailable
	}
	return e.extractor.Extract(image)
}

// archiveImage stores image under key and returns the key, or "" when no
// archive is configured or the upload failed.
func (e *Engine) archiveImage(ctx context.Context, key string, image []byte) string {
	if e.archive == nil {
		return ""
	}
	if err := e.archive.PutObject(ctx, key, image, http.DetectContentType(image)); err != nil {
		slog.Warn("archive image", "key", key, "error", err)
		return ""
	}
	return key
}

func (e *Engine) discard(ctx context.Context, key string) {
	if e.archive == nil || key == "" {
		return
	}
	if err := e.archive.DeleteObject(ctx, key); err != nil {
		slog.Warn("delete archived image", "key", key, "error", err)
	}
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return biometric.Wrap(biometric.ReasonNotFound, "client not found", err)
	}
	return err
}
