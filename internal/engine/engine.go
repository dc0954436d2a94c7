package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"caseline/internal/cache"
	"caseline/internal/casework"
	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/events"
	"caseline/internal/metrics"
	"caseline/internal/repo"
)

// SystemActor is recorded on events no caller identity is available for.
const SystemActor = "system"

type Engine struct {
	Store   repo.Store
	Events  events.Writer
	Config  *config.Config
	Cache   cache.StatusCache
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
	NewID   func() string
}

func New(store repo.Store, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Store:  store,
		Config: cfg,
		Cache:  cache.Nop{},
		Log:    logrus.StandardLogger(),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// appendEvent stamps events with the engine clock unless the writer has its own.
func (e Engine) appendEvent(ctx context.Context, s repo.Store, evtType, kind, entityID, actorID string, payload events.Payload) (domain.Event, error) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, s, evtType, kind, entityID, actorID, payload)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func (e Engine) statusCache() cache.StatusCache {
	if e.Cache == nil {
		return cache.Nop{}
	}
	return e.Cache
}

func (e Engine) explanationWindow() time.Duration {
	if e.Config == nil {
		return casework.DefaultExplanationWindow
	}
	return e.Config.ExplanationWindow()
}

func (e Engine) maxAttempts() int {
	if e.Config == nil || e.Config.Numbering.MaxAttempts < 1 {
		return 3
	}
	return e.Config.Numbering.MaxAttempts
}

// NotFoundError names the missing entity. It matches repo.ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }

func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func actorOr(actorID, fallback string) string {
	if actorID != "" {
		return actorID
	}
	if fallback != "" {
		return fallback
	}
	return SystemActor
}

// observe records the outcome of op. Guard rejections are logged at warn
// so refused workflow steps show up in the service log.
func (e Engine) observe(op string, err error, fields logrus.Fields) {
	result := resultOf(err)
	e.Metrics.Operation(op, result)
	entry := e.log().WithField("operation", op).WithFields(fields)
	switch result {
	case "ok":
		entry.Debug("operation applied")
	case "guard":
		entry.WithError(err).Warn("transition rejected")
	case "error":
		entry.WithError(err).Error("operation failed")
	default:
		entry.WithError(err).Info("operation refused")
	}
}

func resultOf(err error) string {
	var gv casework.GuardViolation
	var ve casework.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &gv):
		return "guard"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.Is(err, repo.ErrSequenceConflict), errors.Is(err, repo.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// withNumber reserves a reference number and hands it to insert, retrying
// with a fresh reservation while insert reports the number as taken.
func (e Engine) withNumber(ctx context.Context, kind, prefix string, now time.Time, insert func(number string) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts(); attempt++ {
		seq, serr := e.Store.NextSequence(ctx, kind, now.Year())
		if serr != nil {
			return serr
		}
		number := casework.FormatNumber(prefix, now.Year(), seq)
		err = insert(number)
		if !errors.Is(err, repo.ErrSequenceConflict) {
			return err
		}
		e.Metrics.SequenceRetry(kind)
		e.log().WithFields(logrus.Fields{"kind": kind, "number": number, "attempt": attempt}).Warn("reference number taken, retrying")
	}
	return fmt.Errorf("assign %s number after %d attempts: %w", kind, e.maxAttempts(), err)
}

// ListEvents returns audit events, newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Store.ListEvents(ctx, f)
}
