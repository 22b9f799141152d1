package alerts

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

// Service raises, handles, and lists patient-call alerts.
type Service interface {
	Raise(ctx context.Context, req RaiseAlertRequest, source string) (*Alert, error)
	Handle(ctx context.Context, id, handledBy string) (*Alert, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	History(ctx context.Context) ([]Alert, error)
	CountUnhandled(ctx context.Context) (int, error)
	WatchHistory(ctx context.Context, opts mirror.Options[Alert]) (*mirror.Mirror[Alert], error)
	WatchUnhandled(ctx context.Context, opts mirror.Options[Alert]) (*mirror.Mirror[Alert], error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Store        repo.Store
	Source       mirror.Source
	Publisher    EventPublisher
	Logger       *logger.Logger
	HistoryLimit int
	Clock        func() time.Time
}

type service struct {
	alerts    repo.Collection
	source    mirror.Source
	publisher EventPublisher
	logg      *logger.Logger
	limit     int
	now       func() time.Time
}

// NewService builds an alert service. A nil publisher disables fan-out.
func NewService(params ServiceParams) (Service, error) {
	alerts, err := repo.NewCollection(params.Store, collection)
	if err != nil {
		return nil, err
	}
	if params.Source == nil {
		return nil, fmt.Errorf("mirror source is required")
	}
	if params.Publisher == nil {
		params.Publisher = NopPublisher()
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "alerts", Output: io.Discard})
	}
	if params.HistoryLimit <= 0 {
		params.HistoryLimit = DefaultHistoryLimit
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		alerts:    alerts,
		source:    params.Source,
		publisher: params.Publisher,
		logg:      params.Logger,
		limit:     params.HistoryLimit,
		now:       params.Clock,
	}, nil
}

func (s *service) historyQuery() docstore.Query {
	return docstore.OrderByChild("timestamp").LimitToLast(s.limit)
}

func unhandledQuery() docstore.Query {
	return docstore.OrderByChild("status").EqualTo(StatusUnhandled)
}

// Raise records a new unhandled alert stamped with the current time.
func (s *service) Raise(ctx context.Context, req RaiseAlertRequest, source string) (*Alert, error) {
	patient := strings.TrimSpace(req.Patient)
	if patient == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patient is required").
			WithDetails(map[string]string{"patient": "required"})
	}
	if source == "" {
		source = SourceApp
	}
	ts := docstore.Millis(s.now())
	id, err := s.alerts.Create(ctx, docstore.Record{
		"patient":   patient,
		"status":    StatusUnhandled,
		"timestamp": ts,
		"source":    source,
	})
	if err != nil {
		return nil, err
	}
	alert := &Alert{ID: id, Patient: patient, Status: StatusUnhandled, Timestamp: ts, Source: source}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"alert_id": id, "source": source}), "alert.raised")
	s.publish(ctx, Event{Type: EventRaised, AlertID: id, Patient: patient, Source: source, Timestamp: ts})
	return alert, nil
}

// Handle moves an unhandled alert to handled. Handling twice is a state
// conflict; there is no way back. The status check runs in the same store
// transaction as the write, so of two nurses handling one alert only the
// first succeeds.
func (s *service) Handle(ctx context.Context, id, handledBy string) (*Alert, error) {
	at := docstore.Millis(s.now())
	handledBy = strings.TrimSpace(handledBy)
	patch := docstore.Record{"status": StatusHandled, "handledAt": at}
	if handledBy != "" {
		patch["handledBy"] = handledBy
	}

	var current Alert
	err := s.alerts.PatchExisting(ctx, id, patch, func(rec docstore.Record) error {
		current = FromRecord(id, rec)
		if current.Handled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "alert already handled")
		}
		return nil
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "alert not found")
	}
	if err != nil {
		return nil, err
	}
	current.Status = StatusHandled
	current.HandledAt = &at
	current.HandledBy = handledBy
	s.logg.Info(s.logg.WithField(ctx, "alert_id", id), "alert.handled")
	s.publish(ctx, Event{Type: EventHandled, AlertID: id, Patient: current.Patient, Timestamp: at, HandledBy: current.HandledBy})
	return &current, nil
}

func (s *service) GetAlert(ctx context.Context, id string) (*Alert, error) {
	rec, ok, err := s.alerts.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	alert := FromRecord(id, rec)
	return &alert, nil
}

// History returns the newest alerts first, bounded by the history limit.
func (s *service) History(ctx context.Context) ([]Alert, error) {
	children, err := s.alerts.List(ctx, s.historyQuery())
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(children))
	for _, child := range children {
		out = append(out, FromRecord(child.Key, child.Value))
	}
	sort.SliceStable(out, func(i, j int) bool { return NewestFirst(out[i], out[j]) })
	return out, nil
}

func (s *service) CountUnhandled(ctx context.Context) (int, error) {
	children, err := s.alerts.List(ctx, unhandledQuery())
	if err != nil {
		return 0, err
	}
	return len(children), nil
}

// WatchHistory mirrors the alert history, newest first.
func (s *service) WatchHistory(ctx context.Context, opts mirror.Options[Alert]) (*mirror.Mirror[Alert], error) {
	return mirror.Open(ctx, s.source, mirror.Spec[Alert]{
		Name:   "alerts",
		Path:   collection,
		Query:  s.historyQuery(),
		Decode: FromRecord,
		Less:   NewestFirst,
	}, opts)
}

// WatchUnhandled mirrors alerts still waiting for a nurse.
func (s *service) WatchUnhandled(ctx context.Context, opts mirror.Options[Alert]) (*mirror.Mirror[Alert], error) {
	return mirror.Open(ctx, s.source, mirror.Spec[Alert]{
		Name:   "alerts_unhandled",
		Path:   collection,
		Query:  unhandledQuery(),
		Decode: FromRecord,
		Less:   NewestFirst,
	}, opts)
}

// publish never fails the command; the alert is already stored.
func (s *service) publish(ctx context.Context, event Event) {
	if err := s.publisher.PublishAlertEvent(ctx, event); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "alert_id", event.AlertID), "alert.publish_failed", err)
	}
}
