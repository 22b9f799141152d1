// Package dashboard summarizes the ward for the home screen.
package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	pkgauth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

// Summary is what the home screen shows.
type Summary struct {
	Loaded          bool   `json:"loaded"`
	Greeting        string `json:"greeting"`
	Rooms           int    `json:"rooms"`
	ActivePatients  int    `json:"active_patients"`
	UnhandledAlerts int    `json:"unhandled_alerts"`
}

type roomsService interface {
	ListRooms(ctx context.Context) ([]rooms.Room, error)
	WatchRooms(ctx context.Context, opts mirror.Options[rooms.Room]) (*mirror.Mirror[rooms.Room], error)
}

type patientsService interface {
	ListActive(ctx context.Context) ([]patients.Patient, error)
	WatchActive(ctx context.Context, opts mirror.Options[patients.Patient]) (*mirror.Mirror[patients.Patient], error)
}

type alertsService interface {
	CountUnhandled(ctx context.Context) (int, error)
	WatchUnhandled(ctx context.Context, opts mirror.Options[alerts.Alert]) (*mirror.Mirror[alerts.Alert], error)
}

type profilesService interface {
	GetProfile(ctx context.Context, id pkgauth.Identity) (*profiles.Profile, error)
	WatchProfile(ctx context.Context, id pkgauth.Identity, opts mirror.Options[profiles.Profile]) (*mirror.Single[profiles.Profile], error)
}

// Service builds dashboard summaries.
type Service interface {
	Summary(ctx context.Context, id pkgauth.Identity) (*Summary, error)
	Watch(ctx context.Context, id pkgauth.Identity) (*Feed, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Rooms    roomsService
	Patients patientsService
	Alerts   alertsService
	Profiles profilesService
}

type service struct {
	rooms    roomsService
	patients patientsService
	alerts   alertsService
	profiles profilesService
}

func NewService(params ServiceParams) (Service, error) {
	if params.Rooms == nil || params.Patients == nil || params.Alerts == nil || params.Profiles == nil {
		return nil, fmt.Errorf("dashboard requires rooms, patients, alerts, and profiles services")
	}
	return &service{
		rooms:    params.Rooms,
		patients: params.Patients,
		alerts:   params.Alerts,
		profiles: params.Profiles,
	}, nil
}

func (s *service) Summary(ctx context.Context, id pkgauth.Identity) (*Summary, error) {
	roomRows, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.patients.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	unhandled, err := s.alerts.CountUnhandled(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Loaded:          true,
		Greeting:        profile.DisplayName,
		Rooms:           len(roomRows),
		ActivePatients:  len(active),
		UnhandledAlerts: unhandled,
	}, nil
}

// Watch opens one mirror per source and folds them into a live summary.
func (s *service) Watch(ctx context.Context, id pkgauth.Identity) (*Feed, error) {
	f := newFeed(profiles.Default(id).DisplayName)

	roomsMirror, err := s.rooms.WatchRooms(ctx, mirror.Options[rooms.Room]{
		OnChange: func(v mirror.View[rooms.Room]) {
			f.apply(partRooms, func(sum *Summary) { sum.Rooms = len(v.Items) })
		},
	})
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, roomsMirror.Close)

	patientsMirror, err := s.patients.WatchActive(ctx, mirror.Options[patients.Patient]{
		OnChange: func(v mirror.View[patients.Patient]) {
			f.apply(partPatients, func(sum *Summary) { sum.ActivePatients = len(v.Items) })
		},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.closers = append(f.closers, patientsMirror.Close)

	alertsMirror, err := s.alerts.WatchUnhandled(ctx, mirror.Options[alerts.Alert]{
		OnChange: func(v mirror.View[alerts.Alert]) {
			f.apply(partAlerts, func(sum *Summary) { sum.UnhandledAlerts = len(v.Items) })
		},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.closers = append(f.closers, alertsMirror.Close)

	def := profiles.Default(id)
	profileMirror, err := s.profiles.WatchProfile(ctx, id, mirror.Options[profiles.Profile]{
		OnChange: func(v mirror.View[profiles.Profile]) {
			p, _ := mirror.ValueOf(v, def)
			f.apply(partProfile, func(sum *Summary) { sum.Greeting = p.DisplayName })
		},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.closers = append(f.closers, profileMirror.Close)
	return f, nil
}

const (
	partRooms = 1 << iota
	partPatients
	partAlerts
	partProfile

	allParts = partRooms | partPatients | partAlerts | partProfile
)

// Feed is a live dashboard summary.
type Feed struct {
	mu      sync.Mutex
	current Summary
	seen    int
	closed  bool

	updates   chan Summary
	closers   []func()
	closeOnce sync.Once
}

func newFeed(greeting string) *Feed {
	return &Feed{
		current: Summary{Greeting: greeting},
		updates: make(chan Summary, 1),
	}
}

func (f *Feed) apply(part int, fn func(*Summary)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	fn(&f.current)
	f.seen |= part
	f.current.Loaded = f.seen == allParts

	select {
	case <-f.updates:
	default:
	}
	f.updates <- f.current
}

// Current returns the latest summary.
func (f *Feed) Current() Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Updates yields the newest summary after each change. It is not closed;
// stop reading once Close returns.
func (f *Feed) Updates() <-chan Summary { return f.updates }

// Close releases every underlying mirror. It is safe to call repeatedly.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		for _, c := range f.closers {
			c()
		}
	})
}
