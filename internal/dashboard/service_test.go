package dashboard

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	pkgauth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore/docstoretest"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type noPhotos struct{}

func (noPhotos) Upload(context.Context, string, string, io.Reader) (string, error) { return "", nil }
func (noPhotos) DeleteObject(context.Context, string) error                        { return nil }

type fixture struct {
	svc      Service
	rooms    rooms.Service
	patients patients.Service
	alerts   alerts.Service
	profiles profiles.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := docstoretest.New(t)
	src := mirror.FromStore(store)

	roomSvc, err := rooms.NewService(rooms.ServiceParams{Store: store, Source: src, Locale: language.English})
	require.NoError(t, err)
	patientSvc, err := patients.NewService(patients.ServiceParams{Store: store, Source: src, Locale: language.English})
	require.NoError(t, err)
	alertSvc, err := alerts.NewService(alerts.ServiceParams{Store: store, Source: src})
	require.NoError(t, err)
	profileSvc, err := profiles.NewService(profiles.ServiceParams{Store: store, Source: src, Photos: noPhotos{}})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{Rooms: roomSvc, Patients: patientSvc, Alerts: alertSvc, Profiles: profileSvc})
	require.NoError(t, err)
	return fixture{svc: svc, rooms: roomSvc, patients: patientSvc, alerts: alertSvc, profiles: profileSvc}
}

var nurse = pkgauth.Identity{UID: "u1", Email: "amina@example.com"}

func TestSummaryCountsEverything(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.rooms.CreateRoom(ctx, rooms.CreateRoomRequest{Name: "Room 12B"})
	require.NoError(t, err)
	inactive := false
	_, err = fx.patients.CreatePatient(ctx, patients.CreatePatientRequest{FirstName: "Ann", LastName: "Smith"})
	require.NoError(t, err)
	_, err = fx.patients.CreatePatient(ctx, patients.CreatePatientRequest{FirstName: "Bob", LastName: "Brown", Active: &inactive})
	require.NoError(t, err)
	_, err = fx.alerts.Raise(ctx, alerts.RaiseAlertRequest{Patient: "Patient 101"}, alerts.SourceApp)
	require.NoError(t, err)
	require.NoError(t, fx.profiles.CreateProfile(ctx, "u1", "Amina", "", nurse.Email))

	sum, err := fx.svc.Summary(ctx, nurse)
	require.NoError(t, err)
	require.Equal(t, Summary{Loaded: true, Greeting: "Amina", Rooms: 1, ActivePatients: 1, UnhandledAlerts: 1}, *sum)
}

func TestWatchFoldsLiveChanges(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	feed, err := fx.svc.Watch(ctx, nurse)
	require.NoError(t, err)
	defer feed.Close()

	waitFor(t, feed, func(s Summary) bool { return s.Loaded && s.Greeting == "amina" })

	alert, err := fx.alerts.Raise(ctx, alerts.RaiseAlertRequest{Patient: "Patient 101"}, alerts.SourceApp)
	require.NoError(t, err)
	waitFor(t, feed, func(s Summary) bool { return s.UnhandledAlerts == 1 })

	_, err = fx.alerts.Handle(ctx, alert.ID, "u1")
	require.NoError(t, err)
	waitFor(t, feed, func(s Summary) bool { return s.UnhandledAlerts == 0 })

	feed.Close()
	feed.Close()
	before := feed.Current()
	_, err = fx.rooms.CreateRoom(ctx, rooms.CreateRoomRequest{Name: "Room 1"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, before, feed.Current(), "closed feed must not change")
}

func waitFor(t *testing.T, f *Feed, ok func(Summary) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-f.Updates():
			if ok(s) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out; last summary %+v", f.Current())
		}
	}
}
