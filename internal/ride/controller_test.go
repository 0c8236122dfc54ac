package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/apiclient"
	"ciclogo/client/internal/geo"
	"ciclogo/client/internal/state"
)

type fakeAPI struct {
	stations    []state.Station
	stationsErr error
	active      *state.Reservation
	activeErr   error
	trips       []state.Trip
	tripsErr    error

	reserveErr      error
	pickupErr       error
	returnErr       error
	tripErr         error
	pointsErr       error
	calls           []string
	pickedUpID      int
	pointsAwarded   int
	pointsDistancia float64
	pointsTempo     time.Duration

	mu sync.Mutex
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) ListStations(ctx context.Context) ([]state.Station, error) {
	f.record("ListStations")
	return f.stations, f.stationsErr
}

func (f *fakeAPI) ActiveReservation(ctx context.Context, userID int) (*state.Reservation, error) {
	f.record("ActiveReservation")
	return f.active, f.activeErr
}

func (f *fakeAPI) TripsByUser(ctx context.Context, usuarioID int) ([]state.Trip, error) {
	f.record("TripsByUser")
	return f.trips, f.tripsErr
}

func (f *fakeAPI) Reserve(ctx context.Context, ciclistaID, estacaoID int) error {
	f.record("Reserve")
	return f.reserveErr
}

func (f *fakeAPI) MarkPickedUp(ctx context.Context, reservationID int) error {
	f.record("MarkPickedUp")
	f.pickedUpID = reservationID
	return f.pickupErr
}

func (f *fakeAPI) MarkReturned(ctx context.Context, reservationID int) error {
	f.record("MarkReturned")
	return f.returnErr
}

func (f *fakeAPI) RecordTrip(ctx context.Context, usuarioID, estacaoInicio, estacaoFim int) error {
	f.record("RecordTrip")
	return f.tripErr
}

func (f *fakeAPI) UpdatePoints(ctx context.Context, cyclistID, pontos int, distanciaKM float64, tempo time.Duration) error {
	f.record("UpdatePoints")
	f.pointsAwarded = pontos
	f.pointsDistancia = distanciaKM
	f.pointsTempo = tempo
	return f.pointsErr
}

type fakeCache struct {
	stations []state.Station
	trips    []state.Trip
}

func (f *fakeCache) ReplaceStations(stations []state.Station) error { f.stations = stations; return nil }
func (f *fakeCache) CachedStations() ([]state.Station, error)       { return f.stations, nil }
func (f *fakeCache) ReplaceTrips(trips []state.Trip) error          { f.trips = trips; return nil }
func (f *fakeCache) CachedTrips() ([]state.Trip, error)             { return f.trips, nil }

type recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *recorder) dispatch(evt state.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) all() []state.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.Event(nil), r.events...)
}

func (r *recorder) last() state.Event {
	events := r.all()
	if len(events) == 0 {
		return state.Event{}
	}
	return events[len(events)-1]
}

func (r *recorder) countByType(t state.EventType) int {
	count := 0
	for _, evt := range r.all() {
		if evt.Type == t {
			count++
		}
	}
	return count
}

func newController(api *fakeAPI, cache *fakeCache, rec *recorder) *Controller {
	return NewController(api, cache, nil, zerolog.Nop(), rec.dispatch, Options{
		StepInterval: time.Millisecond,
		PollInterval: time.Hour,
		Intn:         func(n int) int { return 0 },
	})
}

func testStations() []state.Station {
	return []state.Station{
		{ID: 1, Nome: "Central", Position: geo.Coordinate{Latitude: -8.83, Longitude: 13.23}, BikesDisponiveis: 3},
		{ID: 2, Nome: "Marginal", Position: geo.Coordinate{Latitude: -8.81, Longitude: 13.25}, BikesDisponiveis: 0},
		{ID: 3, Nome: "Mutamba", Position: geo.Coordinate{Latitude: -8.84, Longitude: 13.24}, BikesDisponiveis: 2},
	}
}

func TestRefreshDispatchesCombinedResult(t *testing.T) {
	api := &fakeAPI{
		stations: testStations(),
		active:   &state.Reservation{ID: 4, EstacaoID: 1, Status: state.StatusReservada},
		trips:    []state.Trip{{ID: 1, EstacaoInicio: 1, EstacaoFim: 3}},
	}
	cache := &fakeCache{}
	rec := &recorder{}
	c := newController(api, cache, rec)

	c.Refresh(context.Background(), 7)

	evt := rec.last()
	if evt.Type != state.EventSysDataRefreshed {
		t.Fatalf("event = %v", evt.Type)
	}
	payload := evt.Payload.(state.RefreshPayload)
	if len(payload.Stations) != 3 || payload.Active == nil || len(payload.Trips) != 1 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.FromCache {
		t.Error("fresh payload marked as cached")
	}
	if len(cache.stations) != 3 || len(cache.trips) != 1 {
		t.Error("cache not updated")
	}
}

func TestRefreshFailureReportsKind(t *testing.T) {
	api := &fakeAPI{
		stationsErr: &apiclient.Error{Op: "ListStations", Kind: state.ErrorKindNetworkUnavailable, Err: errors.New("dial tcp: refused")},
	}
	rec := &recorder{}
	c := newController(api, &fakeCache{}, rec)

	c.Refresh(context.Background(), 7)

	evt := rec.last()
	if evt.Type != state.EventSysRefreshFailure {
		t.Fatalf("event = %v", evt.Type)
	}
	payload := evt.Payload.(state.ScenarioResultPayload)
	if payload.Kind != state.ErrorKindNetworkUnavailable {
		t.Errorf("Kind = %v", payload.Kind)
	}
	if payload.Message == "" {
		t.Error("empty user message")
	}
}

func TestRefreshSurvivesTripFailure(t *testing.T) {
	api := &fakeAPI{stations: testStations(), tripsErr: errors.New("boom")}
	rec := &recorder{}
	c := newController(api, &fakeCache{}, rec)

	c.Refresh(context.Background(), 7)

	evt := rec.last()
	if evt.Type != state.EventSysDataRefreshed {
		t.Fatalf("event = %v", evt.Type)
	}
	payload := evt.Payload.(state.RefreshPayload)
	if payload.Trips != nil {
		t.Errorf("trips = %+v", payload.Trips)
	}
}

func TestPreloadFromCache(t *testing.T) {
	cache := &fakeCache{stations: testStations()}
	rec := &recorder{}
	c := newController(&fakeAPI{}, cache, rec)

	c.PreloadFromCache()

	evt := rec.last()
	if evt.Type != state.EventSysDataRefreshed {
		t.Fatalf("event = %v", evt.Type)
	}
	payload := evt.Payload.(state.RefreshPayload)
	if !payload.FromCache {
		t.Error("payload not marked as cached")
	}
	if len(payload.Stations) != 3 {
		t.Errorf("stations = %d", len(payload.Stations))
	}
}

func TestPreloadFromCacheEmptyStaysSilent(t *testing.T) {
	rec := &recorder{}
	c := newController(&fakeAPI{}, &fakeCache{}, rec)

	c.PreloadFromCache()

	if len(rec.all()) != 0 {
		t.Errorf("events = %+v", rec.all())
	}
}

func TestChooseDestinationExcludesOriginAndEmptyStations(t *testing.T) {
	rec := &recorder{}
	c := newController(&fakeAPI{}, &fakeCache{}, rec)
	origin := testStations()[0]

	c.ChooseDestination(context.Background(), testStations(), origin)

	evt := rec.last()
	if evt.Type != state.EventSysDestinationChosen {
		t.Fatalf("event = %v", evt.Type)
	}
	payload := evt.Payload.(state.DestinationPayload)
	// Station 1 is the origin and station 2 has no bikes, only 3 remains.
	if payload.Station.ID != 3 {
		t.Errorf("destination = %d", payload.Station.ID)
	}
	if payload.Metrics.DistanceKM <= 0 {
		t.Errorf("DistanceKM = %v", payload.Metrics.DistanceKM)
	}
	if payload.Metrics.Estimated <= 0 {
		t.Errorf("Estimated = %v", payload.Metrics.Estimated)
	}
}

func TestChooseDestinationNoCandidates(t *testing.T) {
	rec := &recorder{}
	c := newController(&fakeAPI{}, &fakeCache{}, rec)
	stations := []state.Station{
		{ID: 1, Nome: "Central", BikesDisponiveis: 3},
		{ID: 2, Nome: "Marginal", BikesDisponiveis: 0},
	}

	c.ChooseDestination(context.Background(), stations, stations[0])

	if rec.last().Type != state.EventSysNoDestination {
		t.Fatalf("event = %v", rec.last().Type)
	}
}

func TestSimulatePickupLeg(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newController(api, &fakeCache{}, rec)

	c.Simulate(context.Background(), SimulationRequest{
		Leg:         state.LegPickup,
		From:        geo.Coordinate{Latitude: 0, Longitude: 0},
		To:          geo.Coordinate{Latitude: 1, Longitude: 1},
		Reservation: state.Reservation{ID: 44},
	})

	if got := rec.countByType(state.EventSysSimPosition); got != SimulationSteps+1 {
		t.Errorf("position events = %d, want %d", got, SimulationSteps+1)
	}
	if rec.last().Type != state.EventSysPickupCompleted {
		t.Fatalf("last event = %v", rec.last().Type)
	}
	if api.pickedUpID != 44 {
		t.Errorf("pickedUpID = %d", api.pickedUpID)
	}
}

func TestSimulateReturnLegOrderAndSummary(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newController(api, &fakeCache{}, rec)

	c.Simulate(context.Background(), SimulationRequest{
		Leg:         state.LegReturn,
		From:        geo.Coordinate{Latitude: 0, Longitude: 0},
		To:          geo.Coordinate{Latitude: 0, Longitude: 0.01},
		Reservation: state.Reservation{ID: 44},
		Rider:       state.User{ID: 7, DistanciaKM: 12.5, Tempo: 90 * time.Minute},
		Origin:      state.Station{ID: 1},
		Destination: state.Station{ID: 3},
		Metrics:     state.RouteMetrics{DistanceKM: 3.4, Estimated: 17 * time.Minute},
	})

	want := []string{"RecordTrip", "UpdatePoints", "MarkReturned"}
	if len(api.calls) != len(want) {
		t.Fatalf("calls = %v", api.calls)
	}
	for i, name := range want {
		if api.calls[i] != name {
			t.Fatalf("calls = %v, want %v", api.calls, want)
		}
	}
	if api.pointsAwarded != RidePoints {
		t.Errorf("points = %d", api.pointsAwarded)
	}
	// The PATCH carries the rider's running totals plus this ride.
	if api.pointsDistancia != 12.5+3.4 {
		t.Errorf("distancia = %v", api.pointsDistancia)
	}
	if api.pointsTempo != 90*time.Minute+17*time.Minute {
		t.Errorf("tempo = %v", api.pointsTempo)
	}
	evt := rec.last()
	if evt.Type != state.EventSysReturnCompleted {
		t.Fatalf("last event = %v", evt.Type)
	}
	payload := evt.Payload.(state.RideSummaryPayload)
	if payload.Points != RidePoints || payload.DistanceKM != 3.4 || payload.Duration != 17*time.Minute {
		t.Errorf("summary = %+v", payload)
	}
}

func TestSimulateReturnStopsOnPointsFailure(t *testing.T) {
	api := &fakeAPI{pointsErr: errors.New("boom")}
	rec := &recorder{}
	c := newController(api, &fakeCache{}, rec)

	c.Simulate(context.Background(), SimulationRequest{
		Leg:         state.LegReturn,
		Reservation: state.Reservation{ID: 44},
		Origin:      state.Station{ID: 1},
		Destination: state.Station{ID: 3},
	})

	if rec.last().Type != state.EventSysSimFailure {
		t.Fatalf("last event = %v", rec.last().Type)
	}
	for _, name := range api.calls {
		if name == "MarkReturned" {
			t.Error("MarkReturned called after failed points update")
		}
	}
}

func TestSubscriptionStopIdempotent(t *testing.T) {
	c := newController(&fakeAPI{}, &fakeCache{}, &recorder{})
	sub := c.StartPolling(7)
	sub.Stop()
	sub.Stop()
}

func TestDescribeErrorPrefersServerMessage(t *testing.T) {
	cause := &apiclient.Error{
		Op:     "Reserve",
		Kind:   state.ErrorKindRequestFailed,
		Status: 409,
		Err:    errors.New("Bike indisponível nesta estação"),
	}

	kind, message, technical := describeError(cause, "fallback")
	if kind != state.ErrorKindRequestFailed {
		t.Errorf("kind = %v", kind)
	}
	if message != "Bike indisponível nesta estação" {
		t.Errorf("message = %q", message)
	}
	if technical == "" {
		t.Error("empty technical message")
	}
}

func TestDescribeErrorTransportKeepsFallback(t *testing.T) {
	cause := &apiclient.Error{
		Op:   "Reserve",
		Kind: state.ErrorKindNetworkUnavailable,
		Err:  errors.New("dial tcp 127.0.0.1:3000: connect: connection refused"),
	}

	_, message, _ := describeError(cause, "Não foi possível reservar a bike")
	if message != "Não foi possível reservar a bike" {
		t.Errorf("message = %q", message)
	}
}
