// Package ride drives the reservation lifecycle: data polling, reserving
// a bike, picking a random return destination and simulating both travel
// legs. Results are reported to the state machine as events.
package ride

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/apiclient"
	"ciclogo/client/internal/geo"
	"ciclogo/client/internal/state"
)

// RidePoints is awarded for every completed return leg.
const RidePoints = 10

// SimulationSteps is the number of movement segments per leg.
const SimulationSteps = 50

// API is the slice of the HTTP client the controller needs.
type API interface {
	ListStations(ctx context.Context) ([]state.Station, error)
	ActiveReservation(ctx context.Context, userID int) (*state.Reservation, error)
	Reserve(ctx context.Context, ciclistaID, estacaoID int) error
	MarkPickedUp(ctx context.Context, reservationID int) error
	MarkReturned(ctx context.Context, reservationID int) error
	RecordTrip(ctx context.Context, usuarioID, estacaoInicio, estacaoFim int) error
	UpdatePoints(ctx context.Context, cyclistID, pontos int, distanciaKM float64, tempo time.Duration) error
	TripsByUser(ctx context.Context, usuarioID int) ([]state.Trip, error)
}

// Cache is the slice of the local store the controller needs.
type Cache interface {
	ReplaceStations(stations []state.Station) error
	CachedStations() ([]state.Station, error)
	ReplaceTrips(trips []state.Trip) error
	CachedTrips() ([]state.Trip, error)
}

// DirectionsProvider computes the route metrics between two coordinates.
type DirectionsProvider interface {
	Route(ctx context.Context, from, to geo.Coordinate) (state.RouteMetrics, error)
}

// HaversineDirections is the built-in provider: great-circle distance and
// a duration estimate at the average cycling speed.
type HaversineDirections struct{}

func (HaversineDirections) Route(_ context.Context, from, to geo.Coordinate) (state.RouteMetrics, error) {
	distance := geo.HaversineKM(from, to)
	return state.RouteMetrics{
		DistanceKM: distance,
		Estimated:  geo.EstimateDuration(distance),
	}, nil
}

// Dispatcher delivers an event to the state machine.
type Dispatcher func(evt state.Event)

// Options overrides the controller's timing and randomness.
type Options struct {
	PollInterval time.Duration
	StepInterval time.Duration
	Intn         func(n int) int
}

// Controller coordinates the ride scenarios.
type Controller struct {
	api          API
	cache        Cache
	directions   DirectionsProvider
	logger       zerolog.Logger
	dispatch     Dispatcher
	pollInterval time.Duration
	stepInterval time.Duration
	intn         func(n int) int
	simulating   atomic.Bool
}

// NewController wires the ride controller.
func NewController(api API, cache Cache, directions DirectionsProvider, logger zerolog.Logger, dispatch Dispatcher, opts Options) *Controller {
	if directions == nil {
		directions = HaversineDirections{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	stepInterval := opts.StepInterval
	if stepInterval <= 0 {
		stepInterval = time.Second
	}
	intn := opts.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return &Controller{
		api:          api,
		cache:        cache,
		directions:   directions,
		logger:       logger,
		dispatch:     dispatch,
		pollInterval: pollInterval,
		stepInterval: stepInterval,
		intn:         intn,
	}
}

// PreloadFromCache pushes the last persisted stations and trips to the UI
// while the first network refresh is still in flight.
func (c *Controller) PreloadFromCache() {
	stations, err := c.cache.CachedStations()
	if err != nil {
		c.logger.Error().Err(err).Msg("read cached stations")
		return
	}
	if len(stations) == 0 {
		return
	}
	trips, err := c.cache.CachedTrips()
	if err != nil {
		c.logger.Error().Err(err).Msg("read cached trips")
	}
	c.dispatch(state.Event{Type: state.EventSysDataRefreshed, Payload: state.RefreshPayload{
		Stations:  stations,
		Trips:     trips,
		FromCache: true,
	}})
}

// Refresh fetches stations, the active reservation and the trip history in
// parallel, updates the cache and reports the combined result.
func (c *Controller) Refresh(ctx context.Context, userID int) {
	var (
		wg       sync.WaitGroup
		stations []state.Station
		active   *state.Reservation
		trips    []state.Trip

		stationsErr error
		activeErr   error
		tripsErr    error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		stations, stationsErr = c.api.ListStations(ctx)
	}()
	go func() {
		defer wg.Done()
		active, activeErr = c.api.ActiveReservation(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		trips, tripsErr = c.api.TripsByUser(ctx, userID)
	}()
	wg.Wait()

	if stationsErr != nil || activeErr != nil {
		err := stationsErr
		if err == nil {
			err = activeErr
		}
		c.reportRefreshFailure(err)
		return
	}
	if err := c.cache.ReplaceStations(stations); err != nil {
		c.logger.Error().Err(err).Msg("cache stations")
	}
	if tripsErr != nil {
		// History is non-essential, the fresh stations still go through.
		c.logger.Error().Err(tripsErr).Msg("fetch trips")
		trips = nil
	} else if err := c.cache.ReplaceTrips(trips); err != nil {
		c.logger.Error().Err(err).Msg("cache trips")
	}
	c.dispatch(state.Event{Type: state.EventSysDataRefreshed, Payload: state.RefreshPayload{
		Stations: stations,
		Active:   active,
		Trips:    trips,
	}})
}

func (c *Controller) reportRefreshFailure(cause error) {
	kind, message, technical := describeError(cause, "Não foi possível carregar as estações. Verifique sua conexão.")
	c.logger.Error().Str("detail", technical).Msg("refresh failed")
	c.dispatch(state.Event{Type: state.EventSysRefreshFailure, Payload: state.ScenarioResultPayload{
		Kind:             kind,
		Message:          message,
		TechnicalMessage: technical,
	}})
}

// Subscription is the handle of a running poll loop.
type Subscription struct {
	stop chan struct{}
	once sync.Once
}

// Stop terminates the poll loop. Safe to call more than once.
func (s *Subscription) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
}

// StartPolling refreshes the data at the poll interval until stopped.
func (c *Controller) StartPolling(userID int) *Subscription {
	sub := &Subscription{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sub.stop:
				return
			case <-ticker.C:
				c.Refresh(context.Background(), userID)
			}
		}
	}()
	return sub
}

// Reserve claims a bike at the station and reports the outcome.
func (c *Controller) Reserve(ctx context.Context, ciclistaID, estacaoID int) {
	if err := c.api.Reserve(ctx, ciclistaID, estacaoID); err != nil {
		kind, message, technical := describeError(err, "Não foi possível reservar a bike")
		c.dispatch(state.Event{Type: state.EventSysReserveFailure, Payload: state.ScenarioResultPayload{
			Kind:             kind,
			Message:          message,
			TechnicalMessage: technical,
		}})
		return
	}
	c.dispatch(state.Event{Type: state.EventSysReserveSuccess})
}

// ChooseDestination picks a random return station among those with bikes
// available, excluding the origin, and computes the route to it.
func (c *Controller) ChooseDestination(ctx context.Context, stations []state.Station, origin state.Station) {
	candidates := make([]state.Station, 0, len(stations))
	for _, station := range stations {
		if station.ID == origin.ID {
			continue
		}
		if !station.HasBikes() {
			continue
		}
		candidates = append(candidates, station)
	}
	if len(candidates) == 0 {
		c.dispatch(state.Event{Type: state.EventSysNoDestination})
		return
	}
	chosen := candidates[c.intn(len(candidates))]
	metrics, err := c.directions.Route(ctx, origin.Position, chosen.Position)
	if err != nil {
		// Fall back to the built-in estimate rather than losing the ride.
		c.logger.Error().Err(err).Msg("directions provider failed")
		metrics, _ = HaversineDirections{}.Route(ctx, origin.Position, chosen.Position)
	}
	c.dispatch(state.Event{Type: state.EventSysDestinationChosen, Payload: state.DestinationPayload{
		Station: chosen,
		Metrics: metrics,
	}})
}

// SimulationRequest describes one travel leg to simulate. Rider carries the
// cyclist's running totals so the final points update can post cumulative
// distance and time.
type SimulationRequest struct {
	Leg         state.Leg
	From        geo.Coordinate
	To          geo.Coordinate
	Reservation state.Reservation
	Rider       state.User
	Origin      state.Station
	Destination state.Station
	Metrics     state.RouteMetrics
}

// Simulate walks the interpolated path at the step cadence and finalizes
// the leg against the API. Only one simulation runs at a time.
func (c *Controller) Simulate(ctx context.Context, req SimulationRequest) {
	if !c.simulating.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("simulation already running")
		return
	}
	defer c.simulating.Store(false)

	points := geo.Interpolate(req.From, req.To, SimulationSteps)
	total := len(points) - 1
	ticker := time.NewTicker(c.stepInterval)
	defer ticker.Stop()
	for index, point := range points {
		c.dispatch(state.Event{Type: state.EventSysSimPosition, Payload: state.PositionPayload{
			Position: point,
			Index:    index,
			Total:    total,
		}})
		if index == total {
			break
		}
		select {
		case <-ctx.Done():
			c.reportSimFailure(ctx.Err(), "Simulação interrompida")
			return
		case <-ticker.C:
		}
	}

	switch req.Leg {
	case state.LegPickup:
		c.finishPickup(ctx, req)
	case state.LegReturn:
		c.finishReturn(ctx, req)
	}
}

func (c *Controller) finishPickup(ctx context.Context, req SimulationRequest) {
	if err := c.api.MarkPickedUp(ctx, req.Reservation.ID); err != nil {
		c.reportSimFailure(err, "Não foi possível registrar a retirada da bike")
		return
	}
	c.dispatch(state.Event{Type: state.EventSysPickupCompleted})
}

// finishReturn records the trip, credits the points and releases the bike.
// The reservation is released last so a failed recording can be retried.
func (c *Controller) finishReturn(ctx context.Context, req SimulationRequest) {
	if err := c.api.RecordTrip(ctx, req.Rider.ID, req.Origin.ID, req.Destination.ID); err != nil {
		c.reportSimFailure(err, "Não foi possível registrar a trajetória")
		return
	}
	totalDistance := req.Rider.DistanciaKM + req.Metrics.DistanceKM
	totalTempo := req.Rider.Tempo + req.Metrics.Estimated
	if err := c.api.UpdatePoints(ctx, req.Rider.ID, RidePoints, totalDistance, totalTempo); err != nil {
		c.reportSimFailure(err, "Não foi possível atualizar os pontos")
		return
	}
	if err := c.api.MarkReturned(ctx, req.Reservation.ID); err != nil {
		c.reportSimFailure(err, "Não foi possível devolver a bike")
		return
	}
	c.dispatch(state.Event{Type: state.EventSysReturnCompleted, Payload: state.RideSummaryPayload{
		Points:      RidePoints,
		DistanceKM:  req.Metrics.DistanceKM,
		Duration:    req.Metrics.Estimated,
		Origin:      req.Origin,
		Destination: req.Destination,
	}})
}

func (c *Controller) reportSimFailure(cause error, fallback string) {
	kind, message, technical := describeError(cause, fallback)
	c.logger.Error().Str("detail", technical).Msg("simulation failed")
	c.dispatch(state.Event{Type: state.EventSysSimFailure, Payload: state.ScenarioResultPayload{
		Kind:             kind,
		Message:          message,
		TechnicalMessage: technical,
	}})
}

func describeError(cause error, fallback string) (state.ErrorKind, string, string) {
	if cause == nil {
		return state.ErrorKindUnknown, fallback, ""
	}
	kind := apiclient.KindOf(cause)
	message := fallback
	var apiErr *apiclient.Error
	// A status means the server answered: prefer the message from its body
	// over the generic fallback. Transport failures keep the fallback.
	if errors.As(cause, &apiErr) && apiErr.Status != 0 && apiErr.Err != nil {
		if text := apiErr.Err.Error(); text != "" && !strings.HasPrefix(text, "unexpected status") {
			message = text
		}
	}
	return kind, message, cause.Error()
}
