package state

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/geo"
)

// State names a node of the application's finite state machine.
type State string

const (
	StateAppStarting      State = "AppStarting"
	StateRestoringSession State = "RestoringSession"
	StateWaitingLogin     State = "WaitingLogin"
	StateAuthInProgress   State = "AuthInProgress"
	StateLoadingData      State = "LoadingData"
	StateNoReservation    State = "NoReservation"
	StateReserved         State = "Reserved"
	StateSimulatingPickup State = "SimulatingPickup"
	StatePickedUp         State = "PickedUp"
	StateSimulatingReturn State = "SimulatingReturn"
	StateExiting          State = "Exiting"
)

// EventType is the type of an event in the state machine queue.
type EventType string

const (
	EventUILaunch         EventType = "UI_LAUNCH"
	EventUIInputsChanged  EventType = "UI_INPUTS_CHANGED"
	EventUIClickLogin     EventType = "UI_CLICK_LOGIN"
	EventUIClickRegister  EventType = "UI_CLICK_REGISTER"
	EventUIClickLogout    EventType = "UI_CLICK_LOGOUT"
	EventUISearchChanged  EventType = "UI_SEARCH_CHANGED"
	EventUISelectStation  EventType = "UI_SELECT_STATION"
	EventUIClickReserve   EventType = "UI_CLICK_RESERVE"
	EventUIClickSimulate  EventType = "UI_CLICK_SIMULATE"
	EventUICloseWindow    EventType = "UI_CLOSE_WINDOW"
	EventUIExit           EventType = "UI_EXIT"

	EventSysRestoreActive     EventType = "SYS_RESTORE_ACTIVE"
	EventSysRestoreNone       EventType = "SYS_RESTORE_NONE"
	EventSysAuthSuccess       EventType = "SYS_AUTH_SUCCESS"
	EventSysAuthFailure       EventType = "SYS_AUTH_FAILURE"
	EventSysDataRefreshed     EventType = "SYS_DATA_REFRESHED"
	EventSysRefreshFailure    EventType = "SYS_REFRESH_FAILURE"
	EventSysReserveSuccess    EventType = "SYS_RESERVE_SUCCESS"
	EventSysReserveFailure    EventType = "SYS_RESERVE_FAILURE"
	EventSysDestinationChosen EventType = "SYS_DESTINATION_CHOSEN"
	EventSysNoDestination     EventType = "SYS_NO_DESTINATION"
	EventSysSimPosition       EventType = "SYS_SIM_POSITION"
	EventSysPickupCompleted   EventType = "SYS_PICKUP_COMPLETED"
	EventSysReturnCompleted   EventType = "SYS_RETURN_COMPLETED"
	EventSysSimFailure        EventType = "SYS_SIM_FAILURE"
)

// Event wraps a queue event and its payload.
type Event struct {
	Type    EventType
	Payload any
	TS      time.Time
}

// InputsPayload mirrors the login/register form fields from the UI.
type InputsPayload struct {
	Nome     string
	Email    string
	Senha    string
	Telefone string
}

// SearchPayload carries the station search term.
type SearchPayload struct {
	Term string
}

// SelectionPayload carries a station selection by id.
type SelectionPayload struct {
	StationID int
}

// UserPayload carries the authenticated identity.
type UserPayload struct {
	User User
}

// ScenarioResultPayload reports the outcome of a long-running procedure.
type ScenarioResultPayload struct {
	Kind             ErrorKind
	Message          string
	TechnicalMessage string
}

// RefreshPayload carries a whole poll result. Stations and the active
// reservation replace the previous collections wholesale.
type RefreshPayload struct {
	Stations  []Station
	Active    *Reservation
	Trips     []Trip
	User      *User
	FromCache bool
}

// DestinationPayload carries the chosen random destination and its route.
type DestinationPayload struct {
	Station Station
	Metrics RouteMetrics
}

// PositionPayload is one simulated movement tick.
type PositionPayload struct {
	Position geo.Coordinate
	Index    int
	Total    int
}

// RideSummaryPayload describes a completed return leg.
type RideSummaryPayload struct {
	Points      int
	DistanceKM  float64
	Duration    time.Duration
	Origin      Station
	Destination Station
}

// Callbacks holds the side-effect functions invoked by the state machine.
type Callbacks struct {
	StartRestore      func(ctx *AppContext)
	StartLogin        func(ctx *AppContext, email, senha string)
	StartRegister     func(ctx *AppContext, nome, email, senha, telefone string)
	StartLogout       func(ctx *AppContext)
	StartRefresh      func(ctx *AppContext)
	StartPolling      func(ctx *AppContext)
	StopPolling       func()
	StartReserve      func(ctx *AppContext, stationID int)
	ChooseDestination func(ctx *AppContext)
	StartSimulation   func(ctx *AppContext)
	ApplyRideStats    func(summary RideSummaryPayload)
	ShowLoginWindow   func(ctx *AppContext)
	ShowMainWindow    func(ctx *AppContext)
	HideMainWindow    func(ctx *AppContext)
	UpdateUI          func(ctx *AppContext)
	ShowModalError    func(info *ErrorInfo)
	ShowTransient     func(message string)
	Shutdown          func()
}

// Machine owns the event loop and the current application state.
type Machine struct {
	ctx       *AppContext
	callbacks Callbacks
	logger    zerolog.Logger
	events    chan Event
	priority  chan Event
	done      chan struct{}
	stopped   atomic.Bool
	loopOnce  sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// ErrMachineStopped is returned when dispatching after the loop stopped.
var ErrMachineStopped = errors.New("state machine stopped")

// NewMachine creates a state machine in the AppStarting state.
func NewMachine(ctx *AppContext, logger zerolog.Logger, callbacks Callbacks) *Machine {
	return &Machine{
		ctx:       ctx,
		callbacks: callbacks,
		logger:    logger,
		events:    make(chan Event, 64),
		priority:  make(chan Event, 8),
		done:      make(chan struct{}),
	}
}

// Start launches the event loop in its own goroutine.
func (m *Machine) Start() {
	m.loopOnce.Do(func() {
		go m.loopSafely()
	})
}

// Stop terminates the event loop.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.stopped.Store(true)
		close(m.done)
		close(m.priority)
		close(m.events)
	})
}

// WaitAsync waits for background tasks started by the machine.
func (m *Machine) WaitAsync(timeout time.Duration) bool {
	if m == nil {
		return true
	}
	if timeout <= 0 {
		m.wg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Dispatch queues an event for the state machine.
func (m *Machine) Dispatch(evt Event) error {
	if m.stopped.Load() {
		return ErrMachineStopped
	}
	m.logger.Debug().Str("event", string(evt.Type)).Msg("event queued")
	ch := m.events
	if m.isExitEvent(evt.Type) {
		ch = m.priority
	}
	select {
	case <-m.done:
		return ErrMachineStopped
	case ch <- evt:
		return nil
	default:
		if m.stopped.Load() {
			return ErrMachineStopped
		}
		if m.safeSend(ch, evt) {
			return nil
		}
		return ErrMachineStopped
	}
}

func (m *Machine) loop() {
	for {
		if m.stopped.Load() {
			return
		}

		select {
		case evt, ok := <-m.priority:
			if !ok {
				return
			}
			m.handleEvent(evt)
			continue
		default:
		}

		select {
		case evt, ok := <-m.priority:
			if !ok {
				return
			}
			m.handleEvent(evt)
		case evt, ok := <-m.events:
			if !ok {
				return
			}
			m.handleEvent(evt)
		}
	}
}

func (m *Machine) loopSafely() {
	defer m.logPanic("state loop")
	m.loop()
}

func (m *Machine) handleEvent(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	m.logger.Debug().Str("event", string(evt.Type)).Str("state", string(m.ctx.State)).Msg("event handle")
	if m.isExitEvent(evt.Type) {
		m.transition(StateExiting)
		m.invokeStopPolling()
		if m.callbacks.Shutdown != nil {
			m.callbacks.Shutdown()
		}
		return
	}
	if m.handleCommonEvent(evt) {
		return
	}

	switch m.ctx.State {
	case StateAppStarting:
		m.handleAppStarting(evt)
	case StateRestoringSession:
		m.handleRestoringSession(evt)
	case StateWaitingLogin:
		m.handleWaitingLogin(evt)
	case StateAuthInProgress:
		m.handleAuthInProgress(evt)
	case StateLoadingData:
		m.handleLoadingData(evt)
	case StateNoReservation:
		m.handleNoReservation(evt)
	case StateReserved:
		m.handleReserved(evt)
	case StateSimulatingPickup:
		m.handleSimulatingPickup(evt)
	case StatePickedUp:
		m.handlePickedUp(evt)
	case StateSimulatingReturn:
		m.handleSimulatingReturn(evt)
	case StateExiting:
		// ignore
	default:
		m.logger.Debug().Str("state", string(m.ctx.State)).Msg("unknown state")
	}
}

// handleCommonEvent deals with events whose meaning does not depend on the
// current state. It returns true when the event was consumed.
func (m *Machine) handleCommonEvent(evt Event) bool {
	switch evt.Type {
	case EventUIInputsChanged:
		m.applyInputs(evt)
		return true
	case EventUISearchChanged:
		if payload, ok := evt.Payload.(SearchPayload); ok {
			m.ctx.UI.SearchTerm = payload.Term
			m.refreshUI()
		}
		return true
	case EventUISelectStation:
		if payload, ok := evt.Payload.(SelectionPayload); ok {
			m.ctx.UI.SelectedStationID = payload.StationID
			m.refreshUI()
		}
		return true
	case EventUIClickLogout:
		if m.isAuthenticated() {
			m.doLogout()
		}
		return true
	case EventSysRefreshFailure:
		m.onRefreshFailure(evt)
		return true
	}
	return false
}

func (m *Machine) handleAppStarting(evt Event) {
	switch evt.Type {
	case EventUILaunch:
		m.ctx.UI.StatusText = "A restaurar sessão..."
		m.transition(StateRestoringSession)
		m.invokeRestore()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("appStarting: ignored")
	}
}

func (m *Machine) handleRestoringSession(evt Event) {
	switch evt.Type {
	case EventSysRestoreActive:
		payload, _ := evt.Payload.(UserPayload)
		m.activateSession(payload.User)
	case EventSysRestoreNone:
		m.ctx.UI.StatusText = "Informe email e senha"
		m.transition(StateWaitingLogin)
		m.invokeShowLogin()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("restoring: ignored")
	}
}

func (m *Machine) handleWaitingLogin(evt Event) {
	switch evt.Type {
	case EventUIClickLogin:
		m.applyInputs(evt)
		if strings.TrimSpace(m.ctx.UI.EmailInput) == "" || strings.TrimSpace(m.ctx.UI.SenhaInput) == "" {
			m.showTransient("Informe email e senha")
			return
		}
		m.ctx.UI.StatusText = "A autenticar..."
		m.transition(StateAuthInProgress)
		m.invokeLogin()
	case EventUIClickRegister:
		m.applyInputs(evt)
		if strings.TrimSpace(m.ctx.UI.NomeInput) == "" ||
			strings.TrimSpace(m.ctx.UI.EmailInput) == "" ||
			strings.TrimSpace(m.ctx.UI.SenhaInput) == "" ||
			strings.TrimSpace(m.ctx.UI.TelefoneInput) == "" {
			m.showTransient("Preencha todos os campos")
			return
		}
		m.ctx.UI.StatusText = "A criar conta..."
		m.transition(StateAuthInProgress)
		m.invokeRegister()
	case EventUICloseWindow:
		m.invokeHideMain()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("waitingLogin: ignored")
	}
}

func (m *Machine) handleAuthInProgress(evt Event) {
	switch evt.Type {
	case EventSysAuthSuccess:
		payload, _ := evt.Payload.(UserPayload)
		m.activateSession(payload.User)
	case EventSysAuthFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		kind := payload.Kind
		if kind == "" {
			kind = ErrorKindAuthFailed
		}
		message := payload.Message
		if message == "" {
			message = "Erro ao fazer login"
		}
		m.ctx.UI.StatusText = message
		m.transition(StateWaitingLogin)
		m.raiseError(kind, message, payload.TechnicalMessage)
		m.invokeShowLogin()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("auth: ignored")
	}
}

func (m *Machine) handleLoadingData(evt Event) {
	switch evt.Type {
	case EventSysDataRefreshed:
		m.applyRefresh(evt)
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("loadingData: ignored")
	}
}

func (m *Machine) handleNoReservation(evt Event) {
	switch evt.Type {
	case EventUIClickReserve:
		stationID := m.ctx.UI.SelectedStationID
		if payload, ok := evt.Payload.(SelectionPayload); ok {
			stationID = payload.StationID
		}
		station := m.ctx.FindStation(stationID)
		if station == nil {
			m.showTransient("Selecione uma estação")
			return
		}
		if !station.HasBikes() {
			m.showTransient("Estação sem bikes disponíveis")
			return
		}
		m.invokeReserve(station.ID)
	case EventSysReserveSuccess:
		m.showTransient("Bike reservada com sucesso!")
		m.invokeRefresh()
	case EventSysReserveFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		message := payload.Message
		if message == "" {
			message = "Não foi possível reservar a bike"
		}
		m.raiseError(orUnknown(payload.Kind), message, payload.TechnicalMessage)
	case EventSysDataRefreshed:
		m.applyRefresh(evt)
	case EventUICloseWindow:
		m.invokeHideMain()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("noReservation: ignored")
	}
}

func (m *Machine) handleReserved(evt Event) {
	switch evt.Type {
	case EventUIClickSimulate:
		if m.ctx.ReservedStation == nil {
			m.showTransient("Reserva sem estação conhecida")
			return
		}
		m.ctx.Leg = LegPickup
		m.ctx.Elapsed = 0
		m.ctx.UI.StatusText = "Indo buscar a bike..."
		m.transition(StateSimulatingPickup)
		m.invokeSimulation()
	case EventSysDataRefreshed:
		m.applyRefresh(evt)
	case EventUICloseWindow:
		m.invokeHideMain()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("reserved: ignored")
	}
}

func (m *Machine) handleSimulatingPickup(evt Event) {
	switch evt.Type {
	case EventSysSimPosition:
		m.applyPosition(evt)
	case EventSysPickupCompleted:
		if m.ctx.Active != nil {
			m.ctx.Active.Status = StatusLevantada
		}
		m.ctx.Leg = LegReturn
		m.ctx.UI.StatusText = "Bike levantada com sucesso!"
		m.transition(StatePickedUp)
		m.showTransient("Bike levantada com sucesso!")
		if m.ctx.Destination == nil {
			m.invokeChooseDestination()
		}
		m.invokeRefresh()
	case EventSysSimFailure:
		m.onSimFailure(evt, StateReserved)
	case EventSysDataRefreshed:
		m.applyRefreshData(evt)
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("simPickup: ignored")
	}
}

func (m *Machine) handlePickedUp(evt Event) {
	switch evt.Type {
	case EventSysDestinationChosen:
		payload, _ := evt.Payload.(DestinationPayload)
		station := payload.Station
		m.ctx.Destination = &station
		m.ctx.Route = payload.Metrics
		m.updateUIForState(m.ctx.State)
	case EventSysNoDestination:
		m.ctx.Destination = nil
		m.showTransient("Nenhuma estação disponível para devolução")
	case EventUIClickSimulate:
		if m.ctx.Destination == nil {
			m.showTransient("Nenhum destino escolhido")
			return
		}
		m.ctx.Leg = LegReturn
		m.ctx.UI.StatusText = "Pedalando até o destino..."
		m.transition(StateSimulatingReturn)
		m.invokeSimulation()
	case EventSysDataRefreshed:
		m.applyRefresh(evt)
	case EventUICloseWindow:
		m.invokeHideMain()
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("pickedUp: ignored")
	}
}

func (m *Machine) handleSimulatingReturn(evt Event) {
	switch evt.Type {
	case EventSysSimPosition:
		m.applyPosition(evt)
	case EventSysReturnCompleted:
		payload, _ := evt.Payload.(RideSummaryPayload)
		m.finishRide(payload)
	case EventSysSimFailure:
		m.onSimFailure(evt, StatePickedUp)
	case EventSysDataRefreshed:
		m.applyRefreshData(evt)
	default:
		m.logger.Debug().Str("event", string(evt.Type)).Msg("simReturn: ignored")
	}
}

// activateSession moves an authenticated identity into the context and
// kicks off the first data load plus the polling subscription.
func (m *Machine) activateSession(user User) {
	u := user
	m.ctx.User = &u
	m.ctx.LastError = nil
	m.ctx.UI.SenhaInput = ""
	m.ctx.UI.StatusText = "A carregar dados..."
	m.transition(StateLoadingData)
	m.invokeShowMain()
	m.invokeRefresh()
	m.invokeStartPolling()
}

// applyRefresh replaces the fetched collections and derives the next state
// from the active reservation.
func (m *Machine) applyRefresh(evt Event) {
	payload, ok := evt.Payload.(RefreshPayload)
	if !ok {
		return
	}
	m.applyData(payload)
	// Cached data has no authoritative reservation, so it never drives a
	// state transition.
	if payload.FromCache {
		return
	}
	m.deriveReservationState()
}

// applyRefreshData applies a poll result that arrived mid-simulation: the
// data is kept but no state transition is derived from it.
func (m *Machine) applyRefreshData(evt Event) {
	if payload, ok := evt.Payload.(RefreshPayload); ok {
		m.applyData(payload)
	}
}

func (m *Machine) applyData(payload RefreshPayload) {
	m.ctx.Stations = payload.Stations
	m.ctx.Counters = CountStations(payload.Stations)
	m.ctx.Active = payload.Active
	if payload.Trips != nil {
		m.ctx.Trips = payload.Trips
	}
	if payload.User != nil {
		m.ctx.User = payload.User
	}
	m.refreshUI()
}

func (m *Machine) deriveReservationState() {
	active := m.ctx.Active
	switch {
	case !active.Active():
		m.ctx.Active = nil
		m.ctx.ReservedStation = nil
		m.ctx.Destination = nil
		m.ctx.Position = nil
		m.ctx.Leg = LegPickup
		m.ctx.UI.StatusText = "Sem reserva ativa"
		m.transition(StateNoReservation)
	case active.PickedUp():
		if station := m.ctx.FindStation(active.EstacaoID); station != nil {
			m.ctx.ReservedStation = station
		}
		m.ctx.Leg = LegReturn
		m.ctx.UI.StatusText = "Bike levantada"
		m.transition(StatePickedUp)
		if m.ctx.Destination == nil {
			m.invokeChooseDestination()
		}
	default:
		if station := m.ctx.FindStation(active.EstacaoID); station != nil {
			m.ctx.ReservedStation = station
		}
		m.ctx.Leg = LegPickup
		m.ctx.UI.StatusText = "Reserva ativa"
		m.transition(StateReserved)
	}
}

func (m *Machine) applyPosition(evt Event) {
	payload, ok := evt.Payload.(PositionPayload)
	if !ok {
		return
	}
	position := payload.Position
	m.ctx.Position = &position
	step := time.Second
	if m.ctx.Config != nil && m.ctx.Config.SimulationStep > 0 {
		step = m.ctx.Config.SimulationStep
	}
	m.ctx.Elapsed = time.Duration(payload.Index) * step
	m.refreshUI()
}

// finishRide applies the completed return leg: stats, counters, reset.
func (m *Machine) finishRide(payload RideSummaryPayload) {
	if m.callbacks.ApplyRideStats != nil {
		m.callbacks.ApplyRideStats(payload)
	}
	if m.ctx.User != nil {
		m.ctx.User.Pontos += payload.Points
		m.ctx.User.DistanciaKM += payload.DistanceKM
		m.ctx.User.Tempo += payload.Duration
	}
	m.ctx.Active = nil
	m.ctx.ReservedStation = nil
	m.ctx.Destination = nil
	m.ctx.Position = nil
	m.ctx.Leg = LegPickup
	m.ctx.Elapsed = 0
	m.ctx.Route = RouteMetrics{}
	m.ctx.UI.StatusText = "Sem reserva ativa"
	m.transition(StateNoReservation)
	m.showTransient(fmt.Sprintf("Corrida finalizada! +%d pontos, %.2f km, %s",
		payload.Points, payload.DistanceKM, geo.FormatClock(payload.Duration)))
	m.invokeRefresh()
}

func (m *Machine) onRefreshFailure(evt Event) {
	payload, _ := evt.Payload.(ScenarioResultPayload)
	if payload.Kind == ErrorKindSessionExpired {
		m.doLogout()
		return
	}
	message := payload.Message
	if message == "" {
		message = "Não foi possível carregar as estações. Verifique sua conexão."
	}
	m.logger.Error().Str("detail", payload.TechnicalMessage).Msg("refresh failed")
	// A first load with nothing to show still needs to land somewhere.
	if m.ctx.State == StateLoadingData {
		m.ctx.UI.StatusText = message
		m.transition(StateNoReservation)
	}
	m.showTransient(message)
}

func (m *Machine) onSimFailure(evt Event, fallback State) {
	payload, _ := evt.Payload.(ScenarioResultPayload)
	message := payload.Message
	if message == "" {
		message = "Não foi possível atualizar o status da reserva"
	}
	m.ctx.Position = nil
	m.ctx.UI.StatusText = message
	m.transition(fallback)
	m.raiseError(orUnknown(payload.Kind), message, payload.TechnicalMessage)
}

func (m *Machine) doLogout() {
	m.invokeStopPolling()
	m.runAsync(func() {
		if m.callbacks.StartLogout != nil {
			m.callbacks.StartLogout(m.ctx)
		}
	})
	m.ctx.User = nil
	m.ctx.Stations = nil
	m.ctx.Counters = StationCounters{}
	m.ctx.Active = nil
	m.ctx.ReservedStation = nil
	m.ctx.Destination = nil
	m.ctx.Position = nil
	m.ctx.Trips = nil
	m.ctx.Elapsed = 0
	m.ctx.Route = RouteMetrics{}
	m.ctx.UI.StatusText = "Informe email e senha"
	m.transition(StateWaitingLogin)
	m.invokeShowLogin()
}

func (m *Machine) applyInputs(evt Event) {
	if payload, ok := evt.Payload.(InputsPayload); ok {
		m.ctx.UI.NomeInput = payload.Nome
		m.ctx.UI.EmailInput = payload.Email
		m.ctx.UI.SenhaInput = payload.Senha
		m.ctx.UI.TelefoneInput = payload.Telefone
	}
}

func (m *Machine) isAuthenticated() bool {
	switch m.ctx.State {
	case StateLoadingData, StateNoReservation, StateReserved,
		StateSimulatingPickup, StatePickedUp, StateSimulatingReturn:
		return true
	}
	return false
}

func (m *Machine) transition(next State) {
	if m.ctx.State == next {
		m.updateUIForState(next)
		return
	}
	prev := m.ctx.State
	m.ctx.State = next
	m.logger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("state transition")
	m.updateUIForState(next)
}

func (m *Machine) updateUIForState(state State) {
	ui := &m.ctx.UI
	ui.IsAuthenticating = false
	ui.IsSimulating = false
	ui.CanReserve = false
	ui.CanSimulate = false
	ui.SimulateLabel = ""
	switch state {
	case StateWaitingLogin:
		ui.IsLoginVisible = true
		ui.IsMainVisible = false
	case StateAuthInProgress:
		ui.IsLoginVisible = true
		ui.IsMainVisible = false
		ui.IsAuthenticating = true
	case StateLoadingData:
		ui.IsLoginVisible = false
		ui.IsMainVisible = true
	case StateNoReservation:
		ui.IsLoginVisible = false
		ui.IsMainVisible = true
		ui.CanReserve = true
	case StateReserved:
		ui.IsLoginVisible = false
		ui.IsMainVisible = true
		ui.CanSimulate = m.ctx.ReservedStation != nil
		ui.SimulateLabel = "Simular rota até a estação"
	case StateSimulatingPickup, StateSimulatingReturn:
		ui.IsMainVisible = true
		ui.IsSimulating = true
	case StatePickedUp:
		ui.IsMainVisible = true
		if m.ctx.Destination != nil {
			ui.CanSimulate = true
			ui.SimulateLabel = "Pedalar até " + m.ctx.Destination.Nome
		}
	}
	m.refreshUI()
}

func (m *Machine) raiseError(kind ErrorKind, userMessage, technical string) {
	info := &ErrorInfo{
		Kind:             kind,
		UserMessage:      userMessage,
		TechnicalMessage: technical,
		OccurredAt:       time.Now(),
	}
	m.ctx.LastError = info
	m.refreshUI()
	if m.callbacks.ShowModalError != nil {
		m.callbacks.ShowModalError(info)
	}
}

func orUnknown(kind ErrorKind) ErrorKind {
	if kind == "" {
		return ErrorKindUnknown
	}
	return kind
}

func (m *Machine) invokeRestore() {
	if m.callbacks.StartRestore != nil {
		m.runAsync(func() { m.callbacks.StartRestore(m.ctx) })
	}
}

func (m *Machine) invokeLogin() {
	if m.callbacks.StartLogin != nil {
		email := m.ctx.UI.EmailInput
		senha := m.ctx.UI.SenhaInput
		m.runAsync(func() { m.callbacks.StartLogin(m.ctx, email, senha) })
	}
}

func (m *Machine) invokeRegister() {
	if m.callbacks.StartRegister != nil {
		nome := m.ctx.UI.NomeInput
		email := m.ctx.UI.EmailInput
		senha := m.ctx.UI.SenhaInput
		telefone := m.ctx.UI.TelefoneInput
		m.runAsync(func() { m.callbacks.StartRegister(m.ctx, nome, email, senha, telefone) })
	}
}

func (m *Machine) invokeRefresh() {
	if m.callbacks.StartRefresh != nil {
		m.runAsync(func() { m.callbacks.StartRefresh(m.ctx) })
	}
}

func (m *Machine) invokeStartPolling() {
	if m.callbacks.StartPolling != nil {
		m.callbacks.StartPolling(m.ctx)
	}
}

func (m *Machine) invokeStopPolling() {
	if m.callbacks.StopPolling != nil {
		m.callbacks.StopPolling()
	}
}

func (m *Machine) invokeReserve(stationID int) {
	if m.callbacks.StartReserve != nil {
		m.runAsync(func() { m.callbacks.StartReserve(m.ctx, stationID) })
	}
}

func (m *Machine) invokeChooseDestination() {
	if m.callbacks.ChooseDestination != nil {
		m.runAsync(func() { m.callbacks.ChooseDestination(m.ctx) })
	}
}

func (m *Machine) invokeSimulation() {
	if m.callbacks.StartSimulation != nil {
		m.runAsync(func() { m.callbacks.StartSimulation(m.ctx) })
	}
}

func (m *Machine) invokeShowLogin() {
	if m.callbacks.ShowLoginWindow != nil {
		m.callbacks.ShowLoginWindow(m.ctx)
	}
}

func (m *Machine) invokeShowMain() {
	if m.callbacks.ShowMainWindow != nil {
		m.callbacks.ShowMainWindow(m.ctx)
	}
}

func (m *Machine) invokeHideMain() {
	if m.callbacks.HideMainWindow != nil {
		m.callbacks.HideMainWindow(m.ctx)
	}
}

func (m *Machine) showTransient(message string) {
	if m.callbacks.ShowTransient != nil {
		m.callbacks.ShowTransient(message)
	} else {
		m.logger.Info().Msg("notice: " + message)
	}
}

func (m *Machine) refreshUI() {
	if m.callbacks.UpdateUI != nil {
		m.callbacks.UpdateUI(m.ctx)
	}
}

func (m *Machine) runAsync(fn func()) {
	if fn == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.logPanic("async task")
		fn()
	}()
}

func (m *Machine) logPanic(scope string) {
	if r := recover(); r != nil {
		m.logger.Error().Str("scope", scope).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("panic")
		panic(r)
	}
}

func (m *Machine) isExitEvent(t EventType) bool {
	return t == EventUIExit
}

func (m *Machine) safeSend(ch chan Event, evt Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	ch <- evt
	return true
}
