package state

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/config"
	"ciclogo/client/internal/geo"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *callLog) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == name {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		APIBaseURL:     "http://localhost:3000/api",
		PollInterval:   10 * time.Second,
		SimulationStep: time.Second,
		StartLatitude:  config.DefaultStartLatitude,
		StartLongitude: config.DefaultStartLongitude,
	}
}

func newTestMachine(t *testing.T) (*Machine, *AppContext, *callLog) {
	t.Helper()
	ctx := NewAppContext(testConfig())
	log := &callLog{}
	callbacks := Callbacks{
		StartRestore:      func(*AppContext) { log.add("StartRestore") },
		StartLogin:        func(*AppContext, string, string) { log.add("StartLogin") },
		StartRegister:     func(*AppContext, string, string, string, string) { log.add("StartRegister") },
		StartLogout:       func(*AppContext) { log.add("StartLogout") },
		StartRefresh:      func(*AppContext) { log.add("StartRefresh") },
		StartPolling:      func(*AppContext) { log.add("StartPolling") },
		StopPolling:       func() { log.add("StopPolling") },
		StartReserve:      func(*AppContext, int) { log.add("StartReserve") },
		ChooseDestination: func(*AppContext) { log.add("ChooseDestination") },
		StartSimulation:   func(*AppContext) { log.add("StartSimulation") },
		ApplyRideStats:    func(RideSummaryPayload) { log.add("ApplyRideStats") },
		ShowLoginWindow:   func(*AppContext) { log.add("ShowLoginWindow") },
		ShowMainWindow:    func(*AppContext) { log.add("ShowMainWindow") },
		HideMainWindow:    func(*AppContext) { log.add("HideMainWindow") },
		UpdateUI:          func(*AppContext) {},
		ShowModalError:    func(*ErrorInfo) { log.add("ShowModalError") },
		ShowTransient:     func(string) { log.add("ShowTransient") },
		Shutdown:          func() { log.add("Shutdown") },
	}
	m := NewMachine(ctx, zerolog.Nop(), callbacks)
	return m, ctx, log
}

func waitFor(t *testing.T, log *callLog, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log.has(name) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("callback %s was not invoked", name)
}

func stations() []Station {
	return []Station{
		{ID: 1, Nome: "Central", Position: geo.Coordinate{Latitude: -8.83, Longitude: 13.23}, BikesDisponiveis: 3},
		{ID: 2, Nome: "Marginal", Position: geo.Coordinate{Latitude: -8.81, Longitude: 13.25}, BikesDisponiveis: 0},
		{ID: 3, Nome: "Mutamba", Position: geo.Coordinate{Latitude: -8.84, Longitude: 13.24}, BikesDisponiveis: 2},
	}
}

func TestLaunchStartsRestore(t *testing.T) {
	m, ctx, log := newTestMachine(t)

	m.handleEvent(Event{Type: EventUILaunch})

	if ctx.State != StateRestoringSession {
		t.Errorf("state = %v", ctx.State)
	}
	waitFor(t, log, "StartRestore")
	m.WaitAsync(0)
}

func TestRestoreNoneShowsLogin(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.handleEvent(Event{Type: EventUILaunch})

	m.handleEvent(Event{Type: EventSysRestoreNone})

	if ctx.State != StateWaitingLogin {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("ShowLoginWindow") {
		t.Error("login window not shown")
	}
	if !ctx.UI.IsLoginVisible || ctx.UI.IsMainVisible {
		t.Errorf("ui = %+v", ctx.UI)
	}
	m.WaitAsync(0)
}

func TestRestoreActiveLoadsData(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.handleEvent(Event{Type: EventUILaunch})

	m.handleEvent(Event{Type: EventSysRestoreActive, Payload: UserPayload{User: User{ID: 7, Email: "a@x"}}})

	if ctx.State != StateLoadingData {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.User == nil || ctx.User.ID != 7 {
		t.Errorf("user = %+v", ctx.User)
	}
	waitFor(t, log, "StartRefresh")
	if !log.has("StartPolling") || !log.has("ShowMainWindow") {
		t.Error("polling or main window not started")
	}
	m.WaitAsync(0)
}

func TestLoginRequiresCredentials(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.handleEvent(Event{Type: EventUILaunch})
	m.handleEvent(Event{Type: EventSysRestoreNone})

	m.handleEvent(Event{Type: EventUIClickLogin, Payload: InputsPayload{Email: "", Senha: ""}})

	if ctx.State != StateWaitingLogin {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("ShowTransient") {
		t.Error("no notice for empty credentials")
	}
	if log.has("StartLogin") {
		t.Error("login started with empty credentials")
	}
	m.WaitAsync(0)
}

func TestLoginFlow(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.handleEvent(Event{Type: EventUILaunch})
	m.handleEvent(Event{Type: EventSysRestoreNone})

	m.handleEvent(Event{Type: EventUIClickLogin, Payload: InputsPayload{Email: "a@x", Senha: "s"}})
	if ctx.State != StateAuthInProgress {
		t.Fatalf("state = %v", ctx.State)
	}
	waitFor(t, log, "StartLogin")

	m.handleEvent(Event{Type: EventSysAuthSuccess, Payload: UserPayload{User: User{ID: 7, Email: "a@x"}}})
	if ctx.State != StateLoadingData {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.UI.SenhaInput != "" {
		t.Error("password input survived authentication")
	}
	m.WaitAsync(0)
}

func TestAuthFailureReturnsToLogin(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.handleEvent(Event{Type: EventUILaunch})
	m.handleEvent(Event{Type: EventSysRestoreNone})
	m.handleEvent(Event{Type: EventUIClickLogin, Payload: InputsPayload{Email: "a@x", Senha: "s"}})

	m.handleEvent(Event{Type: EventSysAuthFailure, Payload: ScenarioResultPayload{
		Kind:    ErrorKindAuthFailed,
		Message: "Email ou senha incorretos",
	}})

	if ctx.State != StateWaitingLogin {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("ShowModalError") {
		t.Error("no modal for auth failure")
	}
	if ctx.LastError == nil || ctx.LastError.Kind != ErrorKindAuthFailed {
		t.Errorf("LastError = %+v", ctx.LastError)
	}
	m.WaitAsync(0)
}

func authenticate(t *testing.T, m *Machine, ctx *AppContext) {
	t.Helper()
	m.handleEvent(Event{Type: EventUILaunch})
	m.handleEvent(Event{Type: EventSysRestoreActive, Payload: UserPayload{User: User{ID: 7, Email: "a@x"}}})
	if ctx.State != StateLoadingData {
		t.Fatalf("state = %v", ctx.State)
	}
}

func TestRefreshWithoutReservation(t *testing.T) {
	m, ctx, _ := newTestMachine(t)
	authenticate(t, m, ctx)

	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	if ctx.State != StateNoReservation {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.Counters.Total != 3 || ctx.Counters.Disponiveis != 2 {
		t.Errorf("counters = %+v", ctx.Counters)
	}
	if !ctx.UI.CanReserve {
		t.Error("reserve disabled without reservation")
	}
	m.WaitAsync(0)
}

func TestRefreshWithReservedStatus(t *testing.T) {
	m, ctx, _ := newTestMachine(t)
	authenticate(t, m, ctx)

	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{
		Stations: stations(),
		Active:   &Reservation{ID: 44, EstacaoID: 1, Status: StatusReservada},
	}})

	if ctx.State != StateReserved {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.ReservedStation == nil || ctx.ReservedStation.ID != 1 {
		t.Errorf("reserved station = %+v", ctx.ReservedStation)
	}
	if ctx.Leg != LegPickup {
		t.Errorf("leg = %v", ctx.Leg)
	}
	if !ctx.UI.CanSimulate {
		t.Error("simulate disabled while reserved")
	}
	m.WaitAsync(0)
}

func TestRefreshWithPickedUpStatusChoosesDestination(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)

	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{
		Stations: stations(),
		Active:   &Reservation{ID: 44, EstacaoID: 1, Status: StatusLevantada},
	}})

	if ctx.State != StatePickedUp {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.Leg != LegReturn {
		t.Errorf("leg = %v", ctx.Leg)
	}
	waitFor(t, log, "ChooseDestination")
	m.WaitAsync(0)
}

func TestRefreshFromCacheDoesNotDeriveState(t *testing.T) {
	m, ctx, _ := newTestMachine(t)
	authenticate(t, m, ctx)

	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{
		Stations:  stations(),
		FromCache: true,
	}})

	if ctx.State != StateLoadingData {
		t.Errorf("state = %v, cached data must not transition", ctx.State)
	}
	if len(ctx.Stations) != 3 {
		t.Error("cached stations not applied")
	}
	m.WaitAsync(0)
}

func TestReserveRequiresStationWithBikes(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventUIClickReserve, Payload: SelectionPayload{StationID: 2}})

	if log.has("StartReserve") {
		t.Error("reserve started for empty station")
	}
	if !log.has("ShowTransient") {
		t.Error("no notice for empty station")
	}
	if ctx.State != StateNoReservation {
		t.Errorf("state = %v", ctx.State)
	}
	m.WaitAsync(0)
}

func TestReserveSuccessTriggersRefresh(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventUIClickReserve, Payload: SelectionPayload{StationID: 1}})
	waitFor(t, log, "StartReserve")

	m.handleEvent(Event{Type: EventSysReserveSuccess})
	waitFor(t, log, "StartRefresh")
	if ctx.State != StateNoReservation {
		t.Errorf("state = %v, reserve waits for the next poll", ctx.State)
	}
	m.WaitAsync(0)
}

func reserveAndRefresh(t *testing.T, m *Machine, ctx *AppContext) {
	t.Helper()
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{
		Stations: stations(),
		Active:   &Reservation{ID: 44, EstacaoID: 1, Status: StatusReservada},
	}})
	if ctx.State != StateReserved {
		t.Fatalf("state = %v", ctx.State)
	}
}

func TestPickupSimulationFlow(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	reserveAndRefresh(t, m, ctx)

	m.handleEvent(Event{Type: EventUIClickSimulate})
	if ctx.State != StateSimulatingPickup {
		t.Fatalf("state = %v", ctx.State)
	}
	waitFor(t, log, "StartSimulation")

	m.handleEvent(Event{Type: EventSysSimPosition, Payload: PositionPayload{
		Position: geo.Coordinate{Latitude: -8.82, Longitude: 13.24},
		Index:    10,
		Total:    50,
	}})
	if ctx.Position == nil {
		t.Fatal("position not applied")
	}
	if ctx.Elapsed != 10*time.Second {
		t.Errorf("elapsed = %v", ctx.Elapsed)
	}

	m.handleEvent(Event{Type: EventSysPickupCompleted})
	if ctx.State != StatePickedUp {
		t.Errorf("state = %v", ctx.State)
	}
	if !ctx.Active.PickedUp() {
		t.Error("local reservation status not advanced")
	}
	waitFor(t, log, "ChooseDestination")
	m.WaitAsync(0)
}

func TestReturnSimulationFlow(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	reserveAndRefresh(t, m, ctx)
	m.handleEvent(Event{Type: EventUIClickSimulate})
	m.handleEvent(Event{Type: EventSysPickupCompleted})

	destination := stations()[2]
	m.handleEvent(Event{Type: EventSysDestinationChosen, Payload: DestinationPayload{
		Station: destination,
		Metrics: RouteMetrics{DistanceKM: 2.1, Estimated: 10 * time.Minute},
	}})
	if ctx.Destination == nil || ctx.Destination.ID != 3 {
		t.Fatalf("destination = %+v", ctx.Destination)
	}
	if !ctx.UI.CanSimulate {
		t.Error("simulate disabled with destination chosen")
	}

	m.handleEvent(Event{Type: EventUIClickSimulate})
	if ctx.State != StateSimulatingReturn {
		t.Fatalf("state = %v", ctx.State)
	}

	m.handleEvent(Event{Type: EventSysReturnCompleted, Payload: RideSummaryPayload{
		Points:      10,
		DistanceKM:  2.1,
		Duration:    10 * time.Minute,
		Origin:      stations()[0],
		Destination: destination,
	}})
	if ctx.State != StateNoReservation {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("ApplyRideStats") {
		t.Error("ride stats not applied")
	}
	if ctx.User.Pontos != 10 {
		t.Errorf("points = %d", ctx.User.Pontos)
	}
	if ctx.Active != nil || ctx.Destination != nil || ctx.Position != nil {
		t.Error("ride context not reset")
	}
	m.WaitAsync(0)
}

func TestSimFailureFallsBack(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	reserveAndRefresh(t, m, ctx)
	m.handleEvent(Event{Type: EventUIClickSimulate})

	m.handleEvent(Event{Type: EventSysSimFailure, Payload: ScenarioResultPayload{
		Kind:    ErrorKindRequestFailed,
		Message: "Não foi possível registrar a retirada da bike",
	}})

	if ctx.State != StateReserved {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("ShowModalError") {
		t.Error("no modal for simulation failure")
	}
	m.WaitAsync(0)
}

func TestRefreshFailureSessionExpiredForcesLogout(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventSysRefreshFailure, Payload: ScenarioResultPayload{
		Kind: ErrorKindSessionExpired,
	}})

	if ctx.State != StateWaitingLogin {
		t.Errorf("state = %v", ctx.State)
	}
	if !log.has("StopPolling") {
		t.Error("polling survived expired session")
	}
	waitFor(t, log, "StartLogout")
	if ctx.User != nil {
		t.Error("user survived forced logout")
	}
	m.WaitAsync(0)
}

func TestRefreshFailureKeepsData(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventSysRefreshFailure, Payload: ScenarioResultPayload{
		Kind:    ErrorKindNetworkUnavailable,
		Message: "Sem conexão",
	}})

	if ctx.State != StateNoReservation {
		t.Errorf("state = %v", ctx.State)
	}
	if len(ctx.Stations) != 3 {
		t.Error("stations dropped on transient failure")
	}
	if !log.has("ShowTransient") {
		t.Error("no notice for transient failure")
	}
	m.WaitAsync(0)
}

func TestLogoutResetsContext(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventUIClickLogout})

	if ctx.State != StateWaitingLogin {
		t.Errorf("state = %v", ctx.State)
	}
	if ctx.User != nil || ctx.Stations != nil || ctx.Active != nil {
		t.Error("context survived logout")
	}
	if !log.has("StopPolling") || !log.has("ShowLoginWindow") {
		t.Error("logout side effects missing")
	}
	waitFor(t, log, "StartLogout")
	m.WaitAsync(0)
}

func TestExitEventGoesThroughPriorityQueue(t *testing.T) {
	m, ctx, log := newTestMachine(t)
	m.Start()
	defer m.Stop()

	if err := m.Dispatch(Event{Type: EventUIExit}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, log, "Shutdown")
	if ctx.State != StateExiting {
		t.Errorf("state = %v", ctx.State)
	}
}

func TestDispatchAfterStop(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.Start()
	m.Stop()

	if err := m.Dispatch(Event{Type: EventUILaunch}); err == nil {
		t.Fatal("expected error after stop")
	}
}

func TestSearchAndSelectionAreStateless(t *testing.T) {
	m, ctx, _ := newTestMachine(t)
	authenticate(t, m, ctx)
	m.handleEvent(Event{Type: EventSysDataRefreshed, Payload: RefreshPayload{Stations: stations()}})

	m.handleEvent(Event{Type: EventUISearchChanged, Payload: SearchPayload{Term: "mut"}})
	m.handleEvent(Event{Type: EventUISelectStation, Payload: SelectionPayload{StationID: 3}})

	if ctx.UI.SearchTerm != "mut" || ctx.UI.SelectedStationID != 3 {
		t.Errorf("ui = %+v", ctx.UI)
	}
	if ctx.State != StateNoReservation {
		t.Errorf("state = %v", ctx.State)
	}
	m.WaitAsync(0)
}
