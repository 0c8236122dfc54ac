package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/apiclient"
	"ciclogo/client/internal/config"
	"ciclogo/client/internal/ride"
	"ciclogo/client/internal/session"
	"ciclogo/client/internal/state"
	"ciclogo/client/internal/store"
	"ciclogo/client/internal/ui"
)

// Application wires the state machine, the API client, the session manager,
// the ride controller and the UI together.
type Application struct {
	cfg      *config.Config
	logger   zerolog.Logger
	api      *apiclient.Client
	db       *store.Store
	sessions *session.Manager
	rides    *ride.Controller
	machine  *state.Machine
	ctx      *state.AppContext
	ui       *ui.Manager

	pollMu      sync.Mutex
	poll        *ride.Subscription
	preloadOnce sync.Once

	shutdown  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	stopOnce  sync.Once
}

// New builds the Application and installs the state machine callbacks.
func New(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	api, err := apiclient.New(cfg.APIBaseURL, apiclient.Options{
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	db, err := store.Open(cfg.DataFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	stateCtx := state.NewAppContext(cfg)
	runCtx, runCancel := context.WithCancel(context.Background())
	app := &Application{
		cfg:       cfg,
		logger:    logger,
		api:       api,
		db:        db,
		ctx:       stateCtx,
		shutdown:  make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	app.sessions = session.NewManager(api, db, logger)
	app.rides = ride.NewController(api, db, nil, logger, app.dispatchEvent, ride.Options{
		PollInterval: cfg.PollInterval,
		StepInterval: cfg.SimulationStep,
	})
	uiManager := ui.NewManager(ui.Options{
		AppID:    "ciclogo.client",
		AppName:  "CicloGo",
		Logger:   logger,
		Dispatch: app.dispatch,
	})
	uiManager.SetOnStopped(app.onAppStopped)
	app.ui = uiManager
	callbacks := state.Callbacks{
		StartRestore:      app.startRestore,
		StartLogin:        app.startLogin,
		StartRegister:     app.startRegister,
		StartLogout:       app.startLogout,
		StartRefresh:      app.startRefresh,
		StartPolling:      app.startPolling,
		StopPolling:       app.stopPolling,
		StartReserve:      app.startReserve,
		ChooseDestination: app.chooseDestination,
		StartSimulation:   app.startSimulation,
		ApplyRideStats:    app.applyRideStats,
		ShowLoginWindow:   uiManager.ShowLoginWindow,
		ShowMainWindow:    uiManager.ShowMainWindow,
		HideMainWindow:    uiManager.HideMainWindow,
		UpdateUI:          uiManager.UpdateUI,
		ShowModalError:    uiManager.ShowModalError,
		ShowTransient:     uiManager.ShowTransientNotice,
		Shutdown:          app.shutdownRequested,
	}
	app.machine = state.NewMachine(stateCtx, logger, callbacks)
	return app, nil
}

// Run starts the state machine and kicks off the launch scenario.
func (a *Application) Run() error {
	if a.machine == nil {
		return fmt.Errorf("machine is not initialized")
	}
	if a.ui != nil {
		a.ui.Start()
		a.ui.UpdateUI(a.ctx)
	}
	a.machine.Start()
	return a.dispatch(state.Event{Type: state.EventUILaunch, TS: time.Now()})
}

// RunUILoop runs the Fyne main loop and blocks the calling goroutine.
func (a *Application) RunUILoop() {
	if a.ui == nil {
		return
	}
	a.ui.RunMainLoop()
}

// Stop shuts the application down: poller, UI, state machine, store.
func (a *Application) Stop() {
	a.stopOnce.Do(func() {
		if a.runCancel != nil {
			a.runCancel()
		}
		a.stopPolling()
		if a.ui != nil {
			a.ui.Shutdown()
			if !a.ui.WaitAsync(3 * time.Second) {
				a.logger.Error().Msg("ui background tasks did not finish before timeout")
			}
		}
		if a.machine != nil {
			a.machine.Stop()
			if !a.machine.WaitAsync(3 * time.Second) {
				a.logger.Error().Msg("state machine background tasks did not finish before timeout")
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Error().Err(err).Msg("close local store")
			}
		}
		close(a.shutdown)
	})
}

// Done is closed once the application has fully stopped.
func (a *Application) Done() <-chan struct{} {
	return a.shutdown
}

func (a *Application) dispatch(evt state.Event) error {
	if err := a.machine.Dispatch(evt); err != nil {
		a.logger.Error().Str("event", string(evt.Type)).Err(err).Msg("dispatch failed")
		return err
	}
	return nil
}

// dispatchEvent adapts dispatch for collaborators that ignore the error.
func (a *Application) dispatchEvent(evt state.Event) {
	_ = a.dispatch(evt)
}

func (a *Application) onAppStopped() {
	a.Stop()
}

// shutdownRequested runs when the state machine enters the exiting state.
func (a *Application) shutdownRequested() {
	a.logger.Info().Msg("state machine requested shutdown")
	if a.ui != nil {
		a.ui.Quit()
	}
	go a.Stop()
}

func (a *Application) requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = a.cfg.RequestTimeout
	}
	parent := context.Background()
	if a != nil && a.runCtx != nil {
		parent = a.runCtx
	}
	return context.WithTimeout(parent, timeout)
}

func (a *Application) isStopping() bool {
	if a == nil || a.runCtx == nil {
		return false
	}
	select {
	case <-a.runCtx.Done():
		return true
	default:
		return false
	}
}
