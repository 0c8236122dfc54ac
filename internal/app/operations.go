package app

import (
	"context"
	"errors"
	"fmt"

	"ciclogo/client/internal/apiclient"
	"ciclogo/client/internal/ride"
	"ciclogo/client/internal/state"
)

func (a *Application) startRestore(_ *state.AppContext) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	user, err := a.sessions.Restore(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("session restore failed")
		a.dispatch(state.Event{Type: state.EventSysRestoreNone})
		return
	}
	if user == nil {
		a.dispatch(state.Event{Type: state.EventSysRestoreNone})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysRestoreActive, Payload: state.UserPayload{User: *user}})
}

func (a *Application) startLogin(_ *state.AppContext, email, senha string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	user, err := a.sessions.Login(ctx, email, senha)
	if err != nil {
		a.logger.Error().Err(err).Msg("login failed")
		payload := buildAuthFailurePayload(err, "Erro ao fazer login")
		a.dispatch(state.Event{Type: state.EventSysAuthFailure, Payload: payload})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysAuthSuccess, Payload: state.UserPayload{User: user}})
}

func (a *Application) startRegister(_ *state.AppContext, nome, email, senha, telefone string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	user, err := a.sessions.Register(ctx, nome, email, senha, telefone)
	if err != nil {
		a.logger.Error().Err(err).Msg("register failed")
		payload := buildAuthFailurePayload(err, "Erro ao criar conta")
		a.dispatch(state.Event{Type: state.EventSysAuthFailure, Payload: payload})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysAuthSuccess, Payload: state.UserPayload{User: user}})
}

func (a *Application) startLogout(_ *state.AppContext) {
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	if err := a.sessions.Logout(ctx); err != nil {
		a.logger.Error().Err(err).Msg("logout failed")
	}
}

func (a *Application) startRefresh(_ *state.AppContext) {
	if a.isStopping() {
		return
	}
	user := a.sessions.Current()
	if user == nil {
		a.logger.Debug().Msg("refresh requested without session")
		return
	}
	// Cached data is shown once, before the first network round trip.
	a.preloadOnce.Do(a.rides.PreloadFromCache)
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	a.rides.Refresh(ctx, user.ID)
}

func (a *Application) startPolling(_ *state.AppContext) {
	user := a.sessions.Current()
	if user == nil {
		return
	}
	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	if a.poll != nil {
		a.poll.Stop()
	}
	a.poll = a.rides.StartPolling(user.ID)
	a.logger.Debug().Dur("interval", a.cfg.PollInterval).Msg("polling started")
}

func (a *Application) stopPolling() {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	if a.poll != nil {
		a.poll.Stop()
		a.poll = nil
		a.logger.Debug().Msg("polling stopped")
	}
}

func (a *Application) startReserve(_ *state.AppContext, stationID int) {
	if a.isStopping() {
		return
	}
	user := a.sessions.Current()
	if user == nil {
		return
	}
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	a.rides.Reserve(ctx, user.ID, stationID)
}

func (a *Application) chooseDestination(appCtx *state.AppContext) {
	if a.isStopping() {
		return
	}
	origin := appCtx.ReservedStation
	if origin == nil {
		a.logger.Error().Msg("destination requested without origin station")
		a.dispatch(state.Event{Type: state.EventSysNoDestination})
		return
	}
	ctx, cancel := a.requestContext(a.cfg.RequestTimeout)
	defer cancel()
	a.rides.ChooseDestination(ctx, appCtx.Stations, *origin)
}

func (a *Application) startSimulation(appCtx *state.AppContext) {
	if a.isStopping() {
		return
	}
	req, err := a.buildSimulationRequest(appCtx)
	if err != nil {
		a.logger.Error().Err(err).Msg("simulation request invalid")
		a.dispatch(state.Event{Type: state.EventSysSimFailure, Payload: state.ScenarioResultPayload{
			Kind:             state.ErrorKindValidation,
			Message:          "Não foi possível iniciar a simulação",
			TechnicalMessage: err.Error(),
		}})
		return
	}
	// The simulation outlives any single request timeout; it is bounded by
	// the application lifetime instead.
	a.rides.Simulate(a.runCtx, req)
}

func (a *Application) buildSimulationRequest(appCtx *state.AppContext) (ride.SimulationRequest, error) {
	user := a.sessions.Current()
	if user == nil {
		return ride.SimulationRequest{}, fmt.Errorf("no active session")
	}
	if appCtx.Active == nil {
		return ride.SimulationRequest{}, fmt.Errorf("no active reservation")
	}
	if appCtx.ReservedStation == nil {
		return ride.SimulationRequest{}, fmt.Errorf("reserved station unknown")
	}
	req := ride.SimulationRequest{
		Leg:         appCtx.Leg,
		Reservation: *appCtx.Active,
		Rider:       *user,
		Origin:      *appCtx.ReservedStation,
	}
	switch appCtx.Leg {
	case state.LegPickup:
		req.From = appCtx.StartPosition()
		req.To = appCtx.ReservedStation.Position
	case state.LegReturn:
		if appCtx.Destination == nil {
			return ride.SimulationRequest{}, fmt.Errorf("no destination chosen")
		}
		req.From = appCtx.ReservedStation.Position
		req.To = appCtx.Destination.Position
		req.Destination = *appCtx.Destination
		req.Metrics = appCtx.Route
	default:
		return ride.SimulationRequest{}, fmt.Errorf("unknown leg %q", appCtx.Leg)
	}
	return req, nil
}

func (a *Application) applyRideStats(summary state.RideSummaryPayload) {
	if err := a.sessions.ApplyRideStats(summary.Points, summary.DistanceKM, summary.Duration); err != nil {
		a.logger.Error().Err(err).Msg("apply ride stats failed")
	}
}

func buildAuthFailurePayload(err error, fallback string) state.ScenarioResultPayload {
	payload := state.ScenarioResultPayload{
		Kind:    state.ErrorKindAuthFailed,
		Message: fallback,
	}
	if err == nil {
		return payload
	}
	payload.TechnicalMessage = err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		payload.Kind = state.ErrorKindNetworkUnavailable
		payload.Message = "Tempo de resposta do servidor esgotado"
		return payload
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		if apiErr.Kind != "" {
			payload.Kind = apiErr.Kind
		}
		switch apiErr.Kind {
		case state.ErrorKindAuthFailed:
			payload.Message = "Email ou senha incorretos"
		case state.ErrorKindNetworkUnavailable:
			payload.Message = "Não foi possível conectar ao servidor"
		case state.ErrorKindValidation:
			if apiErr.Err != nil {
				payload.Message = apiErr.Err.Error()
			}
		default:
			if apiErr.Status > 0 {
				payload.Message = fmt.Sprintf("%s (código %d)", fallback, apiErr.Status)
			}
		}
	}
	return payload
}
