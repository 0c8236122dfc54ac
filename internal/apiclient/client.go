package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ciclogo/client/internal/geo"
	"ciclogo/client/internal/state"
)

// Client encapsulates HTTP interactions with the bike-sharing API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// Options overrides the client dependencies.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

const defaultTimeout = 10 * time.Second

// New creates an API client for the given base URL.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: parsed, httpClient: client, logger: opts.Logger}, nil
}

// SetAuthToken installs the bearer token used on subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearAuthToken drops the bearer token.
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// Token returns the currently installed bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Error describes a failed API call.
type Error struct {
	Op     string
	Kind   state.ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "api client error"
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to Unknown.
func KindOf(err error) state.ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return state.ErrorKindUnknown
}

// Login calls POST /auth/login and returns the cyclist plus the token.
func (c *Client) Login(ctx context.Context, email, senha string) (state.User, string, error) {
	const op = "Login"
	payload := LoginRequest{Email: email, Senha: senha}
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", payload)
	if err != nil {
		return state.User{}, "", wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return state.User{}, "", c.statusError(op, state.ErrorKindAuthFailed, resp, errors.New("credenciais inválidas"))
	}
	if resp.StatusCode != http.StatusOK {
		return state.User{}, "", c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var body LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return state.User{}, "", wrapError(op, state.ErrorKindBadResponse, err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return state.User{}, "", &Error{Op: op, Kind: state.ErrorKindBadResponse, Status: resp.StatusCode, Err: errors.New("empty token")}
	}
	user, err := body.Usuario.Validate()
	if err != nil {
		return state.User{}, "", wrapError(op, state.ErrorKindBadResponse, err)
	}
	return user, body.Token, nil
}

// Register calls POST /auth/register and returns the token of the new account.
func (c *Client) Register(ctx context.Context, nome, email, senha, telefone string) (string, error) {
	const op = "Register"
	payload := RegisterRequest{Nome: nome, Email: email, Telefone: telefone, Senha: senha}
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", payload)
	if err != nil {
		return "", wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusBadRequest {
		return "", c.statusError(op, state.ErrorKindValidation, resp, errors.New("registo recusado"))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var body RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", wrapError(op, state.ErrorKindBadResponse, err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return "", &Error{Op: op, Kind: state.ErrorKindBadResponse, Status: resp.StatusCode, Err: errors.New("empty token")}
	}
	return body.Token, nil
}

// Me calls GET /cyclists/me using the installed token.
func (c *Client) Me(ctx context.Context) (state.User, error) {
	return c.MeWith(ctx, c.Token())
}

// MeWith calls GET /cyclists/me with an explicit token, used right after
// registration before the session is installed.
func (c *Client) MeWith(ctx context.Context, token string) (state.User, error) {
	const op = "Me"
	resp, err := c.do(ctx, http.MethodGet, "/cyclists/me", token, nil)
	if err != nil {
		return state.User{}, wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return state.User{}, c.statusError(op, state.ErrorKindSessionExpired, resp, errors.New("sessão expirada"))
	}
	if resp.StatusCode != http.StatusOK {
		return state.User{}, c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var dto UserDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return state.User{}, wrapError(op, state.ErrorKindBadResponse, err)
	}
	user, err := dto.Validate()
	if err != nil {
		return state.User{}, wrapError(op, state.ErrorKindBadResponse, err)
	}
	return user, nil
}

// ListStations calls GET /stations and returns the station list keyed by id.
func (c *Client) ListStations(ctx context.Context) ([]state.Station, error) {
	const op = "ListStations"
	resp, err := c.do(ctx, http.MethodGet, "/stations", c.Token(), nil)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.statusError(op, state.ErrorKindSessionExpired, resp, errors.New("sessão expirada"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var payload []StationDTO
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, wrapError(op, state.ErrorKindBadResponse, err)
	}
	stations := make([]state.Station, 0, len(payload))
	for _, dto := range payload {
		station, err := dto.Validate()
		if err != nil {
			return nil, wrapError(op, state.ErrorKindBadResponse, err)
		}
		stations = append(stations, station)
	}
	return stations, nil
}

// ActiveReservation calls GET /reservas/active/{userId}. A body with
// status "error" means no active reservation and yields (nil, nil).
func (c *Client) ActiveReservation(ctx context.Context, userID int) (*state.Reservation, error) {
	const op = "ActiveReservation"
	resp, err := c.do(ctx, http.MethodGet, "/reservas/active/"+strconv.Itoa(userID), c.Token(), nil)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.statusError(op, state.ErrorKindSessionExpired, resp, errors.New("sessão expirada"))
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, wrapError(op, state.ErrorKindBadResponse, err)
	}
	if !strings.EqualFold(envelope.Status, "success") {
		return nil, nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, nil
	}
	var dto ReservationDTO
	if err := json.Unmarshal(envelope.Data, &dto); err != nil {
		return nil, wrapError(op, state.ErrorKindBadResponse, err)
	}
	reservation, err := dto.Validate()
	if err != nil {
		return nil, wrapError(op, state.ErrorKindBadResponse, err)
	}
	return &reservation, nil
}

// Reserve calls POST /reservas/reserve.
func (c *Client) Reserve(ctx context.Context, ciclistaID, estacaoID int) error {
	const op = "Reserve"
	payload := ReserveRequest{CiclistaID: ciclistaID, EstacaoID: estacaoID}
	resp, err := c.doJSON(ctx, http.MethodPost, "/reservas/reserve", c.Token(), payload)
	if err != nil {
		return wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	return c.expectSuccess(op, resp)
}

// MarkPickedUp calls PATCH /reservas/status/levantado/{id}.
func (c *Client) MarkPickedUp(ctx context.Context, reservationID int) error {
	const op = "MarkPickedUp"
	resp, err := c.do(ctx, http.MethodPatch, "/reservas/status/levantado/"+strconv.Itoa(reservationID), c.Token(), nil)
	if err != nil {
		return wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	return c.expectSuccess(op, resp)
}

// MarkReturned calls PATCH /reservas/status/devolvido/{id}.
func (c *Client) MarkReturned(ctx context.Context, reservationID int) error {
	const op = "MarkReturned"
	resp, err := c.do(ctx, http.MethodPatch, "/reservas/status/devolvido/"+strconv.Itoa(reservationID), c.Token(), nil)
	if err != nil {
		return wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	return c.expectSuccess(op, resp)
}

// RecordTrip calls POST /trajetorias with today's date.
func (c *Client) RecordTrip(ctx context.Context, usuarioID, estacaoInicio, estacaoFim int) error {
	const op = "RecordTrip"
	payload := TripRequest{
		UsuarioID:     usuarioID,
		EstacaoInicio: estacaoInicio,
		EstacaoFim:    estacaoFim,
		DataInicio:    time.Now().Format("2006-01-02"),
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/trajetorias", c.Token(), payload)
	if err != nil {
		return wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	return c.expectSuccess(op, resp)
}

// UpdatePoints calls PATCH /cyclists/{id}/points with the cyclist's
// cumulative totals.
func (c *Client) UpdatePoints(ctx context.Context, cyclistID, pontos int, distanciaKM float64, tempo time.Duration) error {
	const op = "UpdatePoints"
	payload := PointsRequest{
		Pontos:    pontos,
		Distancia: strconv.FormatFloat(distanciaKM, 'f', 2, 64),
		Tempo:     geo.FormatHHMM(tempo),
	}
	resp, err := c.doJSON(ctx, http.MethodPatch, "/cyclists/"+strconv.Itoa(cyclistID)+"/points", c.Token(), payload)
	if err != nil {
		return wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	return c.expectSuccess(op, resp)
}

// TripsByUser calls GET /trajetorias/usuario/{id}.
func (c *Client) TripsByUser(ctx context.Context, usuarioID int) ([]state.Trip, error) {
	const op = "TripsByUser"
	resp, err := c.do(ctx, http.MethodGet, "/trajetorias/usuario/"+strconv.Itoa(usuarioID), c.Token(), nil)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.statusError(op, state.ErrorKindSessionExpired, resp, errors.New("sessão expirada"))
	}
	if resp.StatusCode == http.StatusNotFound {
		return []state.Trip{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, wrapError(op, state.ErrorKindBadResponse, err)
	}
	var payload []TripDTO
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, wrapError(op, state.ErrorKindBadResponse, err)
		}
	}
	trips := make([]state.Trip, 0, len(payload))
	for _, dto := range payload {
		trip, err := dto.Validate()
		if err != nil {
			return nil, wrapError(op, state.ErrorKindBadResponse, err)
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// expectSuccess handles the common status checks of mutation endpoints.
func (c *Client) expectSuccess(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return c.statusError(op, state.ErrorKindSessionExpired, resp, errors.New("sessão expirada"))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return c.statusError(op, state.ErrorKindRequestFailed, resp, nil)
	}
}

// statusError builds an Error for a non-success response, preferring the
// message the API put into the body.
func (c *Client) statusError(op string, kind state.ErrorKind, resp *http.Response, fallback error) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var msg apiMessage
	if err := json.Unmarshal(body, &msg); err == nil {
		if text := msg.text(); text != "" {
			return &Error{Op: op, Kind: kind, Status: resp.StatusCode, Err: errors.New(text)}
		}
	}
	if fallback != nil {
		return &Error{Op: op, Kind: kind, Status: resp.StatusCode, Err: fallback}
	}
	return &Error{Op: op, Kind: kind, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
}

func (c *Client) do(ctx context.Context, method, path, authToken string, body io.Reader) (*http.Response, error) {
	// Paths are appended to the base URL so a prefix such as /api survives.
	full := *c.baseURL
	full.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("api request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, authToken string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, err
		}
		body = buf
	}
	return c.do(ctx, method, path, authToken, body)
}

func wrapError(op string, kind state.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
