package state

import (
	"time"

	"ciclogo/client/internal/config"
	"ciclogo/client/internal/geo"
)

// ErrorKind classifies an error for the UI and for state logic.
type ErrorKind string

const (
	ErrorKindNetworkUnavailable ErrorKind = "NetworkUnavailable"
	ErrorKindAuthFailed         ErrorKind = "AuthFailed"
	ErrorKindRequestFailed      ErrorKind = "RequestFailed"
	ErrorKindBadResponse        ErrorKind = "BadResponse"
	ErrorKindSessionExpired     ErrorKind = "SessionExpired"
	ErrorKindValidation         ErrorKind = "Validation"
	ErrorKindUnknown            ErrorKind = "Unknown"
)

// User is the authenticated cyclist's identity record.
type User struct {
	ID          int
	Nome        string
	Email       string
	Telefone    string
	Pontos      int
	DistanciaKM float64
	Tempo       time.Duration
}

// Station is a bike-docking location. Collections of stations are always
// keyed by ID; station names are not guaranteed unique.
type Station struct {
	ID               int
	Nome             string
	Position         geo.Coordinate
	BikesDisponiveis int
	Descricao        string
}

// HasBikes reports whether the station can currently hand out a bike.
func (s Station) HasBikes() bool {
	return s.BikesDisponiveis > 0
}

// ReservationStatus is the wire status of a reservation.
type ReservationStatus string

const (
	StatusReservada ReservationStatus = "reservada"
	StatusLevantada ReservationStatus = "levantado"
	StatusDevolvida ReservationStatus = "devolvido"
)

// Reservation is a cyclist's claim on a bike at a station.
type Reservation struct {
	ID          int
	CiclistaID  int
	EstacaoID   int
	Status      ReservationStatus
	ReservadaEm time.Time
}

// PickedUp reports whether the bike has been collected at the origin station.
func (r *Reservation) PickedUp() bool {
	return r != nil && r.Status == StatusLevantada
}

// Active reports whether the reservation still claims a bike.
func (r *Reservation) Active() bool {
	return r != nil && r.Status != StatusDevolvida
}

// Trip is a completed return leg as recorded by the API.
type Trip struct {
	ID                int
	EstacaoInicio     int
	EstacaoFim        int
	EstacaoInicioNome string
	EstacaoFimNome    string
	DataInicio        string
	DataFormatada     string
}

// Leg identifies the simulated travel segment.
type Leg string

const (
	LegPickup Leg = "pickup"
	LegReturn Leg = "return"
)

// RouteMetrics carries the directions provider's result for the current leg.
type RouteMetrics struct {
	DistanceKM float64
	Estimated  time.Duration
}

// StationCounters are the display counts derived from a station list.
type StationCounters struct {
	Disponiveis   int
	Indisponiveis int
	Total         int
}

// CountStations derives the availability counters without mutating the list.
func CountStations(stations []Station) StationCounters {
	counters := StationCounters{Total: len(stations)}
	for _, station := range stations {
		if station.HasBikes() {
			counters.Disponiveis++
		}
	}
	counters.Indisponiveis = counters.Total - counters.Disponiveis
	return counters
}

// FindStation returns the station with the given id, or nil.
func FindStation(stations []Station, id int) *Station {
	for i := range stations {
		if stations[i].ID == id {
			return &stations[i]
		}
	}
	return nil
}

// ErrorInfo describes an error for the UI and the logs.
type ErrorInfo struct {
	Kind             ErrorKind
	UserMessage      string
	TechnicalMessage string
	OccurredAt       time.Time
}

// UIState holds the minimum the UI needs to render itself.
type UIState struct {
	IsLoginVisible    bool
	IsMainVisible     bool
	IsAuthenticating  bool
	IsSimulating      bool
	StatusText        string
	NomeInput         string
	EmailInput        string
	SenhaInput        string
	TelefoneInput     string
	SearchTerm        string
	SelectedStationID int
	CanReserve        bool
	CanSimulate       bool
	SimulateLabel     string
}

// AppContext holds the whole application state owned by the state machine.
type AppContext struct {
	Config          *config.Config
	User            *User
	Stations        []Station
	Counters        StationCounters
	Active          *Reservation
	ReservedStation *Station
	Destination     *Station
	Trips           []Trip
	Leg             Leg
	Route           RouteMetrics
	Position        *geo.Coordinate
	Elapsed         time.Duration
	LastError       *ErrorInfo
	UI              UIState
	State           State
}

// NewAppContext creates an AppContext in the starting state.
func NewAppContext(cfg *config.Config) *AppContext {
	return &AppContext{
		Config: cfg,
		Leg:    LegPickup,
		State:  StateAppStarting,
	}
}

// FindStation resolves a station id against the last fetched list.
func (ctx *AppContext) FindStation(id int) *Station {
	return FindStation(ctx.Stations, id)
}

// StartPosition is where the pickup leg begins.
func (ctx *AppContext) StartPosition() geo.Coordinate {
	if ctx.Config == nil {
		return geo.Coordinate{Latitude: config.DefaultStartLatitude, Longitude: config.DefaultStartLongitude}
	}
	return geo.Coordinate{Latitude: ctx.Config.StartLatitude, Longitude: ctx.Config.StartLongitude}
}
