package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ciclogo/client/internal/geo"
	"ciclogo/client/internal/state"
)

// UserDTO matches the cyclist record returned by /auth/login and /cyclists/me.
type UserDTO struct {
	ID        int         `json:"id"`
	Nome      string      `json:"nome"`
	Email     string      `json:"email"`
	Telefone  string      `json:"telefone"`
	Pontos    int         `json:"pontos"`
	Distancia json.Number `json:"distancia"`
	Tempo     string      `json:"tempo"`
}

// StationDTO matches one entry of the /stations response. Latitude and
// longitude arrive either as numbers or as quoted strings.
type StationDTO struct {
	ID               int         `json:"id"`
	Nome             string      `json:"nome"`
	Latitude         json.Number `json:"latitude"`
	Longitude        json.Number `json:"longitude"`
	BikesDisponiveis int         `json:"bikes_disponiveis"`
	Descricao        string      `json:"descricao"`
}

// ReservationDTO matches the data object of /reservas/active/{id}.
type ReservationDTO struct {
	ID         int    `json:"id"`
	CiclistaID int    `json:"id_ciclista"`
	EstacaoID  int    `json:"id_estacao"`
	Status     string `json:"status"`
	CriadaEm   string `json:"data_reserva"`
}

// TripDTO matches one entry of /trajetorias/usuario/{id}.
type TripDTO struct {
	ID                int    `json:"id"`
	EstacaoInicio     int    `json:"estacao_inicio"`
	EstacaoFim        int    `json:"estacao_fim"`
	EstacaoInicioNome string `json:"estacao_inicio_nome"`
	EstacaoFimNome    string `json:"estacao_fim_nome"`
	DataInicio        string `json:"data_inicio"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// LoginResponse carries the cyclist record and the bearer token.
type LoginResponse struct {
	Usuario UserDTO `json:"usuario"`
	Token   string  `json:"token"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Nome     string `json:"nome"`
	Email    string `json:"email"`
	Telefone string `json:"telefone"`
	Senha    string `json:"senha"`
}

// RegisterResponse carries the bearer token of the fresh account.
type RegisterResponse struct {
	Token string `json:"token"`
}

// ReserveRequest is the body of POST /reservas/reserve.
type ReserveRequest struct {
	CiclistaID int `json:"id_ciclista"`
	EstacaoID  int `json:"id_estacao"`
}

// TripRequest is the body of POST /trajetorias.
type TripRequest struct {
	UsuarioID     int    `json:"id_usuario"`
	EstacaoInicio int    `json:"estacao_inicio"`
	EstacaoFim    int    `json:"estacao_fim"`
	DataInicio    string `json:"data_inicio"`
}

// PointsRequest is the body of PATCH /cyclists/{id}/points. Distancia is
// serialized as a decimal string and tempo as "HH:MM".
type PointsRequest struct {
	Pontos    int    `json:"pontos"`
	Distancia string `json:"distancia"`
	Tempo     string `json:"tempo"`
}

// statusEnvelope wraps endpoints that answer {"status": ..., "data": ...}.
type statusEnvelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Mensagem string          `json:"mensagem"`
}

// apiMessage extracts a human message from an error body in either language.
type apiMessage struct {
	Mensagem string `json:"mensagem"`
	Message  string `json:"message"`
	Erro     string `json:"error"`
}

func (m apiMessage) text() string {
	for _, candidate := range []string{m.Mensagem, m.Message, m.Erro} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// Validate converts the DTO into the domain user record.
func (dto UserDTO) Validate() (state.User, error) {
	if dto.ID <= 0 {
		return state.User{}, fmt.Errorf("user id is missing")
	}
	if dto.Email == "" {
		return state.User{}, fmt.Errorf("user %d: email is empty", dto.ID)
	}
	user := state.User{
		ID:       dto.ID,
		Nome:     dto.Nome,
		Email:    dto.Email,
		Telefone: dto.Telefone,
		Pontos:   dto.Pontos,
	}
	if raw := strings.TrimSpace(dto.Distancia.String()); raw != "" {
		distancia, err := dto.Distancia.Float64()
		if err != nil {
			return state.User{}, fmt.Errorf("user %d: invalid distancia %q", dto.ID, raw)
		}
		user.DistanciaKM = distancia
	}
	if dto.Tempo != "" {
		tempo, err := geo.ParseHHMM(dto.Tempo)
		if err != nil {
			return state.User{}, fmt.Errorf("user %d: invalid tempo %q", dto.ID, dto.Tempo)
		}
		user.Tempo = tempo
	}
	return user, nil
}

// Validate converts the DTO into the domain station model.
func (dto StationDTO) Validate() (state.Station, error) {
	if dto.ID <= 0 {
		return state.Station{}, fmt.Errorf("station id is missing")
	}
	if dto.Nome == "" {
		return state.Station{}, fmt.Errorf("station %d: name is empty", dto.ID)
	}
	latitude, err := dto.Latitude.Float64()
	if err != nil {
		return state.Station{}, fmt.Errorf("station %d: invalid latitude %q", dto.ID, dto.Latitude.String())
	}
	longitude, err := dto.Longitude.Float64()
	if err != nil {
		return state.Station{}, fmt.Errorf("station %d: invalid longitude %q", dto.ID, dto.Longitude.String())
	}
	return state.Station{
		ID:               dto.ID,
		Nome:             dto.Nome,
		Position:         geo.Coordinate{Latitude: latitude, Longitude: longitude},
		BikesDisponiveis: dto.BikesDisponiveis,
		Descricao:        dto.Descricao,
	}, nil
}

// Validate converts the DTO into the domain reservation model.
func (dto ReservationDTO) Validate() (state.Reservation, error) {
	if dto.ID <= 0 {
		return state.Reservation{}, fmt.Errorf("reservation id is missing")
	}
	if dto.EstacaoID <= 0 {
		return state.Reservation{}, fmt.Errorf("reservation %d: station id is missing", dto.ID)
	}
	reservation := state.Reservation{
		ID:         dto.ID,
		CiclistaID: dto.CiclistaID,
		EstacaoID:  dto.EstacaoID,
		Status:     state.ReservationStatus(strings.ToLower(strings.TrimSpace(dto.Status))),
	}
	if reservation.Status == "" {
		reservation.Status = state.StatusReservada
	}
	if dto.CriadaEm != "" {
		if ts, err := time.Parse(time.RFC3339, dto.CriadaEm); err == nil {
			reservation.ReservadaEm = ts
		}
	}
	return reservation, nil
}

// Validate converts the DTO into the domain trip model.
func (dto TripDTO) Validate() (state.Trip, error) {
	if dto.ID <= 0 {
		return state.Trip{}, fmt.Errorf("trip id is missing")
	}
	trip := state.Trip{
		ID:                dto.ID,
		EstacaoInicio:     dto.EstacaoInicio,
		EstacaoFim:        dto.EstacaoFim,
		EstacaoInicioNome: dto.EstacaoInicioNome,
		EstacaoFimNome:    dto.EstacaoFimNome,
		DataInicio:        dto.DataInicio,
	}
	trip.DataFormatada = formatTripDate(dto.DataInicio)
	return trip, nil
}

// formatTripDate renders the API date as dd/mm/yyyy for the history list.
func formatTripDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format("02/01/2006")
		}
	}
	return value
}
