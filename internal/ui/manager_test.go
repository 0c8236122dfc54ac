package ui

import (
	"testing"
	"time"

	"ciclogo/client/internal/state"
)

func TestFilterStationsMatchesNameAndDescription(t *testing.T) {
	stations := []state.Station{
		{ID: 1, Nome: "Central", Descricao: "Perto do mercado"},
		{ID: 2, Nome: "Marginal", Descricao: "Avenida 4 de Fevereiro"},
		{ID: 3, Nome: "Mutamba", Descricao: ""},
	}

	byName := filterStations(stations, "muta")
	if len(byName) != 1 || byName[0].ID != 3 {
		t.Errorf("byName = %+v", byName)
	}

	byDescription := filterStations(stations, "mercado")
	if len(byDescription) != 1 || byDescription[0].ID != 1 {
		t.Errorf("byDescription = %+v", byDescription)
	}

	all := filterStations(stations, "  ")
	if len(all) != 3 {
		t.Errorf("blank term filtered to %d stations", len(all))
	}

	none := filterStations(stations, "inexistente")
	if len(none) != 0 {
		t.Errorf("none = %+v", none)
	}
}

func TestFormatReservation(t *testing.T) {
	if got := formatReservation(nil, nil); got != "" {
		t.Errorf("nil reservation rendered %q", got)
	}

	reserved := &state.Reservation{
		ID:          44,
		EstacaoID:   2,
		Status:      state.StatusReservada,
		ReservadaEm: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	station := &state.Station{ID: 2, Nome: "Marginal"}

	got := formatReservation(reserved, station)
	want := "Reserva: reservada  •  Marginal  •  30/08/2026 10:00"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatReservationFallsBackToStationID(t *testing.T) {
	reserved := &state.Reservation{ID: 44, EstacaoID: 5, Status: state.StatusLevantada}

	got := formatReservation(reserved, nil)
	want := "Reserva: levantado  •  Estação 5"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
