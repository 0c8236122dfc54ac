// Package store persists the session and the last fetched data in a local
// SQLite database, so the app can restore a login and show cached stations
// before the first poll completes.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"ciclogo/client/internal/state"
)

const (
	keyUser  = "user"
	keyToken = "token"
)

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database file and applies migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// The file is touched from the UI goroutine and the poller.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS session (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stations (
			id                INTEGER PRIMARY KEY,
			nome              TEXT NOT NULL,
			latitude          REAL NOT NULL,
			longitude         REAL NOT NULL,
			bikes_disponiveis INTEGER NOT NULL,
			descricao         TEXT NOT NULL DEFAULT '',
			fetched_at        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id                  INTEGER PRIMARY KEY,
			estacao_inicio      INTEGER NOT NULL,
			estacao_fim         INTEGER NOT NULL,
			estacao_inicio_nome TEXT NOT NULL DEFAULT '',
			estacao_fim_nome    TEXT NOT NULL DEFAULT '',
			data_inicio         TEXT NOT NULL DEFAULT '',
			data_formatada      TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveSession stores the user record and the token in one transaction, so
// a crash can never leave one without the other.
func (s *Store) SaveSession(user state.User, token string) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	const upsert = `INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, keyUser, string(payload)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if _, err := tx.Exec(upsert, keyToken, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.logger.Debug().Int("user_id", user.ID).Msg("session saved")
	return nil
}

// LoadSession returns the persisted user and token, or (nil, "") when no
// complete session exists.
func (s *Store) LoadSession() (*state.User, string, error) {
	var rawUser, token string
	err := s.db.QueryRow(`SELECT value FROM session WHERE key = ?`, keyUser).Scan(&rawUser)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	err = s.db.QueryRow(`SELECT value FROM session WHERE key = ?`, keyToken).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return nil, "", nil
	}
	var user state.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, "", fmt.Errorf("decode user: %w", err)
	}
	return &user, token, nil
}

// ClearSession removes both session keys in one transaction.
func (s *Store) ClearSession() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM session WHERE key IN (?, ?)`, keyUser, keyToken); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// ReplaceStations swaps the cached station list wholesale.
func (s *Store) ReplaceStations(stations []state.Station) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM stations`); err != nil {
		return fmt.Errorf("clear stations: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	stmt, err := tx.Prepare(`INSERT INTO stations
		(id, nome, latitude, longitude, bikes_disponiveis, descricao, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stations: %w", err)
	}
	defer stmt.Close()
	for _, station := range stations {
		if _, err := stmt.Exec(station.ID, station.Nome,
			station.Position.Latitude, station.Position.Longitude,
			station.BikesDisponiveis, station.Descricao, now); err != nil {
			return fmt.Errorf("insert station %d: %w", station.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stations: %w", err)
	}
	return nil
}

// CachedStations returns the last persisted station list, id order.
func (s *Store) CachedStations() ([]state.Station, error) {
	rows, err := s.db.Query(`SELECT id, nome, latitude, longitude, bikes_disponiveis, descricao
		FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	var stations []state.Station
	for rows.Next() {
		var station state.Station
		if err := rows.Scan(&station.ID, &station.Nome,
			&station.Position.Latitude, &station.Position.Longitude,
			&station.BikesDisponiveis, &station.Descricao); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, station)
	}
	return stations, rows.Err()
}

// ReplaceTrips swaps the cached trip history wholesale.
func (s *Store) ReplaceTrips(trips []state.Trip) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM trips`); err != nil {
		return fmt.Errorf("clear trips: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO trips
		(id, estacao_inicio, estacao_fim, estacao_inicio_nome, estacao_fim_nome, data_inicio, data_formatada)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trips: %w", err)
	}
	defer stmt.Close()
	for _, trip := range trips {
		if _, err := stmt.Exec(trip.ID, trip.EstacaoInicio, trip.EstacaoFim,
			trip.EstacaoInicioNome, trip.EstacaoFimNome,
			trip.DataInicio, trip.DataFormatada); err != nil {
			return fmt.Errorf("insert trip %d: %w", trip.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trips: %w", err)
	}
	return nil
}

// CachedTrips returns the last persisted trip history, newest first.
func (s *Store) CachedTrips() ([]state.Trip, error) {
	rows, err := s.db.Query(`SELECT id, estacao_inicio, estacao_fim,
		estacao_inicio_nome, estacao_fim_nome, data_inicio, data_formatada
		FROM trips ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()
	var trips []state.Trip
	for rows.Next() {
		var trip state.Trip
		if err := rows.Scan(&trip.ID, &trip.EstacaoInicio, &trip.EstacaoFim,
			&trip.EstacaoInicioNome, &trip.EstacaoFimNome,
			&trip.DataInicio, &trip.DataFormatada); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}
