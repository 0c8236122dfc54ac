package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ciclogo/client/internal/geo"
	"ciclogo/client/internal/state"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// Options configures the UI Manager.
type Options struct {
	AppID    string
	AppName  string
	Logger   zerolog.Logger
	Dispatch func(state.Event) error
}

// Manager owns the Fyne windows and bridges them to the state machine.
type Manager struct {
	app             fyne.App
	appName         string
	logger          zerolog.Logger
	dispatch        func(state.Event) error
	loginWin        fyne.Window
	mainWin         fyne.Window
	loginWinVisible bool
	mainWinVisible  bool

	nomeEntry     *widget.Entry
	emailEntry    *widget.Entry
	senhaEntry    *widget.Entry
	telefoneEntry *widget.Entry
	loginStatus   *widget.Label
	loginBtn      *widget.Button
	registerBtn   *widget.Button
	authSpinner   *widget.ProgressBarInfinite

	mainStatus       *widget.Label
	countersLabel    *widget.Label
	searchEntry      *widget.Entry
	stationList      *widget.List
	stations         []state.Station
	tripList         *widget.List
	trips            []state.Trip
	profileLabel     *widget.Label
	reservationLabel *widget.Label
	rideLabel        *widget.Label
	positionLabel    *widget.Label
	reserveBtn       *widget.Button
	simulateBtn      *widget.Button
	logoutBtn        *widget.Button
	exitBtn          *widget.Button
	rideSpinner      *widget.ProgressBarInfinite

	suppressInputEvents   bool
	suppressStationSelect bool
	onStopped             func()
	updateCh              chan uiSnapshot
	stopCh                chan struct{}
	runOnce               sync.Once
	shutdownOnce          sync.Once
	wg                    sync.WaitGroup
}

// uiSnapshot carries a slice of UI state from the state machine goroutine
// into the Fyne goroutine.
type uiSnapshot struct {
	LoginVisible      bool
	MainVisible       bool
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
	Stations          []state.Station
	Counters          state.StationCounters
	Trips             []state.Trip
	User              *state.User
	Active            *state.Reservation
	ReservedStation   *state.Station
	Destination       *state.Station
	Position          *geo.Coordinate
	Elapsed           time.Duration
	Route             state.RouteMetrics
}

// NewManager creates the UI manager and builds both windows.
func NewManager(opts Options) *Manager {
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		appID = "ciclogo.client"
	}
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = "CicloGo"
	}
	fyneApp := fyneapp.NewWithID(appID)
	m := &Manager{
		app:      fyneApp,
		appName:  name,
		logger:   opts.Logger,
		dispatch: opts.Dispatch,
		updateCh: make(chan uiSnapshot, 16),
		stopCh:   make(chan struct{}),
	}
	m.buildLoginWindow()
	m.buildMainWindow()
	return m
}

// SetOnStopped registers a callback for when the Fyne loop terminates.
func (m *Manager) SetOnStopped(fn func()) {
	m.onStopped = fn
	if m.app != nil && fn != nil {
		m.app.Lifecycle().SetOnStopped(fn)
	}
}

// Start launches the snapshot-processing goroutine.
func (m *Manager) Start() {
	m.runOnce.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.processUpdates()
		}()
	})
}

// RunMainLoop blocks the calling goroutine until the Fyne loop exits.
func (m *Manager) RunMainLoop() {
	if m.app == nil {
		return
	}
	m.app.Run()
}

// Quit asks the Fyne application to exit its main loop.
func (m *Manager) Quit() {
	if m.app == nil {
		return
	}
	m.callOnUI(func() { m.app.Quit() })
}

// Shutdown stops updates and closes the Fyne application.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.callOnUI(func() {
			if m.mainWin != nil {
				m.mainWin.Close()
			}
			if m.loginWin != nil {
				m.loginWin.Close()
			}
			m.mainWinVisible = false
			m.loginWinVisible = false
			if m.app != nil {
				m.app.Quit()
			}
		})
	})
}

// WaitAsync waits for the background UI goroutines to finish.
func (m *Manager) WaitAsync(timeout time.Duration) bool {
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

// ShowLoginWindow presents the login window.
func (m *Manager) ShowLoginWindow(_ *state.AppContext) {
	m.callOnUI(func() {
		if m.mainWin != nil {
			m.mainWin.Hide()
			m.mainWinVisible = false
		}
		if m.loginWin != nil {
			wasVisible := m.loginWinVisible
			if !wasVisible {
				m.loginWin.Show()
			}
			if !wasVisible && m.emailEntry != nil {
				if canvas := m.loginWin.Canvas(); canvas != nil {
					canvas.Focus(m.emailEntry)
				}
			}
			m.loginWinVisible = true
		}
	})
}

// ShowMainWindow presents the main window.
func (m *Manager) ShowMainWindow(_ *state.AppContext) {
	m.callOnUI(func() {
		if m.loginWin != nil {
			m.loginWin.Hide()
			m.loginWinVisible = false
		}
		if m.mainWin != nil {
			m.mainWin.Show()
			m.mainWin.RequestFocus()
			m.mainWinVisible = true
		}
	})
}

// HideMainWindow hides the main window.
func (m *Manager) HideMainWindow(_ *state.AppContext) {
	m.callOnUI(func() {
		if m.mainWin != nil {
			m.mainWin.Hide()
			m.mainWinVisible = false
		}
	})
}

// UpdateUI hands a state snapshot over to the Fyne goroutine. Stale
// snapshots are dropped in favour of the newest one.
func (m *Manager) UpdateUI(ctx *state.AppContext) {
	if ctx == nil {
		return
	}
	snap := uiSnapshot{
		LoginVisible:      ctx.UI.IsLoginVisible,
		MainVisible:       ctx.UI.IsMainVisible,
		IsAuthenticating:  ctx.UI.IsAuthenticating,
		IsSimulating:      ctx.UI.IsSimulating,
		StatusText:        ctx.UI.StatusText,
		NomeInput:         ctx.UI.NomeInput,
		EmailInput:        ctx.UI.EmailInput,
		SenhaInput:        ctx.UI.SenhaInput,
		TelefoneInput:     ctx.UI.TelefoneInput,
		SearchTerm:        ctx.UI.SearchTerm,
		SelectedStationID: ctx.UI.SelectedStationID,
		CanReserve:        ctx.UI.CanReserve,
		CanSimulate:       ctx.UI.CanSimulate,
		SimulateLabel:     ctx.UI.SimulateLabel,
		Stations:          append([]state.Station(nil), ctx.Stations...),
		Counters:          ctx.Counters,
		Trips:             append([]state.Trip(nil), ctx.Trips...),
		Elapsed:           ctx.Elapsed,
		Route:             ctx.Route,
	}
	if ctx.User != nil {
		user := *ctx.User
		snap.User = &user
	}
	if ctx.Active != nil {
		active := *ctx.Active
		snap.Active = &active
	}
	if ctx.ReservedStation != nil {
		station := *ctx.ReservedStation
		snap.ReservedStation = &station
	}
	if ctx.Destination != nil {
		destination := *ctx.Destination
		snap.Destination = &destination
	}
	if ctx.Position != nil {
		position := *ctx.Position
		snap.Position = &position
	}
	select {
	case <-m.stopCh:
		return
	case m.updateCh <- snap:
	default:
		select {
		case <-m.updateCh:
		default:
		}
		m.updateCh <- snap
	}
}

// ShowModalError presents an error dialog on the active window.
func (m *Manager) ShowModalError(info *state.ErrorInfo) {
	if info == nil {
		return
	}
	m.callOnUI(func() {
		win := m.activeWindow()
		message := info.UserMessage
		if message == "" {
			message = "Ocorreu um erro"
		}
		dialog.ShowError(fmt.Errorf("%s", message), win)
		if (info.Kind == state.ErrorKindAuthFailed || info.Kind == state.ErrorKindNetworkUnavailable) && m.loginStatus != nil {
			m.loginStatus.SetText(message)
		}
	})
}

// ShowTransientNotice presents a short informational dialog.
func (m *Manager) ShowTransientNotice(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	m.callOnUI(func() {
		dialog.ShowInformation(m.appName, message, m.activeWindow())
	})
}

func (m *Manager) processUpdates() {
	for {
		select {
		case <-m.stopCh:
			return
		case snap := <-m.updateCh:
			m.applySnapshot(snap)
		}
	}
}

func (m *Manager) applySnapshot(snap uiSnapshot) {
	m.callOnUI(func() {
		m.updateLoginControls(snap)
		m.updateInputs(snap)
		if m.mainStatus != nil {
			m.mainStatus.SetText(snap.StatusText)
		}
		m.updateCounters(snap.Counters)
		m.updateStations(filterStations(snap.Stations, snap.SearchTerm), snap.SelectedStationID)
		m.updateTrips(snap.Trips)
		m.updateProfile(snap.User)
		m.updateReservation(snap)
		m.updateRidePanel(snap)
		m.updateButtons(snap)
	})
}

func (m *Manager) updateInputs(snap uiSnapshot) {
	m.suppressInputEvents = true
	setEntryText(m.nomeEntry, snap.NomeInput)
	setEntryText(m.emailEntry, snap.EmailInput)
	setEntryText(m.senhaEntry, snap.SenhaInput)
	setEntryText(m.telefoneEntry, snap.TelefoneInput)
	setEntryText(m.searchEntry, snap.SearchTerm)
	m.suppressInputEvents = false
}

func setEntryText(entry *widget.Entry, text string) {
	if entry == nil {
		return
	}
	if entry.Text != text {
		entry.SetText(text)
	}
}

func (m *Manager) updateCounters(counters state.StationCounters) {
	if m.countersLabel == nil {
		return
	}
	m.countersLabel.SetText(fmt.Sprintf("Estações: %d  •  Com bikes: %d  •  Sem bikes: %d",
		counters.Total, counters.Disponiveis, counters.Indisponiveis))
}

func (m *Manager) updateStations(list []state.Station, selectedID int) {
	m.stations = list
	if m.stationList == nil {
		return
	}
	m.stationList.Refresh()
	if selectedID == 0 {
		m.suppressStationSelect = true
		m.stationList.UnselectAll()
		m.suppressStationSelect = false
		return
	}
	if idx := findStationIndex(list, selectedID); idx >= 0 {
		m.suppressStationSelect = true
		m.stationList.Select(idx)
		m.suppressStationSelect = false
	}
}

func (m *Manager) updateTrips(list []state.Trip) {
	m.trips = list
	if m.tripList != nil {
		m.tripList.Refresh()
	}
}

func (m *Manager) updateProfile(user *state.User) {
	if m.profileLabel == nil {
		return
	}
	if user == nil {
		m.profileLabel.SetText("")
		return
	}
	m.profileLabel.SetText(fmt.Sprintf("%s  •  %d pontos  •  %.2f km  •  %s",
		user.Nome, user.Pontos, user.DistanciaKM, geo.FormatHHMM(user.Tempo)))
}

func (m *Manager) updateReservation(snap uiSnapshot) {
	if m.reservationLabel == nil {
		return
	}
	m.reservationLabel.SetText(formatReservation(snap.Active, snap.ReservedStation))
}

func (m *Manager) updateRidePanel(snap uiSnapshot) {
	if m.rideLabel != nil {
		text := ""
		if snap.Destination != nil {
			text = fmt.Sprintf("Destino: %s  •  %.2f km  •  ~%s",
				snap.Destination.Nome, snap.Route.DistanceKM, geo.FormatHHMM(snap.Route.Estimated))
		}
		m.rideLabel.SetText(text)
	}
	if m.positionLabel != nil {
		text := ""
		if snap.Position != nil {
			text = fmt.Sprintf("Posição: %.6f, %.6f  •  %s",
				snap.Position.Latitude, snap.Position.Longitude, geo.FormatClock(snap.Elapsed))
		}
		m.positionLabel.SetText(text)
	}
	if m.rideSpinner != nil {
		if snap.IsSimulating {
			m.rideSpinner.Show()
			m.rideSpinner.Start()
		} else {
			m.rideSpinner.Stop()
			m.rideSpinner.Hide()
		}
	}
}

func (m *Manager) updateButtons(snap uiSnapshot) {
	if m.reserveBtn != nil {
		if snap.MainVisible && snap.CanReserve && snap.SelectedStationID != 0 {
			m.reserveBtn.Enable()
		} else {
			m.reserveBtn.Disable()
		}
	}
	if m.simulateBtn != nil {
		label := snap.SimulateLabel
		if label == "" {
			label = "Simular rota"
		}
		if m.simulateBtn.Text != label {
			m.simulateBtn.SetText(label)
		}
		if snap.MainVisible && snap.CanSimulate && !snap.IsSimulating {
			m.simulateBtn.Enable()
		} else {
			m.simulateBtn.Disable()
		}
	}
	if m.logoutBtn != nil {
		if snap.MainVisible && !snap.IsSimulating {
			m.logoutBtn.Enable()
		} else {
			m.logoutBtn.Disable()
		}
	}
}

func (m *Manager) updateLoginControls(snap uiSnapshot) {
	if m.loginStatus != nil {
		m.loginStatus.SetText(snap.StatusText)
	}
	busy := snap.IsAuthenticating
	if m.loginBtn != nil {
		if busy {
			m.loginBtn.Disable()
		} else {
			m.loginBtn.Enable()
		}
	}
	if m.registerBtn != nil {
		if busy {
			m.registerBtn.Disable()
		} else {
			m.registerBtn.Enable()
		}
	}
	if m.authSpinner != nil {
		if busy {
			m.authSpinner.Show()
			m.authSpinner.Start()
		} else {
			m.authSpinner.Stop()
			m.authSpinner.Hide()
		}
	}
}

func (m *Manager) buildLoginWindow() {
	if m.app == nil {
		return
	}
	win := m.app.NewWindow(fmt.Sprintf("%s — Entrar", m.appName))
	win.Resize(fyne.NewSize(460, 620))
	win.CenterOnScreen()
	win.SetFixedSize(true)

	title := widget.NewLabelWithStyle(m.appName, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	subtitle := widget.NewLabel("Compartilhamento de bikes")

	m.nomeEntry = widget.NewEntry()
	m.nomeEntry.SetPlaceHolder("Nome (apenas para registo)")
	m.nomeEntry.OnChanged = func(string) { m.handleInputsEdited() }

	m.emailEntry = widget.NewEntry()
	m.emailEntry.SetPlaceHolder("Email")
	m.emailEntry.OnChanged = func(string) { m.handleInputsEdited() }
	m.emailEntry.OnSubmitted = func(string) { m.handleLoginClicked() }

	m.senhaEntry = widget.NewPasswordEntry()
	m.senhaEntry.SetPlaceHolder("Senha")
	m.senhaEntry.OnChanged = func(string) { m.handleInputsEdited() }
	m.senhaEntry.OnSubmitted = func(string) { m.handleLoginClicked() }

	m.telefoneEntry = widget.NewEntry()
	m.telefoneEntry.SetPlaceHolder("Telefone (apenas para registo)")
	m.telefoneEntry.OnChanged = func(string) { m.handleInputsEdited() }

	loginButton := widget.NewButton("Entrar", m.handleLoginClicked)
	loginButton.Importance = widget.HighImportance
	m.loginBtn = loginButton

	registerButton := widget.NewButton("Criar conta", m.handleRegisterClicked)
	m.registerBtn = registerButton

	m.loginStatus = widget.NewLabel("Informe email e senha")
	m.loginStatus.Wrapping = fyne.TextWrapWord

	m.authSpinner = widget.NewProgressBarInfinite()
	m.authSpinner.Hide()

	fields := container.NewVBox(
		widget.NewLabelWithStyle("Email", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		m.emailEntry,
		widget.NewLabelWithStyle("Senha", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		m.senhaEntry,
		widget.NewSeparator(),
		m.nomeEntry,
		m.telefoneEntry,
	)
	header := container.NewVBox(title, subtitle)
	buttons := container.NewGridWithColumns(2, loginButton, registerButton)
	form := container.NewVBox(fields, buttons, m.authSpinner, layout.NewSpacer())
	statusArea := container.NewVBox(widget.NewSeparator(), m.loginStatus)
	content := container.NewBorder(header, statusArea, nil, nil, form)
	win.SetContent(container.NewPadded(content))
	win.SetCloseIntercept(func() {
		m.sendSimpleEvent(state.EventUIExit)
	})
	win.Show()
	m.loginWin = win
}

func (m *Manager) buildMainWindow() {
	if m.app == nil {
		return
	}
	win := m.app.NewWindow(m.appName)
	win.Resize(fyne.NewSize(980, 620))
	m.mainStatus = widget.NewLabel("Sem reserva ativa")
	m.countersLabel = widget.NewLabel("")
	m.profileLabel = widget.NewLabel("")
	m.reservationLabel = widget.NewLabel("")
	m.rideLabel = widget.NewLabel("")
	m.positionLabel = widget.NewLabel("")
	m.rideSpinner = widget.NewProgressBarInfinite()
	m.rideSpinner.Hide()

	m.searchEntry = widget.NewEntry()
	m.searchEntry.SetPlaceHolder("Buscar estação...")
	m.searchEntry.OnChanged = m.handleSearchEdited

	m.stationList = widget.NewList(
		func() int { return len(m.stations) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			if id < 0 || id >= len(m.stations) {
				label.SetText("—")
				return
			}
			station := m.stations[id]
			label.SetText(fmt.Sprintf("%s — %d bikes", station.Nome, station.BikesDisponiveis))
		},
	)
	m.stationList.OnSelected = m.handleStationSelected

	m.tripList = widget.NewList(
		func() int { return len(m.trips) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			if id < 0 || id >= len(m.trips) {
				label.SetText("—")
				return
			}
			trip := m.trips[id]
			origin := trip.EstacaoInicioNome
			if origin == "" {
				origin = fmt.Sprintf("Estação %d", trip.EstacaoInicio)
			}
			destination := trip.EstacaoFimNome
			if destination == "" {
				destination = fmt.Sprintf("Estação %d", trip.EstacaoFim)
			}
			label.SetText(fmt.Sprintf("%s  %s → %s", trip.DataFormatada, origin, destination))
		},
	)

	stationsCard := widget.NewCard("Estações", "",
		container.NewBorder(m.searchEntry, nil, nil, nil, m.stationList))
	tripsCard := widget.NewCard("Minhas trajetórias", "", m.tripList)
	split := container.NewHSplit(stationsCard, tripsCard)
	split.SetOffset(0.6)

	statusBar := container.NewHBox(
		widget.NewLabel("Status:"),
		m.mainStatus,
		layout.NewSpacer(),
		m.rideSpinner,
	)
	ridePanel := container.NewVBox(m.reservationLabel, m.rideLabel, m.positionLabel)

	m.reserveBtn = widget.NewButton("Reservar bike", m.handleReserveClicked)
	m.simulateBtn = widget.NewButton("Simular rota", func() { m.sendSimpleEvent(state.EventUIClickSimulate) })
	m.logoutBtn = widget.NewButton("Sair da conta", func() { m.sendSimpleEvent(state.EventUIClickLogout) })
	m.exitBtn = widget.NewButton("Fechar", func() { m.sendSimpleEvent(state.EventUIExit) })

	controls := container.NewGridWithColumns(4, m.reserveBtn, m.simulateBtn, m.logoutBtn, m.exitBtn)
	bottom := container.NewVBox(ridePanel, controls)
	top := container.NewVBox(statusBar, container.NewHBox(m.countersLabel, layout.NewSpacer(), m.profileLabel))
	mainContent := container.NewBorder(top, bottom, nil, nil, split)
	win.SetContent(container.NewPadded(mainContent))
	win.SetCloseIntercept(func() {
		m.sendSimpleEvent(state.EventUICloseWindow)
		win.Hide()
	})
	win.Hide()
	m.mainWin = win
}

func (m *Manager) handleLoginClicked() {
	m.dispatchEvent(state.Event{Type: state.EventUIClickLogin, Payload: m.inputsPayload(), TS: time.Now()})
}

func (m *Manager) handleRegisterClicked() {
	m.dispatchEvent(state.Event{Type: state.EventUIClickRegister, Payload: m.inputsPayload(), TS: time.Now()})
}

func (m *Manager) handleInputsEdited() {
	if m.suppressInputEvents {
		return
	}
	m.dispatchEvent(state.Event{Type: state.EventUIInputsChanged, Payload: m.inputsPayload(), TS: time.Now()})
}

func (m *Manager) inputsPayload() state.InputsPayload {
	payload := state.InputsPayload{}
	if m.nomeEntry != nil {
		payload.Nome = m.nomeEntry.Text
	}
	if m.emailEntry != nil {
		payload.Email = m.emailEntry.Text
	}
	if m.senhaEntry != nil {
		payload.Senha = m.senhaEntry.Text
	}
	if m.telefoneEntry != nil {
		payload.Telefone = m.telefoneEntry.Text
	}
	return payload
}

func (m *Manager) handleSearchEdited(term string) {
	if m.suppressInputEvents {
		return
	}
	m.dispatchEvent(state.Event{Type: state.EventUISearchChanged, Payload: state.SearchPayload{Term: term}, TS: time.Now()})
}

func (m *Manager) handleStationSelected(id widget.ListItemID) {
	if m.suppressStationSelect {
		return
	}
	if id < 0 || int(id) >= len(m.stations) {
		return
	}
	station := m.stations[id]
	m.dispatchEvent(state.Event{Type: state.EventUISelectStation, Payload: state.SelectionPayload{StationID: station.ID}, TS: time.Now()})
}

func (m *Manager) handleReserveClicked() {
	m.sendSimpleEvent(state.EventUIClickReserve)
}

func (m *Manager) sendSimpleEvent(t state.EventType) {
	m.dispatchEvent(state.Event{Type: t, TS: time.Now()})
}

func (m *Manager) dispatchEvent(evt state.Event) {
	if m.dispatch == nil {
		return
	}
	if err := m.dispatch(evt); err != nil {
		m.logger.Error().Str("event", string(evt.Type)).Err(err).Msg("ui dispatch failed")
	}
}

func (m *Manager) activeWindow() fyne.Window {
	if m.loginWinVisible && m.loginWin != nil {
		return m.loginWin
	}
	if m.mainWinVisible && m.mainWin != nil {
		return m.mainWin
	}
	if m.loginWin != nil {
		return m.loginWin
	}
	return m.mainWin
}

func (m *Manager) callOnUI(fn func()) {
	if m.app == nil || fn == nil {
		return
	}
	if drv := m.app.Driver(); drv != nil {
		drv.DoFromGoroutine(fn, true)
		return
	}
	fn()
}

// formatReservation renders the active-reservation line: status, station
// name resolved by id and the reservation date.
func formatReservation(active *state.Reservation, station *state.Station) string {
	if active == nil {
		return ""
	}
	name := fmt.Sprintf("Estação %d", active.EstacaoID)
	if station != nil && station.Nome != "" {
		name = station.Nome
	}
	text := fmt.Sprintf("Reserva: %s  •  %s", active.Status, name)
	if !active.ReservadaEm.IsZero() {
		text += "  •  " + active.ReservadaEm.Format("02/01/2006 15:04")
	}
	return text
}

// filterStations narrows the list by a case-insensitive match against the
// station name or its description.
func filterStations(list []state.Station, term string) []state.Station {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return list
	}
	filtered := make([]state.Station, 0, len(list))
	for _, station := range list {
		if strings.Contains(strings.ToLower(station.Nome), term) ||
			strings.Contains(strings.ToLower(station.Descricao), term) {
			filtered = append(filtered, station)
		}
	}
	return filtered
}

func findStationIndex(list []state.Station, id int) int {
	for i, station := range list {
		if station.ID == id {
			return i
		}
	}
	return -1
}
