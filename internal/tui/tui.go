// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package tui provides the terminal user interface for Vaultbridge.
// This file, tui.go, is the main entry point for the TUI, containing the
// top-level model that acts as a router to all other sub-views.
package tui // import "github.com/hakoryn/vaultbridge/internal/tui"

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/logging"
	"github.com/hakoryn/vaultbridge/internal/model"
)

// viewState represents which part of the UI is currently active.
type viewState int

const (
	// menuView is the main dashboard and navigation menu.
	menuView viewState = iota
	vaultsView
	requestsView
	auditLogView
)

// backToMenuMsg signals a sub-view wants to return to the main menu.
type backToMenuMsg struct{}

// dashboardDataMsg carries the data for the main menu dashboard.
type dashboardDataMsg struct {
	data dashboardData
}

// dashboardData holds the summary information for the main menu view.
type dashboardData struct {
	vaultCount      int
	activeCount     int
	selectedVault   string
	openRequests    int
	verifiedResults int
	rejectedResults int
	recentLogs      []model.AuditLogEntry
	err             error
}

// mainModel is the top-level model for the TUI. It acts as a state machine
// and router, delegating updates and view rendering to the currently active sub-model.
type mainModel struct {
	state     viewState
	menu      menuModel
	vaults    *vaultsModel
	requests  *requestsModel
	auditLog  *auditLogModel
	dashboard dashboardData
	width     int
	height    int
	err       error
}

// menuModel holds the state for the main menu.
type menuModel struct {
	choices []string // The menu items to show.
	cursor  int      // Which menu item our cursor is pointing at.
}

// initialModel creates the starting state of the TUI, beginning at the main menu.
func initialModel() mainModel {
	return mainModel{
		state: menuView,
		menu: menuModel{
			choices: []string{
				i18n.T("menu.manage_vaults"),
				i18n.T("menu.view_requests"),
				i18n.T("menu.view_audit_log"),
			},
		},
	}
}

// Init is the first function that will be called by the Bubble Tea runtime.
// It kicks off the initial command to load data for the dashboard.
func (m mainModel) Init() tea.Cmd {
	return refreshDashboardCmd()
}

// Update is the main message loop. It handles all events (like key presses and
// window size changes) and delegates them to the active sub-model.
func (m mainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global keybindings that work everywhere.
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case dashboardDataMsg:
		m.dashboard = msg.data
		if msg.data.err != nil {
			m.err = msg.data.err
		}
		return m, nil
	}

	// Delegate updates to the currently active view.
	switch m.state {
	case vaultsView:
		if _, ok := msg.(backToMenuMsg); ok {
			m.state = menuView
			return m, refreshDashboardCmd()
		}
		var newModel tea.Model
		newModel, cmd = m.vaults.Update(msg)
		m.vaults = newModel.(*vaultsModel)

	case requestsView:
		if _, ok := msg.(backToMenuMsg); ok {
			m.state = menuView
			return m, refreshDashboardCmd()
		}
		var newModel tea.Model
		newModel, cmd = m.requests.Update(msg)
		m.requests = newModel.(*requestsModel)

	case auditLogView:
		if _, ok := msg.(backToMenuMsg); ok {
			m.state = menuView
			return m, refreshDashboardCmd()
		}
		var newModel tea.Model
		newModel, cmd = m.auditLog.Update(msg)
		m.auditLog = newModel.(*auditLogModel)

	default: // menuView
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "q":
				return m, tea.Quit
			case "up", "k":
				if m.menu.cursor > 0 {
					m.menu.cursor--
				}
			case "down", "j":
				if m.menu.cursor < len(m.menu.choices)-1 {
					m.menu.cursor++
				}
			case "enter":
				switch m.menu.cursor {
				case 0: // Manage Vaults
					m.state = vaultsView
					m.vaults = newVaultsModel()
					var updatedModel tea.Model
					updatedModel, cmd = m.vaults.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
					m.vaults = updatedModel.(*vaultsModel)
					return m, cmd
				case 1: // View Requests
					m.state = requestsView
					m.requests = newRequestsModel()
					var updatedModel tea.Model
					updatedModel, cmd = m.requests.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
					m.requests = updatedModel.(*requestsModel)
					return m, cmd
				case 2: // View Audit Log
					m.state = auditLogView
					m.auditLog = newAuditLogModel()
					var updatedModel tea.Model
					updatedModel, cmd = m.auditLog.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
					m.auditLog = updatedModel.(*auditLogModel)
					return m, cmd
				}
			}
		}
	}

	return m, cmd
}

// View renders the currently active view.
func (m mainModel) View() string {
	switch m.state {
	case vaultsView:
		return m.vaults.View()
	case requestsView:
		return m.requests.View()
	case auditLogView:
		return m.auditLog.View()
	}
	return m.menuView()
}

// menuView renders the main menu with a dashboard pane beside it.
func (m mainModel) menuView() string {
	header := mainTitleStyle.Render("🔐 " + i18n.T("dashboard.title"))

	var menuItems []string
	menuItems = append(menuItems, titleStyle.Render(i18n.T("menu.title")), "")
	for i, choice := range m.menu.choices {
		line := "  " + choice
		if m.menu.cursor == i {
			line = "▸ " + choice
			menuItems = append(menuItems, selectedItemStyle.Render(line))
		} else {
			menuItems = append(menuItems, itemStyle.Render(line))
		}
	}
	menuContent := lipgloss.JoinVertical(lipgloss.Left, menuItems...)

	d := m.dashboard
	var dashItems []string
	dashItems = append(dashItems, titleStyle.Render(i18n.T("dashboard.summary")), "")
	dashItems = append(dashItems, fmt.Sprintf("%s: %d (%d %s)",
		i18n.T("dashboard.vaults"), d.vaultCount, d.activeCount, i18n.T("dashboard.active")))
	selected := d.selectedVault
	if selected == "" {
		selected = helpStyle.Render(i18n.T("dashboard.no_selection"))
	} else {
		selected = successStyle.Render(selected)
	}
	dashItems = append(dashItems, fmt.Sprintf("%s: %s", i18n.T("dashboard.selected"), selected))
	dashItems = append(dashItems, fmt.Sprintf("%s: %d", i18n.T("dashboard.open_requests"), d.openRequests))
	dashItems = append(dashItems, fmt.Sprintf("%s: %s / %s",
		i18n.T("dashboard.results"),
		successStyle.Render(fmt.Sprintf("%d %s", d.verifiedResults, i18n.T("dashboard.verified"))),
		specialStyle.Render(fmt.Sprintf("%d %s", d.rejectedResults, i18n.T("dashboard.rejected")))))
	dashItems = append(dashItems, "", titleStyle.Render(i18n.T("dashboard.recent_activity")))
	if len(d.recentLogs) == 0 {
		dashItems = append(dashItems, helpStyle.Render(i18n.T("dashboard.no_recent_activity")))
	} else {
		for _, entry := range d.recentLogs {
			ts := entry.Timestamp
			if len(ts) > 16 {
				ts = ts[5:16]
			}
			details := entry.Details
			if len(details) > 40 {
				details = details[:37] + "..."
			}
			dashItems = append(dashItems, lipgloss.JoinHorizontal(lipgloss.Left,
				helpStyle.Render(ts), " ", entry.Action, " ", helpStyle.Render(details)))
		}
	}
	dashContent := lipgloss.JoinVertical(lipgloss.Left, dashItems...)

	paneStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorSubtle).Padding(1, 2)
	leftPane := paneStyle.Width(34).Render(menuContent)
	rightPane := paneStyle.MarginLeft(2).Render(dashContent)
	mainArea := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	footerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Background(lipgloss.Color("236")).Padding(0, 1).Italic(true)
	footer := footerStyle.Render(i18n.T("dashboard.footer"))

	var b strings.Builder
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Top, header, mainArea, footer))
	return b.String()
}

// Run is the main entrypoint for the TUI. It initializes and runs the Bubble Tea program.
func Run() {
	if !db.IsInitialized() {
		logging.Errorf("database not initialized; run a command with --db-dsn first")
		os.Exit(1)
	}
	if _, err := tea.NewProgram(initialModel()).Run(); err != nil {
		logging.Errorf("TUI run error: %v", err)
		os.Exit(1)
	}
}

// refreshDashboardCmd is a tea.Cmd that fetches summary data for the main menu.
func refreshDashboardCmd() tea.Cmd {
	return func() tea.Msg {
		var data dashboardData

		vaults, err := db.GetAllVaults()
		if err != nil {
			return dashboardDataMsg{data: dashboardData{err: err}}
		}
		data.vaultCount = len(vaults)
		for _, v := range vaults {
			if v.IsActive {
				data.activeCount++
			}
		}

		if selected, err := db.GetSelectedVault(); err == nil && selected != nil {
			data.selectedVault = selected.String()
		}

		requests, err := db.GetAllSigningRequests()
		if err != nil {
			return dashboardDataMsg{data: dashboardData{err: err}}
		}
		for _, r := range requests {
			switch r.Status {
			case model.StatusVerified:
				data.verifiedResults++
			case model.StatusRejected:
				data.rejectedResults++
			default:
				if !r.Status.IsTerminal() {
					data.openRequests++
				}
			}
		}

		logs, err := db.GetAllAuditLogEntries()
		if err != nil {
			return dashboardDataMsg{data: dashboardData{err: err}}
		}
		if len(logs) > 5 {
			logs = logs[:5]
		}
		data.recentLogs = logs

		return dashboardDataMsg{data: data}
	}
}
