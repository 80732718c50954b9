// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/model"
)

// requestsModel lists signing requests with their lifecycle status.
type requestsModel struct {
	table       table.Model
	allRequests []model.SigningRequest // Master list of all requests
	filter      string
	isFiltering bool
	err         error
}

func newRequestsModel() *requestsModel {
	m := &requestsModel{}
	requests, err := db.GetAllSigningRequests()
	if err != nil {
		m.err = err
		return m
	}
	m.allRequests = requests

	columns := []table.Column{
		{Title: i18n.T("requests.header.id"), Width: 36},
		{Title: i18n.T("requests.header.vault"), Width: 6},
		{Title: i18n.T("requests.header.algorithm"), Width: 10},
		{Title: i18n.T("requests.header.status"), Width: 12},
		{Title: i18n.T("requests.header.created"), Width: 20},
		{Title: i18n.T("requests.header.expires"), Width: 20},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(colorWhite).
		Background(colorHighlight).
		Bold(false)
	t.SetStyles(s)

	m.table = t
	m.rebuildTableRows()
	return m
}

// rebuildTableRows filters the master list of requests and populates the table.
func (m *requestsModel) rebuildTableRows() {
	var rows []table.Row
	lowerFilter := strings.ToLower(m.filter)

	for _, r := range m.allRequests {
		if m.filter != "" &&
			!strings.Contains(strings.ToLower(r.ID), lowerFilter) &&
			!strings.Contains(strings.ToLower(string(r.Status)), lowerFilter) &&
			!strings.Contains(strings.ToLower(r.Note), lowerFilter) {
			continue
		}

		statusCell := statusStyle(string(r.Status)).Render(string(r.Status))
		rows = append(rows, table.Row{
			r.ID,
			strconv.Itoa(r.VaultID),
			string(r.Algorithm),
			statusCell,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			r.ExpiresAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	m.table.SetRows(rows)

	if m.isFiltering {
		m.table.GotoTop()
	}
}

func (m *requestsModel) Init() tea.Cmd { return nil }

func (m *requestsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 8)
		m.table.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		if m.isFiltering {
			switch msg.Type {
			case tea.KeyEsc:
				m.isFiltering = false
				m.filter = ""
				m.rebuildTableRows()
			case tea.KeyEnter:
				m.isFiltering = false
			case tea.KeyBackspace:
				if len(m.filter) > 0 {
					m.filter = m.filter[:len(m.filter)-1]
					m.rebuildTableRows()
				}
			case tea.KeyRunes:
				m.filter += string(msg.Runes)
				m.rebuildTableRows()
			}
			return m, nil
		}

		switch msg.String() {
		case "/":
			m.isFiltering = true
			m.filter = ""
			m.rebuildTableRows()
			return m, nil
		case "e":
			// Sweep expired requests right from the list.
			if _, err := db.ExpireStaleRequests(time.Now().UTC()); err != nil {
				m.err = err
				return m, nil
			}
			if requests, err := db.GetAllSigningRequests(); err == nil {
				m.allRequests = requests
			}
			m.rebuildTableRows()
			return m, nil
		case "q", "esc":
			if m.filter != "" {
				m.filter = ""
				m.isFiltering = false
				m.rebuildTableRows()
				return m, nil
			}
			return m, func() tea.Msg { return backToMenuMsg{} }
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *requestsModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error loading requests: %v", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("📨 "+i18n.T("requests.title")) + "\n\n")

	if len(m.table.Rows()) == 0 {
		b.WriteString(helpStyle.Render(i18n.T("requests.none")))
		b.WriteString(m.footerView())
		return b.String()
	}

	b.WriteString(m.table.View())
	b.WriteString(m.footerView())
	return b.String()
}

func (m *requestsModel) footerView() string {
	var filterStatus string
	if m.isFiltering {
		filterStatus = fmt.Sprintf("Filter: %s█", m.filter)
	} else if m.filter != "" {
		filterStatus = fmt.Sprintf("Filter: %s (press 'esc' to clear)", m.filter)
	} else {
		filterStatus = "Press / to filter..."
	}
	return helpStyle.Render(fmt.Sprintf("\n(↑/↓ to scroll, e: expire stale, q to quit) %s", filterStatus))
}
