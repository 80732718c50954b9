// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/model"
)

// vaultsModel lists the registered vaults and lets the operator pick the
// selected one or toggle a vault without leaving the TUI.
type vaultsModel struct {
	table      table.Model
	vaults     []model.VaultProfile
	selectedID int // currently selected vault, 0 if none
	status     string
	err        error
}

func newVaultsModel() *vaultsModel {
	m := &vaultsModel{}
	m.reload()

	columns := []table.Column{
		{Title: i18n.T("vaults.header.id"), Width: 4},
		{Title: i18n.T("vaults.header.label"), Width: 20},
		{Title: i18n.T("vaults.header.vendor"), Width: 10},
		{Title: i18n.T("vaults.header.algorithm"), Width: 10},
		{Title: i18n.T("vaults.header.priority"), Width: 8},
		{Title: i18n.T("vaults.header.status"), Width: 12},
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

// reload refreshes the vault list and selection from the database.
func (m *vaultsModel) reload() {
	vaults, err := db.GetAllVaults()
	if err != nil {
		m.err = err
		return
	}
	m.vaults = vaults
	m.selectedID = 0
	if selected, err := db.GetSelectedVault(); err == nil && selected != nil {
		m.selectedID = selected.ID
	}
}

func (m *vaultsModel) rebuildTableRows() {
	var rows []table.Row
	for _, v := range m.vaults {
		status := successStyle.Render(i18n.T("vault.status_active"))
		if !v.IsActive {
			status = helpStyle.Render(i18n.T("vault.status_disabled"))
		}
		label := v.Label
		if v.ID == m.selectedID {
			label = "* " + label
		}
		rows = append(rows, table.Row{
			strconv.Itoa(v.ID), label, string(v.Vendor), string(v.Algorithm),
			strconv.Itoa(v.Priority), status,
		})
	}
	m.table.SetRows(rows)
}

// cursorVault returns the vault under the table cursor, or nil.
func (m *vaultsModel) cursorVault() *model.VaultProfile {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.vaults) {
		return nil
	}
	return &m.vaults[idx]
}

func (m *vaultsModel) Init() tea.Cmd { return nil }

func (m *vaultsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 8)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			return m, func() tea.Msg { return backToMenuMsg{} }
		case "enter":
			if v := m.cursorVault(); v != nil {
				if !v.IsActive {
					m.status = errorStyle.Render(i18n.T("vaults.cannot_select_disabled", v.Label))
					return m, nil
				}
				if err := db.SetSelectedVault(v.ID); err != nil {
					m.err = err
					return m, nil
				}
				m.status = successStyle.Render(i18n.T("vaults.selected", v.String()))
				m.reload()
				m.rebuildTableRows()
			}
			return m, nil
		case "t":
			if v := m.cursorVault(); v != nil {
				if err := db.ToggleVaultStatus(v.ID); err != nil {
					m.err = err
					return m, nil
				}
				m.status = i18n.T("vaults.toggled", v.Label)
				m.reload()
				m.rebuildTableRows()
			}
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *vaultsModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("🗝  "+i18n.T("vaults.title")) + "\n\n")

	if len(m.vaults) == 0 {
		b.WriteString(helpStyle.Render(i18n.T("vault.none_registered")))
	} else {
		b.WriteString(m.table.View())
	}
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	b.WriteString(helpStyle.Render("\n" + i18n.T("vaults.help")))
	return b.String()
}
