package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"unclutter/internal/gmail"
	"unclutter/internal/model"
)

// Backend is what the UI drives. *app.App implements it.
type Backend interface {
	LoadAnalysis(ctx context.Context) (model.AnalysisResult, bool, error)
	Sync(ctx context.Context, maxResults int, progress model.ProgressFunc) (model.AnalysisResult, error)
	DeleteAllFrom(ctx context.Context, email string, progress model.ProgressFunc) (int, error)
	LatestBody(ctx context.Context, rec model.SenderRecord) (string, error)
	OpenUnsubscribe(rec model.SenderRecord) error
	Whitelist(ctx context.Context) ([]string, error)
	ToggleWhitelist(ctx context.Context, email string) (bool, error)
}

type viewState int

const (
	viewLoading viewState = iota // sync or delete in flight
	viewSenders
	viewConfirm // waiting for y/n before a delete
	viewBody
)

type AppModel struct {
	ctx        context.Context
	backend    Backend
	maxResults int
	Err        error
	status     string

	view      viewState
	result    model.AnalysisResult
	whitelist map[string]bool
	progress  model.Progress
	selected  *model.SenderRecord

	sendersList  list.Model
	bodyViewport viewport.Model
	spinner      spinner.Model

	width, height int

	// Program reference for sending progress from commands
	program *tea.Program
}

// SetProgram stores a reference to the tea.Program so long-running commands
// can report progress back to the Update loop.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
}

func NewAppModel(ctx context.Context, backend Backend, maxResults int) AppModel {
	sl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	sl.Title = "Senders"
	// Remove esc from the list's built-in Quit binding so it doesn't exit on home
	sl.KeyMap.Quit.SetKeys("q")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return AppModel{
		ctx:          ctx,
		backend:      backend,
		maxResults:   maxResults,
		view:         viewLoading,
		status:       "Loading cached analysis...",
		whitelist:    map[string]bool{},
		sendersList:  sl,
		bodyViewport: viewport.New(0, 0),
		spinner:      sp,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd(true))
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sendersList.SetSize(msg.Width, msg.Height-4) // room for footer
		m.bodyViewport.Width = msg.Width
		m.bodyViewport.Height = msg.Height - 6 // room for header + footer
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.progress = model.Progress(msg)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, tea.Quit
		}
		m.setWhitelist(msg.whitelist)
		if !msg.found {
			if msg.syncIfMissing {
				return m.startSync()
			}
			m.setResult(model.AnalysisResult{})
			return m, nil
		}
		m.setResult(msg.result)
		return m, nil

	case syncCompleteMsg:
		if msg.err != nil {
			if len(m.result.Senders) == 0 {
				m.Err = msg.err
				return m, tea.Quit
			}
			m.view = viewSenders
			m.status = "Sync failed: " + describe(msg.err)
			return m, nil
		}
		m.setResult(msg.result)
		m.status = fmt.Sprintf("Synced %d messages", msg.result.Stats.TotalMessages)
		if n := msg.result.Stats.SkippedMessages; n > 0 {
			m.status += fmt.Sprintf(" (%d skipped)", n)
		}
		return m, clearStatusAfter(3 * time.Second)

	case deleteResultMsg:
		m.view = viewSenders
		m.selected = nil
		if msg.err != nil {
			m.status = fmt.Sprintf("Delete %s failed: %s", msg.email, describe(msg.err))
			if msg.count == 0 {
				return m, nil
			}
		} else {
			m.status = fmt.Sprintf("Deleted %d messages from %s", msg.count, msg.email)
		}
		return m, tea.Batch(m.loadCmd(false), clearStatusAfter(3*time.Second))

	case whitelistToggledMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Whitelist update failed: %v", msg.err)
			return m, nil
		}
		if msg.listed {
			m.whitelist[msg.email] = true
			m.status = msg.email + " whitelisted"
		} else {
			delete(m.whitelist, msg.email)
			m.status = msg.email + " removed from whitelist"
		}
		m.refreshItems()
		return m, clearStatusAfter(2 * time.Second)

	case actionResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s complete", msg.action)
		}
		return m, clearStatusAfter(2 * time.Second)

	case bodyFetchedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Failed to load body: %s", describe(msg.err))
			return m, nil
		}
		header := ""
		if m.selected != nil {
			header = bodyHeader(*m.selected) + "\n\n"
		}
		m.bodyViewport.SetContent(header + msg.body)
		m.bodyViewport.GotoTop()
		m.view = viewBody
		m.status = ""
		return m, nil

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewSenders:
		m.sendersList, cmd = m.sendersList.Update(msg)
	case viewBody:
		m.bodyViewport, cmd = m.bodyViewport.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewLoading:
		if key == "q" {
			return m, tea.Quit
		}
		return m, nil

	case viewConfirm:
		switch key {
		case "y", "Y":
			return m.startDelete()
		case "n", "N", "esc":
			m.view = viewSenders
			m.selected = nil
			m.status = "Delete cancelled"
			return m, clearStatusAfter(2 * time.Second)
		}
		return m, nil

	case viewSenders:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.sendersList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.sendersList, cmd = m.sendersList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.previewSelected()
		case "d":
			return m.confirmDelete()
		case "w":
			return m.toggleWhitelistSelected()
		case "u":
			return m.unsubscribeSelected()
		case "s":
			return m.startSync()
		}
		var cmd tea.Cmd
		m.sendersList, cmd = m.sendersList.Update(msg)
		return m, cmd

	case viewBody:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewSenders
			m.selected = nil
			return m, nil
		case "u":
			return m.unsubscribeSelected()
		}
		var cmd tea.Cmd
		m.bodyViewport, cmd = m.bodyViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) selectedSender() (model.SenderRecord, bool) {
	if m.view == viewBody && m.selected != nil {
		return *m.selected, true
	}
	item, ok := m.sendersList.SelectedItem().(senderItem)
	if !ok {
		return model.SenderRecord{}, false
	}
	return item.SenderRecord, true
}

func (m *AppModel) startSync() (tea.Model, tea.Cmd) {
	m.view = viewLoading
	m.status = "Syncing..."
	m.progress = model.Progress{}
	return m, tea.Batch(m.spinner.Tick, m.syncCmd())
}

func (m *AppModel) previewSelected() (tea.Model, tea.Cmd) {
	rec, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	m.selected = &rec
	m.status = "Loading latest message..."
	return m, m.fetchBodyCmd(rec)
}

func (m *AppModel) confirmDelete() (tea.Model, tea.Cmd) {
	rec, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	if m.whitelist[rec.EmailAddress] {
		m.status = rec.EmailAddress + " is whitelisted; press w to remove it first"
		return m, clearStatusAfter(3 * time.Second)
	}
	m.selected = &rec
	m.view = viewConfirm
	return m, nil
}

func (m *AppModel) startDelete() (tea.Model, tea.Cmd) {
	if m.selected == nil {
		m.view = viewSenders
		return m, nil
	}
	email := m.selected.EmailAddress
	m.view = viewLoading
	m.status = "Deleting messages from " + email + "..."
	m.progress = model.Progress{}
	return m, tea.Batch(m.spinner.Tick, m.deleteCmd(email))
}

func (m *AppModel) toggleWhitelistSelected() (tea.Model, tea.Cmd) {
	rec, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	return m, m.toggleWhitelistCmd(rec.EmailAddress)
}

func (m *AppModel) unsubscribeSelected() (tea.Model, tea.Cmd) {
	rec, ok := m.selectedSender()
	if !ok {
		return m, nil
	}
	if rec.UnsubscribeLink == "" {
		m.status = "No unsubscribe link available for this sender"
		return m, clearStatusAfter(2 * time.Second)
	}

	// Open in browser (non-blocking)
	return m, func() tea.Msg {
		if err := m.backend.OpenUnsubscribe(rec); err != nil {
			return actionResultMsg{action: "Unsubscribe", err: err}
		}
		return actionResultMsg{action: "Unsubscribe (opened browser)"}
	}
}

func (m *AppModel) setResult(r model.AnalysisResult) {
	m.result = r
	m.view = viewSenders
	m.selected = nil
	m.status = ""
	m.refreshItems()
}

func (m *AppModel) setWhitelist(emails []string) {
	m.whitelist = make(map[string]bool, len(emails))
	for _, e := range emails {
		m.whitelist[e] = true
	}
}

func (m *AppModel) refreshItems() {
	m.sendersList.SetItems(sendersToItems(m.result.Senders, m.whitelist))
	m.sendersList.Title = sendersTitle(m.result)
}

// Commands

func (m *AppModel) reportProgress(p model.Progress) {
	if m.program != nil {
		m.program.Send(progressMsg(p))
	}
}

func (m *AppModel) loadCmd(syncIfMissing bool) tea.Cmd {
	return func() tea.Msg {
		res, found, err := m.backend.LoadAnalysis(m.ctx)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("load cached analysis: %w", err)}
		}
		wl, err := m.backend.Whitelist(m.ctx)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("load whitelist: %w", err)}
		}
		return loadedMsg{result: res, found: found, whitelist: wl, syncIfMissing: syncIfMissing}
	}
}

func (m *AppModel) syncCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.backend.Sync(m.ctx, m.maxResults, m.reportProgress)
		return syncCompleteMsg{result: res, err: err}
	}
}

func (m *AppModel) deleteCmd(email string) tea.Cmd {
	return func() tea.Msg {
		n, err := m.backend.DeleteAllFrom(m.ctx, email, m.reportProgress)
		return deleteResultMsg{email: email, count: n, err: err}
	}
}

func (m *AppModel) toggleWhitelistCmd(email string) tea.Cmd {
	return func() tea.Msg {
		listed, err := m.backend.ToggleWhitelist(m.ctx, email)
		return whitelistToggledMsg{email: email, listed: listed, err: err}
	}
}

func (m *AppModel) fetchBodyCmd(rec model.SenderRecord) tea.Cmd {
	return func() tea.Msg {
		body, err := m.backend.LatestBody(m.ctx, rec)
		return bodyFetchedMsg{body: body, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// describe adds a hint for errors the user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, gmail.ErrAuthRequired):
		return "not signed in, run `unclutter login`"
	case errors.Is(err, gmail.ErrPermissionDenied):
		return "permission denied, run `unclutter login --force`"
	case errors.Is(err, gmail.ErrNothingToDelete):
		return "no messages found"
	case errors.Is(err, gmail.ErrRateLimited):
		return "rate limited by Gmail, try again later"
	}
	return err.Error()
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder
	switch m.view {
	case viewLoading:
		b.WriteString(loadingView(m.spinner.View(), m.status, m.progress))
		return b.String()
	case viewSenders:
		b.WriteString(m.sendersList.View())
		b.WriteString("\n")
		b.WriteString(sendersFooter())
	case viewConfirm:
		b.WriteString(m.sendersList.View())
		b.WriteString("\n")
		if m.selected != nil {
			b.WriteString(confirmPrompt(*m.selected))
		}
	case viewBody:
		b.WriteString(m.bodyViewport.View())
		b.WriteString("\n")
		b.WriteString(bodyFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}
