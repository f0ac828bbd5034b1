// Package requestform implements the interactive access request form.
//
// The form collects a reason and an optional maximum duration for a
// fixed set of roles and resources, delegates option computation and
// request creation to a request-service boundary, and reports the
// created request id back to its host through a callback.
package requestform

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kestrelops/jitgate/internal/accessrequest"
)

// Service is the request-service boundary the form delegates to.
type Service interface {
	FetchDurationOptions(ctx context.Context, clusterID string, roles []string, resources []accessrequest.ResourceRef) ([]accessrequest.DurationOption, error)
	CreateAccessRequest(ctx context.Context, input accessrequest.CreateInput) (accessrequest.Request, error)
}

// Params fix the form's inputs for its lifetime.
type Params struct {
	ClusterID string
	Requester string
	Roles     []string
	Resources []accessrequest.ResourceRef
	Reason    string
	Service   Service

	// OnCreated is invoked exactly once with the created request id,
	// only on successful creation.
	OnCreated func(id string)
}

type loadStatus int

const (
	loadInFlight loadStatus = iota
	loadReady
	loadFailed
)

type submitStatus int

const (
	submitIdle submitStatus = iota
	submitInFlight
	submitFailed
	submitSucceeded
)

type optionsLoadedMsg struct {
	options []accessrequest.DurationOption
}

type optionsFailedMsg struct {
	err error
}

type createdMsg struct {
	request accessrequest.Request
}

type createFailedMsg struct {
	err error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8E4EC6"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the form's bubbletea model.
type Model struct {
	params  Params
	reason  textinput.Model
	spinner spinner.Model

	load      loadStatus
	submit    submitStatus
	options   []accessrequest.DurationOption
	selected  int
	submitErr string
	createdID string
	quitting  bool
}

// New builds a form for the given params. The duration options fetch
// fires from Init, once per form lifetime.
func New(params Params) Model {
	ti := textinput.New()
	ti.Placeholder = "Reason for access"
	ti.SetValue(params.Reason)
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		params:  params,
		reason:  ti,
		spinner: sp,
		load:    loadInFlight,
		submit:  submitIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.fetchOptions())
}

func (m Model) fetchOptions() tea.Cmd {
	p := m.params
	return func() tea.Msg {
		options, err := p.Service.FetchDurationOptions(context.Background(), p.ClusterID, p.Roles, p.Resources)
		if err != nil {
			return optionsFailedMsg{err: err}
		}
		return optionsLoadedMsg{options: options}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.load != loadInFlight && m.submit != submitInFlight {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case optionsLoadedMsg:
		m.load = loadReady
		m.options = msg.options
		m.selected = 0
		return m, nil

	case optionsFailedMsg:
		m.load = loadFailed
		return m, nil

	case createdMsg:
		if m.submit != submitInFlight {
			return m, nil
		}
		m.submit = submitSucceeded
		m.createdID = msg.request.ID
		m.quitting = true
		if m.params.OnCreated != nil {
			m.params.OnCreated(msg.request.ID)
		}
		return m, tea.Quit

	case createFailedMsg:
		if m.submit != submitInFlight {
			return m, nil
		}
		m.submit = submitFailed
		m.submitErr = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	if m.load == loadReady && m.submit != submitInFlight {
		var cmd tea.Cmd
		m.reason, cmd = m.reason.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEnter:
		if m.load != loadReady || m.submit == submitInFlight || m.submit == submitSucceeded {
			return m, nil
		}
		m.submit = submitInFlight
		m.submitErr = ""
		return m, tea.Batch(m.create(), m.spinner.Tick)

	case tea.KeyUp, tea.KeyDown:
		if m.load != loadReady || len(m.options) == 0 || m.submit == submitInFlight {
			return m, nil
		}
		if msg.Type == tea.KeyUp {
			m.selected = (m.selected + len(m.options) - 1) % len(m.options)
		} else {
			m.selected = (m.selected + 1) % len(m.options)
		}
		return m, nil
	}

	if m.load == loadReady && m.submit != submitInFlight {
		var cmd tea.Cmd
		m.reason, cmd = m.reason.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) create() tea.Cmd {
	input := accessrequest.CreateInput{
		ClusterID:   m.params.ClusterID,
		Requester:   m.params.Requester,
		Roles:       m.params.Roles,
		Resources:   m.params.Resources,
		Reason:      m.reason.Value(),
		Suggested:   false,
		MaxDuration: maxDurationFor(m.selectedOption()),
	}
	svc := m.params.Service
	return func() tea.Msg {
		created, err := svc.CreateAccessRequest(context.Background(), input)
		if err != nil {
			return createFailedMsg{err: err}
		}
		return createdMsg{request: created}
	}
}

// selectedOption returns the current duration selection, or the zero
// sentinel while no options have loaded.
func (m Model) selectedOption() accessrequest.DurationOption {
	if m.load != loadReady || len(m.options) == 0 {
		return accessrequest.DurationOption{ValueMS: 0, Label: ""}
	}
	return m.options[m.selected]
}

// maxDurationFor maps the zero sentinel to no expiry rather than to the
// epoch instant.
func maxDurationFor(opt accessrequest.DurationOption) *time.Time {
	if opt.ValueMS == 0 {
		return nil
	}
	t := time.UnixMilli(opt.ValueMS).UTC()
	return &t
}

// CreatedID returns the created request id, empty until creation succeeds.
func (m Model) CreatedID() string {
	return m.createdID
}

func (m Model) View() string {
	if m.quitting && m.submit == submitSucceeded {
		return ""
	}

	switch m.load {
	case loadInFlight:
		return m.spinner.View() + " Loading duration options...\n"
	case loadFailed:
		return errorStyle.Render("Failed to load duration options. Try again later.") + "\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("New access request"))
	b.WriteString("\n\n")

	if len(m.params.Resources) > 0 {
		b.WriteString(labelStyle.Render("Resources:"))
		b.WriteByte('\n')
		for _, res := range m.params.Resources {
			b.WriteString("  " + res.String() + "\n")
		}
	}
	if len(m.params.Roles) > 0 {
		b.WriteString(labelStyle.Render("Roles:"))
		b.WriteByte('\n')
		for _, role := range m.params.Roles {
			b.WriteString("  " + role + "\n")
		}
	}

	b.WriteByte('\n')
	b.WriteString(labelStyle.Render("Reason:"))
	b.WriteByte('\n')
	b.WriteString(m.reason.View())
	b.WriteByte('\n')

	if len(m.options) > 0 {
		b.WriteByte('\n')
		b.WriteString(labelStyle.Render("Maximum duration:"))
		b.WriteByte('\n')
		for i, opt := range m.options {
			label := opt.Label
			if label == "" {
				label = "No expiry"
			}
			if i == m.selected {
				b.WriteString(selectedStyle.Render("  \u25b8 " + label))
			} else {
				b.WriteString("    " + label)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	if m.submit == submitInFlight {
		b.WriteString(m.spinner.View() + " Submitting...\n")
	} else {
		b.WriteString(footerStyle.Render("Enter Submit \u2022 Up/Down Duration \u2022 Esc Cancel"))
		b.WriteByte('\n')
	}
	if m.submit == submitFailed && m.submitErr != "" {
		b.WriteString(errorStyle.Render("Error: " + m.submitErr))
		b.WriteByte('\n')
	}

	return b.String()
}
