package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)

	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0a84ff"))
	actionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#30d158"))
)

// Model defines the application state
type Model struct {
	mainMenu    list.Model
	toolTable   table.Model
	transcript  viewport.Model
	textInput   textinput.Model
	spinner     spinner.Model
	client      *ApiClient
	chat        *ChatSession
	scope       Scope
	lines       []string
	reply       string
	channel     string
	waiting     bool
	currentView string
	error       string
}

// item represents a list item
type item struct {
	title, desc string
}

func (i item) FilterValue() string { return i.title }
func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }

// Messages
type (
	errMsg       struct{ err error }
	connectedMsg struct{ chat *ChatSession }
	frameMsg     struct{ frame Frame }
	toolsMsg     struct {
		channel string
		tools   []Tool
	}
	historyMsg struct{ history History }
	startedMsg struct{ threadID string }
)

func initialModel(sc Scope) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := []list.Item{
		item{title: "Chat", desc: "Talk to the assistant"},
		item{title: "Tools", desc: "Tools available on this channel"},
		item{title: "New conversation", desc: "Archive the current conversation and start fresh"},
		item{title: "Exit", desc: "Exit the application"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "chefassist"

	toolTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "Tool", Width: 28},
			{Title: "Category", Width: 12},
			{Title: "Description", Width: 60},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	ti := textinput.New()
	ti.Placeholder = "Ask about your bookings..."
	ti.CharLimit = 4000
	ti.Width = 60

	return Model{
		mainMenu:    mainMenu,
		toolTable:   toolTable,
		transcript:  viewport.New(80, 16),
		textInput:   ti,
		spinner:     s,
		client:      NewApiClient(),
		scope:       sc,
		currentView: "main",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.chat != nil {
				m.chat.Close()
			}
			return m, tea.Quit
		case "esc":
			if m.currentView != "main" {
				m.currentView = "main"
				m.textInput.Blur()
				m.error = ""
			}
			return m, nil
		case "enter":
			switch m.currentView {
			case "main":
				selected, ok := m.mainMenu.SelectedItem().(item)
				if !ok {
					return m, nil
				}
				switch selected.title {
				case "Exit":
					return m, tea.Quit
				case "Chat":
					m.currentView = "chat"
					m.textInput.Focus()
					if m.chat == nil {
						return m, tea.Batch(connect(m.client), fetchHistory(m.client, m.scope))
					}
				case "Tools":
					m.currentView = "tools"
					return m, fetchTools(m.client)
				case "New conversation":
					return m, startConversation(m.client, m.scope)
				}
				return m, nil
			case "chat":
				text := strings.TrimSpace(m.textInput.Value())
				if text == "" || m.waiting || m.chat == nil {
					return m, nil
				}
				m.textInput.Reset()
				m.appendLine(userStyle.Render("you: ") + text)
				m.waiting = true
				m.reply = ""
				return m, tea.Batch(send(m.chat, text, m.scope), m.spinner.Tick)
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.mainMenu.SetSize(msg.Width-h, msg.Height-v)
		m.transcript.Width = msg.Width - h
		m.transcript.Height = msg.Height - v - 6
		m.textInput.Width = msg.Width - h - 4

	case connectedMsg:
		m.chat = msg.chat
		return m, nil

	case historyMsg:
		m.lines = nil
		for _, t := range msg.history.Turns {
			m.appendLine(renderTurn(t))
		}
		return m, nil

	case frameMsg:
		f := msg.frame
		switch f.Type {
		case "content":
			m.reply += f.Text
		case "action":
			m.flushReply()
			m.appendLine(actionStyle.Render(fmt.Sprintf("[%s] %v", f.ActionType, f.Payload)))
		case "error":
			m.flushReply()
			m.error = f.Message
		}
		if f.Terminal() {
			m.flushReply()
			m.waiting = false
			return m, nil
		}
		return m, next(m.chat)

	case toolsMsg:
		m.channel = msg.channel
		rows := make([]table.Row, 0, len(msg.tools))
		for _, t := range msg.tools {
			rows = append(rows, table.Row{t.Name, t.Category, t.Description})
		}
		m.toolTable.SetRows(rows)
		return m, nil

	case startedMsg:
		m.lines = nil
		m.transcript.SetContent("")
		m.error = ""
		return m, nil

	case errMsg:
		m.error = msg.err.Error()
		m.waiting = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.currentView {
	case "main":
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case "tools":
		m.toolTable, cmd = m.toolTable.Update(msg)
	case "chat":
		var vpCmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		m.transcript, vpCmd = m.transcript.Update(msg)
		cmd = tea.Batch(cmd, vpCmd)
	}
	return m, cmd
}

func (m *Model) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.transcript.SetContent(strings.Join(m.lines, "\n"))
	m.transcript.GotoBottom()
}

func (m *Model) flushReply() {
	if m.reply == "" {
		return
	}
	m.appendLine("assistant: " + m.reply)
	m.reply = ""
}

func renderTurn(t Turn) string {
	if t.Role == "user" {
		return userStyle.Render("you: ") + t.Content
	}
	return "assistant: " + t.Content
}

func (m Model) View() string {
	var b strings.Builder
	switch m.currentView {
	case "main":
		b.WriteString(m.mainMenu.View())
	case "tools":
		b.WriteString(titleStyle.Render("Tools on channel "+m.channel) + "\n\n")
		b.WriteString(m.toolTable.View())
		b.WriteString("\n\nesc: back")
	case "chat":
		header := "Chat"
		if m.scope.ContextType != "" {
			header += fmt.Sprintf(" (%s %s)", m.scope.ContextType, m.scope.ContextID)
		}
		b.WriteString(titleStyle.Render(header) + "\n\n")
		b.WriteString(m.transcript.View() + "\n")
		if m.waiting {
			b.WriteString(m.spinner.View() + " " + m.reply + "\n")
		}
		b.WriteString(m.textInput.View())
		b.WriteString("\n" + infoStyle.Render("enter: send  esc: back  ctrl+c: quit"))
	}
	if m.error != "" {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.error))
	}
	return docStyle.Render(b.String())
}

// Commands

func connect(c *ApiClient) tea.Cmd {
	return func() tea.Msg {
		chat, err := c.Connect()
		if err != nil {
			return errMsg{err}
		}
		return connectedMsg{chat}
	}
}

func send(chat *ChatSession, text string, sc Scope) tea.Cmd {
	return func() tea.Msg {
		if err := chat.Send(text, sc); err != nil {
			return errMsg{err}
		}
		f, err := chat.Next()
		if err != nil {
			return errMsg{err}
		}
		return frameMsg{f}
	}
}

func next(chat *ChatSession) tea.Cmd {
	return func() tea.Msg {
		f, err := chat.Next()
		if err != nil {
			return errMsg{err}
		}
		return frameMsg{f}
	}
}

func fetchTools(c *ApiClient) tea.Cmd {
	return func() tea.Msg {
		ch, tools, err := c.GetTools()
		if err != nil {
			return errMsg{err}
		}
		return toolsMsg{channel: ch, tools: tools}
	}
}

func fetchHistory(c *ApiClient, sc Scope) tea.Cmd {
	return func() tea.Msg {
		h, err := c.GetHistory(sc)
		if err != nil {
			return errMsg{err}
		}
		return historyMsg{h}
	}
}

func startConversation(c *ApiClient, sc Scope) tea.Cmd {
	return func() tea.Msg {
		id, err := c.StartConversation(sc)
		if err != nil {
			return errMsg{err}
		}
		return startedMsg{id}
	}
}

func main() {
	contextType := flag.String("context-type", "", "Scope the conversation to a booking or client")
	contextID := flag.String("context-id", "", "Id of the booking or client")
	flag.Parse()

	sc := Scope{ContextType: *contextType, ContextID: *contextID}
	m := initialModel(sc)
	if m.client.Token == "" {
		fmt.Println("CHEFASSIST_TOKEN is not set; mint one with `chefassist token --chef <id>`")
		os.Exit(1)
	}
	if err := m.client.CheckHealth(); err != nil {
		fmt.Printf("API server at %s is not available: %v\n", m.client.BaseURL, err)
		os.Exit(1)
	}

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
