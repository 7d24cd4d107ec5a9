// Command gridbot-tui polls a running gridbot's status server and renders
// its grid state in a terminal dashboard. It has no write path onto the
// bot — read-only, the same as the HTTP endpoint it polls.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type statusResponse struct {
	Instruments []string `json:"instruments"`
	Lines       []string `json:"lines"`
}

type tickMsg time.Time

type statusMsg struct {
	resp statusResponse
	err  error
}

type model struct {
	addr     string
	resp     statusResponse
	err      error
	lastPoll time.Time
}

func initialModel(addr string) model {
	return model{addr: addr}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollCmd(m.addr), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		client := http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get("http://" + addr + "/status")
		if err != nil {
			return statusMsg{err: err}
		}
		defer resp.Body.Close()

		var out statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{resp: out}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(pollCmd(m.addr), tickCmd())
	case statusMsg:
		m.lastPoll = time.Now()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.resp = msg.resp
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" gridbot — %s ", m.addr)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("status fetch failed: %v", m.err)))
		b.WriteString("\n\n")
	} else if !m.lastPoll.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf("updated %s ago", time.Since(m.lastPoll).Round(time.Second))))
		b.WriteString("\n\n")
	}

	for _, line := range m.resp.Lines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("press q to quit"))
	return b.String()
}

func main() {
	addr := flag.String("addr", "localhost:8090", "gridbot status server address")
	flag.Parse()

	if _, err := tea.NewProgram(initialModel(*addr)).Run(); err != nil {
		fmt.Println("gridbot-tui:", err)
	}
}
