package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/election"
	"github.com/adamgarcia4/goLearning/fleet/logger"
	"github.com/adamgarcia4/goLearning/fleet/registry"
	"github.com/adamgarcia4/goLearning/fleet/robot"
	"github.com/adamgarcia4/goLearning/fleet/status"
)

var (
	interactiveHTTPAddr string
	interactiveDrop     float64
	interactiveDupe     float64
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start interactive fleet manager",
	Long: `Start a terminal UI that runs a registry and a fleet of robots in this
process, sharing an in-memory bus.

Keyboard shortcuts:
  C - Create a new robot
  D - Delete a robot (shows selection menu)
  E - Request a captain election
  Q - Quit

Examples:
  fleet interactive
  fleet interactive --http-addr=:8080 --drop=0.2`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)

	interactiveCmd.Flags().StringVar(&interactiveHTTPAddr, "http-addr", "", "Also serve the HTTP status surface on this address")
	interactiveCmd.Flags().Float64Var(&interactiveDrop, "drop", 0, "Probability the bus drops a delivery")
	interactiveCmd.Flags().Float64Var(&interactiveDupe, "dupe", 0, "Probability the bus duplicates a delivery")
}

const logLines = 15

type model struct {
	reg          *registry.Registry
	bus          *bus.MemoryBus
	manager      *robot.Manager
	web          *status.Server
	robots       []*robot.Robot
	deleteMode   bool
	selected     int
	err          error
	notice       string
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input in delete mode
}

func initialModel() model {
	// Initialize logger for interactive mode (no stdout, only log buffer)
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false) // No prefix, no stdout
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	reg := registry.New(registry.DefaultOptions())
	b := bus.NewFaultyMemoryBus(bus.Faults{DropProb: interactiveDrop, DupeProb: interactiveDupe})

	m := model{
		reg:       reg,
		bus:       b,
		manager:   robot.NewManager(registry.NewLocalClient(reg), b, robot.DefaultConfig(robot.DefaultName)),
		logBuffer: logBuffer,
	}

	if interactiveHTTPAddr != "" {
		m.web = status.NewServer(interactiveHTTPAddr, reg)
		go func() {
			if err := m.web.Start(); err != nil {
				logger.Errorf("status server: %v", err)
			}
		}()
	}
	return m
}

func (m model) Init() tea.Cmd {
	// Refresh robots list periodically
	return tea.Batch(tick(), refreshRobots(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshRobots(manager *robot.Manager) tea.Cmd {
	return func() tea.Msg {
		return robotsUpdatedMsg{robots: manager.GetRobots()}
	}
}

type robotsUpdatedMsg struct {
	robots []*robot.Robot
}

type shutdownCompleteMsg struct {
	err error
}

// shutdown stops all robots and sends a message when complete
func shutdown(m model) tea.Cmd {
	return func() tea.Msg {
		err := m.manager.StopAll()
		if m.web != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			m.web.Shutdown(ctx)
		}
		m.bus.Close()
		return shutdownCompleteMsg{err: err}
	}
}

func (m model) createRobot() model {
	if _, err := m.manager.CreateRobot(context.Background()); err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.robots = m.manager.GetRobots()
	return m
}

func (m model) deleteRobot(index int) model {
	if err := m.manager.DeleteRobot(index); err != nil {
		m.err = err
		return m
	}
	m.robots = m.manager.GetRobots()
	m.deleteMode = false
	m.selected = 0
	m.err = nil
	m.lastCommand = fmt.Sprintf("delete:%d", index)
	return m
}

func (m model) requestElection() model {
	epoch, err := m.reg.RequestElection()
	if err != nil {
		m.err = fmt.Errorf("election rejected: %w", err)
		return m
	}
	m.err = nil
	m.notice = fmt.Sprintf("Election epoch %d requested", epoch)
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// Stop all robots gracefully and wait for completion
			return m, shutdown(m)
		}

		// Handle delete mode
		if m.deleteMode {
			return m.handleDeleteMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			m = m.createRobot()
			if m.err == nil {
				m.lastCommand = "create"
			}
			return m, nil

		case "d", "D":
			if len(m.robots) == 0 {
				m.err = fmt.Errorf("no robots to delete")
				return m, nil
			}
			m.deleteMode = true
			m.selected = 0
			m.numericInput = ""
			return m, nil

		case "e", "E":
			m = m.requestElection()
			m.lastCommand = "elect"
			return m, nil

		case "enter":
			// Repeat last command
			switch {
			case m.lastCommand == "create":
				m = m.createRobot()
			case m.lastCommand == "elect":
				m = m.requestElection()
			case strings.HasPrefix(m.lastCommand, "delete:"):
				index, err := strconv.Atoi(strings.TrimPrefix(m.lastCommand, "delete:"))
				if err != nil {
					return m, nil
				}
				if index >= len(m.robots) {
					m.err = fmt.Errorf("robot %d no longer exists", index+1)
					return m, nil
				}
				m = m.deleteRobot(index)
			}
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			if m.logScroll < len(m.logBuffer.GetAll())-logLines {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refreshRobots(m.manager))

	case robotsUpdatedMsg:
		m.robots = msg.robots
		return m, nil

	case shutdownCompleteMsg:
		// Log any shutdown errors via the logger
		if msg.err != nil {
			logger.Printf("Error stopping robots during shutdown: %v", msg.err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.deleteMode = false
		m.selected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.robots)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		if m.numericInput == "" {
			return m.deleteRobot(m.selected), nil
		}
		input := m.numericInput
		m.numericInput = ""
		num, err := strconv.Atoi(input)
		if err != nil {
			m.err = fmt.Errorf("invalid number: %s", input)
			return m, nil
		}
		if num < 1 || num > len(m.robots) {
			m.err = fmt.Errorf("robot %d does not exist (max: %d)", num, len(m.robots))
			return m, nil
		}
		return m.deleteRobot(num - 1), nil

	default:
		key := msg.String()
		if len(key) == 1 && key >= "0" && key <= "9" {
			m.numericInput += key
			return m, nil
		}
		m.numericInput = ""
		return m, nil
	}
}

func phaseLabel(s robot.Status) string {
	switch {
	case !s.Running:
		return "stopping"
	case s.Disconnected:
		return "disconnected"
	case s.Belief.IsCaptain:
		return "CAPTAIN"
	case s.Phase == election.Candidate:
		return "candidate"
	case s.Belief.HasCaptain:
		return fmt.Sprintf("follows %d", s.Belief.Captain)
	default:
		return "no captain"
	}
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("Robot Fleet Manager"))
	s.WriteString("\n\n")

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	} else if m.notice != "" {
		s.WriteString(m.notice + "\n\n")
	}

	captain := "None"
	if c, ok := m.reg.GetCaptain(); ok {
		captain = fmt.Sprintf("%d (%s)", c.ID, c.Name)
	}
	s.WriteString(fmt.Sprintf("Registry: %d robots | captain %s | epoch %d\n\n", m.reg.Count(), captain, m.reg.Epoch()))

	if len(m.robots) == 0 {
		s.WriteString("No robots running.\n\n")
	} else {
		s.WriteString("Robots:\n\n")
		captainStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
		for i, r := range m.robots {
			st := r.Status()
			line := fmt.Sprintf("[%d] %s (id %d) %s", i+1, r.Name(), st.Node.ID, phaseLabel(st))
			switch {
			case m.deleteMode && i == m.selected:
				selectedStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("196")).
					Bold(true)
				s.WriteString(selectedStyle.Render("> " + line))
			case st.Belief.IsCaptain:
				s.WriteString("    " + captainStyle.Render(line))
			default:
				s.WriteString("    " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")

	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	if m.deleteMode {
		help := fmt.Sprintf("DELETE MODE: ↑/↓/j/k or type robot number (1-%d), Enter to confirm, Esc to cancel", len(m.robots))
		if m.numericInput != "" {
			help = fmt.Sprintf("DELETE MODE: robot number %s, Enter to confirm, Esc to cancel", m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(help))
	} else {
		help := "C create robot | D delete robot | E elect captain"
		if m.lastCommand != "" {
			help += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		}
		help += " | ↑/↓/j/k scroll logs | Q quit"
		s.WriteString(instructionsStyle.Render(help))
	}

	return s.String()
}

// renderLogs draws the newest log entries, newest first, offset by logScroll.
func (m model) renderLogs() string {
	entries := m.logBuffer.GetAll()

	end := len(entries) - m.logScroll
	if end < 0 {
		end = 0
	}
	start := end - logLines
	if start < 0 {
		start = 0
	}

	var lines []string
	for i := end - 1; i >= start; i-- {
		age := len(entries) - 1 - i
		lines = append(lines, fmt.Sprintf("%4d | %s", age, logger.FormatLogEntry(entries[i])))
	}
	if len(lines) == 0 {
		lines = []string{"     | (no logs yet)"}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logLines - 2).
		Width(boxWidth)

	return logStyle.Render("Logs:\n" + strings.Join(lines, "\n"))
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	switch {
	case lastCommand == "create":
		return "C"
	case lastCommand == "elect":
		return "E"
	case strings.HasPrefix(lastCommand, "delete:"):
		if index, err := strconv.Atoi(strings.TrimPrefix(lastCommand, "delete:")); err == nil {
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [robot]"
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running interactive mode: %v\n", err)
	}
}
