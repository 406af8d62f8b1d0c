// Package console is a terminal control surface for the bot. It stands in
// for the chat platform: typed commands become control requests, and
// playback updates are rendered as the player message.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/llehouerou/wavebot/internal/collections"
	"github.com/llehouerou/wavebot/internal/control"
	"github.com/llehouerou/wavebot/internal/errmsg"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/queue"
)

// Controller executes commands.
type Controller interface {
	Handle(ctx context.Context, req control.Request) (control.Result, error)
	Enqueue(ctx context.Context, req control.EnqueueRequest) (control.EnqueueResult, error)
	ShuffleCollection(ctx context.Context, owner, name string) error
	RestoreCollection(ctx context.Context, owner, name string) error
	Collections(ctx context.Context, owner string) ([]collections.Collection, error)
	DeleteCollection(ctx context.Context, owner, name string) error
}

// Library searches known tracks.
type Library interface {
	Search(ctx context.Context, query string, limit int) ([]library.Track, error)
}

// Idle receives channel membership changes.
type Idle interface {
	ObserveMembership(channelID string, humans int)
}

// CacheUsage reports the size of the track cache.
type CacheUsage interface {
	Usage() (files int, size int64, err error)
}

// Deps are the services the console drives.
type Deps struct {
	Controller Controller
	Library    Library
	Idle       Idle
	Cache      CacheUsage
	Events     *playback.Subscription
	Stderr     <-chan string
	Owner      string
	Channel    string
}

// Model is the bubbletea model of the console.
type Model struct {
	deps    Deps
	channel string
	input   textinput.Model

	track  *library.Track
	queue  *queue.Queue
	paused bool
	state  playback.State
	titles map[string]string

	status  string
	err     string
	results []library.Track

	width int
}

// New creates the console model.
func New(deps Deps) Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "play <id>  search <text>  next  pause  volume 80  help"
	in.Focus()

	return Model{
		deps:    deps,
		channel: deps.Channel,
		input:   in,
		titles:  make(map[string]string),
	}
}

type updateMsg playback.Update

type errorEventMsg playback.ErrorEvent

type eventsClosedMsg struct{}

type stderrMsg string

// watchEvents waits for the next playback event.
func (m Model) watchEvents() tea.Cmd {
	sub := m.deps.Events
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case u := <-sub.Updates:
			return updateMsg(u)
		case e := <-sub.Errors:
			return errorEventMsg(e)
		case <-sub.Done:
			return eventsClosedMsg{}
		}
	}
}

// watchStderr waits for the next line the audio backend wrote to stderr.
func (m Model) watchStderr() tea.Cmd {
	lines := m.deps.Stderr
	if lines == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return stderrMsg(line)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.watchEvents(), m.watchStderr())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			c, ok := parseCommand(line)
			if !ok {
				return m, nil
			}
			switch c.name {
			case "quit", "q", "exit":
				return m, tea.Quit
			case "help", "h":
				m.status, m.err = helpText, ""
				return m, nil
			}
			m.err = ""
			return m, m.run(c)
		}

	case statusMsg:
		m.status, m.err = msg.text, ""
		if msg.err != nil {
			m.status, m.err = "", msg.err.Error()
		}
		if msg.results != nil {
			m.results = msg.results
			for _, t := range msg.results {
				m.titles[t.ID] = t.Title
			}
		}
		if msg.channel != "" {
			m.channel = msg.channel
			m.track, m.queue, m.paused, m.state = nil, nil, false, playback.StateIdle
		}
		return m, nil

	case updateMsg:
		if msg.ChannelID == m.channel {
			m.track = msg.Track
			m.queue = msg.Queue
			m.paused = msg.Paused
			m.state = msg.State
			if msg.Track != nil {
				m.titles[msg.Track.ID] = msg.Track.Title
			}
		}
		return m, m.watchEvents()

	case errorEventMsg:
		if msg.ChannelID == m.channel {
			m.err = errmsg.Format(errmsg.ForPlayback(msg.Operation), msg.Err)
		}
		return m, m.watchEvents()

	case eventsClosedMsg:
		return m, nil

	case stderrMsg:
		m.status, m.err = "", "audio: "+string(msg)
		return m, m.watchStderr()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

const helpText = "play <id>... | playlist <name> <id>... | search <text> | next prev skip stop pause loop shuffle restore | " +
	"volume <0-200> | playlists | pshuffle/prestore/pdelete <name> | join <channel> | listeners <n> | cache | quit"

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wavebot") + mutedStyle.Render("  #"+m.channel) + "\n\n")
	b.WriteString(m.playerBar() + "\n")
	b.WriteString(m.queueView())

	if len(m.results) > 0 {
		b.WriteString("\n" + titleStyle.Render("Search") + "\n")
		for _, t := range m.results {
			b.WriteString(fmt.Sprintf("  %s  %s %s\n",
				mutedStyle.Render(t.ID), baseStyle.Render(trackLabel(&t)), mutedStyle.Render(formatDuration(t.Duration))))
		}
	}

	b.WriteString("\n")
	switch {
	case m.err != "":
		b.WriteString(errorStyle.Render(m.err) + "\n")
	case m.status != "":
		b.WriteString(mutedStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) playerBar() string {
	content := mutedStyle.Render(" ■  nothing playing")
	if m.track != nil {
		status := "▶"
		if m.paused {
			status = "⏸"
		}
		right := ""
		if m.track.Duration > 0 {
			right = "  " + formatDuration(m.track.Duration)
		}
		content = " " + status + "  " + playingStyle.Render(trackLabel(m.track)) + mutedStyle.Render(right)
	} else if m.state.IsBusy() {
		content = mutedStyle.Render(" …  " + strings.ToLower(m.state.String()))
	}

	if m.queue != nil {
		content += mutedStyle.Render(fmt.Sprintf("   loop %s  vol %d%%", m.queue.LoopMode, m.queue.Volume))
	}

	width := max(m.width-2, lipgloss.Width(content))
	return playerBarStyle.Width(width).Render(content)
}

func (m Model) queueView() string {
	if m.queue == nil || m.queue.IsEmpty() {
		return mutedStyle.Render("  queue is empty") + "\n"
	}

	var b strings.Builder
	for i, it := range m.queue.Items {
		marker := "  "
		style := baseStyle
		if i == m.queue.CurrentPosition {
			marker = "> "
			style = playingStyle
		}
		var label string
		switch it.Type {
		case queue.ItemCollection:
			label = fmt.Sprintf("playlist #%d  track %d", it.CollectionID, it.CurrentIndex+1)
		default:
			label = it.TrackID
			if title := m.titles[it.TrackID]; title != "" {
				label = title
			}
		}
		b.WriteString(marker + style.Render(label) + "\n")
	}
	return b.String()
}

func trackLabel(t *library.Track) string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
