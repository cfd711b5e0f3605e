package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

// storyFile is one entry in the local-disk story picker - a Z-code binary
// found by scanning a directory for .z3/.z5/.z7/.z8 extensions.
type storyFile struct {
	name string
	path string
}

func (s storyFile) Title() string       { return s.name }
func (s storyFile) Description() string { return s.path }
func (s storyFile) FilterValue() string { return s.name }

// scanStories lists playable story files under dir, sorted by name. Only
// versions this engine supports (3, 5, 7, 8) are listed; anything else
// (v1/2/4/6) is silently skipped rather than offered and then failing to
// load.
func scanStories(dir string) ([]storyFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var supported = map[string]bool{".z3": true, ".z5": true, ".z7": true, ".z8": true}
	var stories []storyFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !supported[ext] {
			continue
		}
		stories = append(stories, storyFile{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(stories, func(i, j int) bool { return stories[i].name < stories[j].name })
	return stories, nil
}

type pickerState int

const (
	pickerScanning pickerState = iota
	pickerChoosing
	pickerLaunching
)

// pickerModel is the story-file picker shown when zif starts without a
// -story flag: it scans the current directory, lets the user pick one with
// a filterable list, then hands off to a fresh runModel for that story.
type pickerModel struct {
	dir     string
	state   pickerState
	list    list.Model
	spinner spinner.Model
	err     error
}

type storiesScannedMsg []list.Item
type scanFailedMsg error

func newPickerModel(dir string) pickerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Choose a story"

	return pickerModel{dir: dir, state: pickerScanning, list: l, spinner: sp}
}

func scanCmd(dir string) tea.Cmd {
	return func() tea.Msg {
		stories, err := scanStories(dir)
		if err != nil {
			return scanFailedMsg(err)
		}
		items := make([]list.Item, len(stories))
		for i, s := range stories {
			items[i] = s
		}
		return storiesScannedMsg(items)
	}
}

func (m pickerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scanCmd(m.dir))
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
		return m, nil

	case storiesScannedMsg:
		m.state = pickerChoosing
		return m, m.list.SetItems([]list.Item(msg))

	case scanFailedMsg:
		m.err = msg
		return m, tea.Quit

	case spinner.TickMsg:
		if m.state == pickerScanning {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.state == pickerChoosing && msg.String() == "enter" {
			selected, ok := m.list.SelectedItem().(storyFile)
			if !ok {
				return m, nil
			}
			return m, launchStoryCmd(selected.path)
		}
	}

	if m.state == pickerChoosing {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m pickerModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("zif: %v\n", m.err))
	}
	if m.state == pickerScanning {
		return docStyle.Render(fmt.Sprintf("%s scanning %s for stories...", m.spinner.View(), m.dir))
	}
	return docStyle.Render(m.list.View())
}

// launchStoryMsg swaps the running tea.Model from the picker to a fresh
// runModel once a story file is chosen.
type launchStoryMsg struct {
	model tea.Model
	cmd   tea.Cmd
}

func launchStoryCmd(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return scanFailedMsg(err)
		}
		model, cmd := buildRunModel(data, path)
		return launchStoryMsg{model: model, cmd: cmd}
	}
}

// rootModel forwards to whichever of pickerModel/runModel is currently
// active, switching over on launchStoryMsg.
type rootModel struct {
	current  tea.Model
	startCmd tea.Cmd // non-nil only when launched directly via -story
}

func (m rootModel) Init() tea.Cmd {
	return tea.Batch(m.current.Init(), m.startCmd)
}

func (m rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if launch, ok := msg.(launchStoryMsg); ok {
		m.current = launch.model
		return m, tea.Batch(m.current.Init(), launch.cmd)
	}
	next, cmd := m.current.Update(msg)
	m.current = next
	return m, cmd
}

func (m rootModel) View() string { return m.current.View() }
