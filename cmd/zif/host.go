package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/colinmarc/zif/zmachine"
)

// sharedScreen is the two-window text buffer the interpreter goroutine
// writes into and the bubbletea model reads from to render a frame. It is
// the only state touched from both goroutines, so every access goes
// through mu.
type sharedScreen struct {
	mu sync.Mutex

	lowerActive bool
	lowerText   strings.Builder

	upperLines []string
	cursorX    int
	cursorY    int

	statusBar zmachine.StatusBar
}

// upperLineWidth is a fixed working width for upper-window rows, wide
// enough for any real story's status line or quote window; the model
// truncates to the actual terminal width at render time.
const upperLineWidth = 255

func newSharedScreen() *sharedScreen {
	return &sharedScreen{lowerActive: true}
}

func blankUpperLine() string { return strings.Repeat(" ", upperLineWidth) }

// refreshMsg asks the model to re-render from the shared screen state; it
// carries no payload since the state itself lives in sharedScreen.
type refreshMsg struct{}

// inputRequestMsg is sent when the interpreter blocks on aread/read_char.
// Exactly one of lineResp/charResp is non-nil depending on which Keyboard
// method is waiting.
type inputRequestMsg struct {
	maxLen   int
	lineResp chan<- []byte
	charResp chan<- uint8
}

// runDoneMsg reports that ZMachine.Run returned, with the story's own error
// (if any) so the model can render a final message before quitting.
type runDoneMsg struct{ err error }

// program is the single bubbletea program running in this process. Every
// hostAdapter sends its output/input-request messages through it; there is
// only ever one program per process, set once by main before it starts
// running.
var program *tea.Program

// hostAdapter implements zmachine.Screen, zmachine.Keyboard and
// zmachine.SaveFiler against the running bubbletea program. Screen writes
// are non-blocking (they just update shared state and nudge a repaint);
// keyboard reads block the interpreter goroutine until the UI goroutine
// answers or ctx is cancelled.
type hostAdapter struct {
	shared  *sharedScreen
	romPath string
}

func newHostAdapter(shared *sharedScreen, romPath string) *hostAdapter {
	return &hostAdapter{shared: shared, romPath: romPath}
}

func (h *hostAdapter) send(msg tea.Msg) {
	if program != nil {
		program.Send(msg)
	}
}

// Write implements zmachine.Screen. Color and style are accepted for
// interface compliance but not rendered - the terminal frontend keeps to
// the normal/reverse distinction spec.md scopes styles to, and renders it
// only on the status line, not on arbitrary story text.
func (h *hostAdapter) Write(text string, fg, bg zmachine.Color, style zmachine.TextStyle) {
	h.shared.mu.Lock()
	if h.shared.lowerActive {
		h.shared.lowerText.WriteString(text)
	} else {
		writeIntoUpperWindow(h.shared, text)
	}
	h.shared.mu.Unlock()
	h.send(refreshMsg{})
}

// writeIntoUpperWindow overwrites (not inserts) characters starting at the
// tracked cursor, matching the Z-machine's fixed-grid upper window - callers
// must already hold shared.mu.
func writeIntoUpperWindow(s *sharedScreen, text string) {
	lines := strings.Split(text, "\n")
	for i, segment := range lines {
		if s.cursorY >= 0 && s.cursorY < len(s.upperLines) {
			row := []rune(s.upperLines[s.cursorY])
			for j, r := range segment {
				col := s.cursorX + j
				if col < 0 || col >= len(row) {
					continue
				}
				row[col] = r
			}
			s.upperLines[s.cursorY] = string(row)
		}
		if i < len(lines)-1 {
			s.cursorY++
			s.cursorX = 0
		} else {
			s.cursorX += len(segment)
		}
	}
}

// ShowStatusBar implements zmachine.Screen.
func (h *hostAdapter) ShowStatusBar(bar zmachine.StatusBar) {
	h.shared.mu.Lock()
	h.shared.statusBar = bar
	h.shared.mu.Unlock()
	h.send(refreshMsg{})
}

// SetCursor implements zmachine.Screen. window 1 is the upper window; the
// lower window's cursor is not separately addressable in this model.
func (h *hostAdapter) SetCursor(window int, row, col int) {
	if window != 1 {
		return
	}
	h.shared.mu.Lock()
	h.shared.cursorY = row - 1
	h.shared.cursorX = col - 1
	h.shared.mu.Unlock()
}

// SplitWindow implements zmachine.Screen.
func (h *hostAdapter) SplitWindow(topHeight int) {
	h.shared.mu.Lock()
	if topHeight < len(h.shared.upperLines) {
		h.shared.upperLines = h.shared.upperLines[:topHeight]
	} else {
		for len(h.shared.upperLines) < topHeight {
			h.shared.upperLines = append(h.shared.upperLines, blankUpperLine())
		}
	}
	h.shared.mu.Unlock()
	h.send(refreshMsg{})
}

// SetWindow implements zmachine.Screen.
func (h *hostAdapter) SetWindow(idx int) {
	h.shared.mu.Lock()
	h.shared.lowerActive = idx == 0
	if !h.shared.lowerActive {
		h.shared.cursorX, h.shared.cursorY = 0, 0
	}
	h.shared.mu.Unlock()
}

// EraseWindow implements zmachine.Screen.
func (h *hostAdapter) EraseWindow(idx int) {
	h.shared.mu.Lock()
	switch idx {
	case 0:
		h.shared.lowerText.Reset()
	case 1:
		clearUpper(h.shared)
	case -1:
		clearUpper(h.shared)
		h.shared.upperLines = nil
		h.shared.lowerText.Reset()
	case -2:
		clearUpper(h.shared)
		h.shared.lowerText.Reset()
	}
	h.shared.mu.Unlock()
	h.send(refreshMsg{})
}

func clearUpper(s *sharedScreen) {
	for i := range s.upperLines {
		s.upperLines[i] = blankUpperLine()
	}
}

// FinishWrapping implements zmachine.Screen; rendering here always wraps to
// the current terminal width on every frame, so there is nothing to flush.
func (h *hostAdapter) FinishWrapping() {}

// BufferMode implements zmachine.Screen; buffered/unbuffered only affects
// how eagerly a real terminal flushes, which bubbletea already does once
// per frame regardless.
func (h *hostAdapter) BufferMode(on bool) {}

// ReadLine implements zmachine.Keyboard.
func (h *hostAdapter) ReadLine(ctx context.Context, prompt string, maxLen int) ([]byte, error) {
	resp := make(chan []byte, 1)
	h.send(inputRequestMsg{maxLen: maxLen, lineResp: resp})
	select {
	case line := <-resp:
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadChar implements zmachine.Keyboard.
func (h *hostAdapter) ReadChar(ctx context.Context) (uint8, error) {
	resp := make(chan uint8, 1)
	h.send(inputRequestMsg{charResp: resp})
	select {
	case c := <-resp:
		return c, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// defaultSaveFilename derives a save filename from the story's own path,
// e.g. "zork1.z3" -> "zork1.sav".
func (h *hostAdapter) defaultSaveFilename() string {
	if h.romPath == "" {
		return "story.sav"
	}
	base := filepath.Base(h.romPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".sav"
}

// Save implements zmachine.SaveFiler. Only the single default save slot is
// supported; there is no host UI for choosing a filename.
func (h *hostAdapter) Save(ctx context.Context, data []byte) error {
	return os.WriteFile(h.defaultSaveFilename(), data, 0o644)
}

// Restore implements zmachine.SaveFiler.
func (h *hostAdapter) Restore(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(h.defaultSaveFilename())
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return data, nil
}
