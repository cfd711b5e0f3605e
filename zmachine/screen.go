package zmachine

import (
	"context"
	"fmt"
)

// TextStyle is a bitmask of set_text_style's style flags. Values match
// the Z-machine standard's own numbering (not the bit positions the
// teacher used): Normal clears every flag rather than setting one.
type TextStyle uint8

const (
	StyleNormal  TextStyle = 0
	StyleReverse TextStyle = 1
	StyleBold    TextStyle = 2
	StyleItalic  TextStyle = 4
	StyleFixed   TextStyle = 8
)

// Color is an RGB triple. ResolveColor turns colour codes 0 and 1
// ("current" and "default") into the given window's colours; every other
// code is a fixed entry in the Z-machine standard's palette.
type Color struct {
	R, G, B uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var standardPalette = map[uint16]Color{
	2:  {0, 0, 0},       // black
	3:  {255, 0, 0},     // red
	4:  {0, 255, 0},     // green
	5:  {255, 255, 0},   // yellow
	6:  {0, 0, 255},     // blue
	7:  {255, 0, 255},   // magenta
	8:  {0, 255, 255},   // cyan
	9:  {255, 255, 255}, // white
	10: {192, 192, 192}, // light grey
	11: {128, 128, 128}, // medium grey
	12: {64, 64, 64},    // dark grey
}

// ResolveColor maps a set_colour colour number to an RGB triple, handling
// the "current"/"default" sentinels against the given window's state.
func (m *ScreenModel) ResolveColor(code uint16, window int, isForeground bool) (Color, bool) {
	switch code {
	case 0: // current
		if window == 1 {
			if isForeground {
				return m.UpperForeground, true
			}
			return m.UpperBackground, true
		}
		if isForeground {
			return m.LowerForeground, true
		}
		return m.LowerBackground, true
	case 1: // default
		if window == 1 {
			if isForeground {
				return m.DefaultUpperForeground, true
			}
			return m.DefaultUpperBackground, true
		}
		if isForeground {
			return m.DefaultLowerForeground, true
		}
		return m.DefaultLowerBackground, true
	default:
		c, ok := standardPalette[code]
		return c, ok
	}
}

// Font identifies one of the Z-machine standard's built-in fonts. set_font
// only ever selects FontNormal; Picture, CharGraphics and FixedPitch are
// refused (set_font stores 0 and leaves the current font unchanged).
type Font uint16

const (
	FontNormal     Font = 1
	FontPicture    Font = 2
	FontCharGraphs Font = 3
	FontFixedPitch Font = 4
)

// ScreenModel tracks the two-window (upper status/quote window, lower
// main window) screen state. This is deliberately not a v6 screen model:
// there is no support for more than two windows or for graphics.
type ScreenModel struct {
	LowerWindowActive bool
	CurrentFont       Font
	UpperWindowHeight int

	UpperForeground, UpperBackground               Color
	DefaultUpperForeground, DefaultUpperBackground Color
	UpperCursorX, UpperCursorY                     int
	UpperTextStyle                                 TextStyle

	LowerForeground, LowerBackground               Color
	DefaultLowerForeground, DefaultLowerBackground Color
	LowerTextStyle                                 TextStyle
}

func newScreenModel(foreground, background Color) ScreenModel {
	return ScreenModel{
		LowerWindowActive:      true,
		CurrentFont:            FontNormal,
		DefaultUpperForeground: foreground,
		DefaultUpperBackground: background,
		UpperForeground:        foreground,
		UpperBackground:        background,
		UpperCursorX:           1,
		UpperCursorY:           1,
		DefaultLowerForeground: background,
		DefaultLowerBackground: foreground,
		LowerForeground:        background,
		LowerBackground:        foreground,
	}
}

// StatusBar is the v3 status-line content, refreshed before every sread.
type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

// Screen is the host's presentation surface. Rendering a terminal frame is
// cheap and non-blocking relative to reading a keypress, so unlike Keyboard
// and SaveFiler these calls take no context - only the genuinely blocking
// operations need a cancellation path.
type Screen interface {
	Write(text string, fg, bg Color, style TextStyle)
	ShowStatusBar(bar StatusBar)
	SetCursor(window int, row, col int)
	SplitWindow(topHeight int)
	SetWindow(idx int)
	EraseWindow(idx int)
	FinishWrapping()
	BufferMode(on bool)
}

// Keyboard is the host's line/character input surface. Both calls can
// block indefinitely on real terminal input, so both take a context to let
// a host cancel a pending read on shutdown.
type Keyboard interface {
	ReadLine(ctx context.Context, prompt string, maxLen int) ([]byte, error)
	ReadChar(ctx context.Context) (uint8, error)
}

// SaveFiler lets the host supply storage for explicit save/restore
// (distinct from the in-memory save_undo/restore_undo stack, which needs
// no host cooperation). Implementations receive an already-encoded
// Quetzal image from Save and must return one unmodified to Restore.
type SaveFiler interface {
	Save(ctx context.Context, data []byte) error
	Restore(ctx context.Context) ([]byte, error)
}
