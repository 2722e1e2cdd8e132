package ui

import "github.com/gdamore/tcell/v2"

// Colors - Midnight Commander style
var (
	ColorBg        = tcell.NewRGBColor(0, 0, 128)     // Dark blue background
	ColorFg        = tcell.NewRGBColor(192, 192, 192) // Light gray text
	ColorBorder    = tcell.NewRGBColor(0, 255, 255)   // Cyan borders
	ColorTitle     = tcell.NewRGBColor(255, 255, 255) // White titles
	ColorHighlight = tcell.NewRGBColor(0, 255, 255)   // Cyan highlight
	ColorField     = tcell.NewRGBColor(0, 0, 64)      // Input field background
	ColorButton    = tcell.NewRGBColor(0, 128, 128)   // Teal buttons and status bar
)

// Color tags for chat lines
const (
	tagTimestamp = "[#808080::b]"
	tagSystem    = "[#00ffff::b]"
	tagJoin      = "[#00ff00::b]"
	tagLeave     = "[#ff5555::b]"
	tagChat      = "[#c0c0c0]"
	tagSelf      = "[#ffff00]"
	tagPrivate   = "[#ff80ff::bi]"
	tagError     = "[red::b]"
	tagReset     = "[-:-:-]"
)
