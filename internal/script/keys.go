package script

import "strings"

// Key sequences as sent by a typical xterm-compatible terminal.
const (
	Up        = "\x1b[A"
	Down      = "\x1b[B"
	Right     = "\x1b[C"
	Left      = "\x1b[D"
	Escape    = "\x1b"
	Enter     = "\r"
	Backspace = "\x7f"
	Tab       = "\t"
	Space     = " "
	CtrlC     = "\x03"
	CtrlD     = "\x04"
	CtrlZ     = "\x1a"
)

var keyNames = map[string]string{
	"up":        Up,
	"down":      Down,
	"right":     Right,
	"left":      Left,
	"esc":       Escape,
	"escape":    Escape,
	"enter":     Enter,
	"backspace": Backspace,
	"tab":       Tab,
	"space":     Space,
	"ctrl-c":    CtrlC,
	"ctrl-d":    CtrlD,
	"ctrl-z":    CtrlZ,
}

// LookupKey returns the sequence for a named key (case-insensitive).
func LookupKey(name string) (string, bool) {
	seq, ok := keyNames[strings.ToLower(name)]
	return seq, ok
}
