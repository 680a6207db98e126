// Package ansi builds the escape sequences and keyword highlighting used
// by the console sinks. Sequences are derived from fatih/color attributes
// so the palette stays in step with what terminals actually support; a
// disabled palette renders every sequence as the empty string, which keeps
// the write paths free of colour conditionals.
package ansi

import (
	"strings"

	"github.com/fatih/color"
)

// Sequence returns the raw escape sequence that enables the given
// attributes, independent of whether the process is attached to a
// terminal. It returns the opening sequence only, without the reset.
func Sequence(attrs ...color.Attribute) string {
	const probe = "----"
	c := color.New(attrs...)
	c.EnableColor()
	s := c.Sprint(probe)
	if len(s) == len(probe) {
		return ""
	}
	return strings.Split(s, probe)[0]
}

// Code returns the sequence for a single SGR code, optionally with the
// bold/bright modifier. It exists for callers that want colours outside
// the predefined palette, for example in a custom highlight map.
func Code(n int, bright bool) string {
	if bright {
		return Sequence(color.Attribute(n), color.Bold)
	}
	return Sequence(color.Attribute(n))
}

// Palette carries every sequence the sinks and prompt helpers need. With
// Enabled false all sequences except ErrPrefix are empty strings, so that
// formatting code can concatenate them unconditionally.
type Palette struct {
	Enabled bool

	Reset     string // back to terminal defaults
	Prompt    string // prompt text
	UserInput string // echoed interactive input
	Disabled  string // suppressed or de-emphasised text
	Error     string
	Warn      string
	Stat      string
	Dull      string // default colour of background output
	User      string // user-directed output
	Highlight string
	Lowlight  string

	// ErrPrefix is injected after every newline inside an error block.
	// The leading '+' survives with colour disabled so error lines stay
	// easy to grep in log files.
	ErrPrefix string
	// ErrHeader styles the delimiter and timestamp lines that open an
	// error block.
	ErrHeader string
}

// NewPalette builds the palette. With enabled false every sequence is
// empty except the plain-text error prefix.
func NewPalette(enabled bool) *Palette {
	if !enabled {
		return &Palette{ErrPrefix: "+    "}
	}
	p := &Palette{
		Enabled:   true,
		Reset:     Sequence(color.Reset),
		Prompt:    Sequence(color.FgCyan),
		UserInput: Sequence(color.FgCyan, color.Bold),
		Disabled:  Sequence(color.FgBlack, color.Bold),
		Error:     Sequence(color.FgRed, color.Bold),
		Warn:      Sequence(color.FgYellow, color.Bold),
		Stat:      Sequence(color.FgWhite),
		Dull:      Sequence(color.FgGreen),
		User:      Sequence(color.FgGreen, color.Bold),
		Highlight: Sequence(color.FgMagenta, color.Bold),
		Lowlight:  Sequence(color.FgBlack, color.Bold),
	}
	block := Sequence(color.BgRed, color.FgBlack)
	p.ErrPrefix = p.Reset + block + "+" + p.Reset + "    " + p.Error
	p.ErrHeader = block
	return p
}

// Named resolves a colour name from a config file to its sequence. The
// empty string and unknown names report ok=false so callers can fall back
// to a default.
func (p *Palette) Named(name string) (seq string, ok bool) {
	switch strings.ToLower(name) {
	case "prompt":
		return p.Prompt, true
	case "input":
		return p.UserInput, true
	case "disabled":
		return p.Disabled, true
	case "error":
		return p.Error, true
	case "warn":
		return p.Warn, true
	case "stat":
		return p.Stat, true
	case "dull":
		return p.Dull, true
	case "user":
		return p.User, true
	case "highlight":
		return p.Highlight, true
	case "lowlight":
		return p.Lowlight, true
	}
	return "", false
}
