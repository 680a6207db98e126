package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ReadLine shows prompt on the real device and reads one line of input.
// The prompt is always visible, regardless of user mode. The prompt and
// the entered value are then logged file-only, so the log keeps a full
// transcript of the interaction.
func (c *Console) ReadLine(prompt string) (string, error) {
	prompt = c.showPrompt(prompt)
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	c.logTranscript(prompt, line)
	return line, nil
}

// ReadSecret is ReadLine without echo when the input is a terminal. The
// logged transcript carries a fixed placeholder instead of the value.
func (c *Console) ReadSecret(prompt string) (string, error) {
	prompt = c.showPrompt(prompt)

	var value string
	if f, ok := c.input.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		// ReadPassword suppresses the user's newline; restore it so
		// the next write starts on a fresh line. The screen device is
		// only ever written under the lock.
		c.mu.Lock()
		io.WriteString(c.out.screen, "\n")
		c.mu.Unlock()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		value = string(b)
	} else {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		value = line
	}
	c.logTranscript(prompt, "********")
	return value, nil
}

// showPrompt writes the prompt straight to the screen, leaving the
// terminal in the input colour so what the user types is tinted until the
// next write resets it.
func (c *Console) showPrompt(prompt string) string {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pal := c.palette
	if pal.Enabled {
		io.WriteString(c.out.screen, pal.Reset+pal.Prompt+prompt+pal.UserInput)
	} else {
		io.WriteString(c.out.screen, prompt)
	}
	return prompt
}

func (c *Console) readLine() (string, error) {
	line, err := c.inBuf.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// logTranscript records the prompt exchange in the log without repeating
// it on screen.
func (c *Console) logTranscript(prompt, value string) {
	restore := c.FileOnly()
	defer restore()
	fmt.Fprintf(c.out, "%s%s\n", prompt, value)
}
