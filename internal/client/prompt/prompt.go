// Package prompt reads answers from the user: master secrets with echo
// disabled, and a choice from a list of identities or sites. On a terminal
// the choice is made in a filterable bubbletea picker; otherwise a
// numbered list is printed and one line is read.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

var (
	// ErrCancelled is returned when the user aborts a prompt.
	ErrCancelled = errors.New("prompt cancelled")
	// ErrInvalidChoice is returned for an answer that names no item.
	ErrInvalidChoice = errors.New("invalid selection")
)

// Prompter asks questions on out and reads the answers from in.
type Prompter struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

// New returns a Prompter. The picker and the no-echo secret prompt are
// used only when in and out are both terminals.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:          in,
		out:         out,
		interactive: isTerminal(in) && isTerminal(out),
	}
}

// Secret prompts for the master secret of identity. The caller owns the
// returned bytes and must zero them.
func (p *Prompter) Secret(identity string) ([]byte, error) {
	fmt.Fprintf(p.out, "Enter Master Password (%s): ", identity)
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, fmt.Errorf("reading master password: %w", err)
		}
		return pw, nil
	}
	line, err := readLine(p.in)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading master password: %w", err)
	}
	if errors.Is(err, io.EOF) && len(line) == 0 {
		return nil, ErrCancelled
	}
	pw := bytes.TrimRight(line, "\r")
	zeroTail(line, len(pw))
	return pw, nil
}

// Choose asks the user to pick one of items under title.
func (p *Prompter) Choose(title string, items []string) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%s: nothing to choose from", title)
	}
	if p.interactive {
		return p.pick(title, items)
	}
	return p.chooseLine(title, items)
}

func (p *Prompter) pick(title string, items []string) (string, error) {
	program := tea.NewProgram(NewPicker(title, items), tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("running picker: %w", err)
	}
	choice, ok := final.(Picker).Choice()
	if !ok {
		return "", ErrCancelled
	}
	return choice, nil
}

// chooseLine accepts either the item's number or its exact name.
func (p *Prompter) chooseLine(title string, items []string) (string, error) {
	fmt.Fprintln(p.out, title)
	for i, item := range items {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, item)
	}
	fmt.Fprint(p.out, "> ")

	line, err := readLine(p.in)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	answer := strings.TrimSpace(string(line))
	if answer == "" {
		return "", ErrCancelled
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(items) {
		return items[n-1], nil
	}
	for _, item := range items {
		if item == answer {
			return item, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, answer)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readLine reads one line from r without the trailing '\n'. It reads a
// byte at a time so nothing past the line is consumed and no copy of it
// stays behind in a read-ahead buffer; arrays outgrown on the way are
// zeroed. At end of input it returns what was read with io.EOF.
func readLine(r io.Reader) ([]byte, error) {
	var b [1]byte
	defer func() { b[0] = 0 }()
	line := make([]byte, 0, 64)
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return line, nil
			}
			if len(line) == cap(line) {
				grown := make([]byte, len(line), 2*cap(line))
				copy(grown, line)
				zeroTail(line[:cap(line)], 0)
				line = grown
			}
			line = append(line, b[0])
		}
		if err != nil {
			return line, err
		}
	}
}

// zeroTail wipes b past its first n bytes.
func zeroTail(b []byte, n int) {
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}
