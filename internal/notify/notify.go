// Package notify shows short success and error notices to the user.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewTerminal writes to stdout, coloured when stdout is a terminal.
func NewTerminal() *Terminal {
	fd := os.Stdout.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return &Terminal{w: colorable.NewColorable(os.Stdout), color: color}
}

func NewWriter(w io.Writer, color bool) *Terminal {
	return &Terminal{w: w, color: color}
}

// ColorEnabled reports whether stdout can show ANSI colour.
func ColorEnabled() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Stdout returns a writer that translates ANSI sequences where needed.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

func (t *Terminal) Success(msg string) {
	t.print("\x1b[32m", "✔", msg)
}

func (t *Terminal) Error(msg string) {
	t.print("\x1b[31m", "✖", msg)
}

func (t *Terminal) print(color, mark, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.color {
		fmt.Fprintf(t.w, "%s%s %s\x1b[0m\n", color, mark, msg)
		return
	}
	fmt.Fprintf(t.w, "%s %s\n", mark, msg)
}

type Kind int

const (
	KindSuccess Kind = iota
	KindError
)

type Notice struct {
	Kind    Kind
	Message string
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Success(msg string) { r.add(KindSuccess, msg) }
func (r *Recorder) Error(msg string)   { r.add(KindError, msg) }

func (r *Recorder) add(kind Kind, msg string) {
	r.mu.Lock()
	r.notices = append(r.notices, Notice{Kind: kind, Message: msg})
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice, or the zero Notice.
func (r *Recorder) Last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}
