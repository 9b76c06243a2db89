package chat

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"eventsphere/internal/models"
)

// View renders the message log. Render is called with the full sequence
// after every change.
type View interface {
	Render(messages []models.Message, selfID string)
}

const (
	colorOwn   = "\x1b[34m"
	colorOther = "\x1b[90m"
	colorBold  = "\x1b[1m"
	colorReset = "\x1b[0m"
)

// TerminalView appends new entries to w so the newest message is always the
// last line on screen. Own messages are right-aligned.
type TerminalView struct {
	w     io.Writer
	width int
	color bool

	mu       sync.Mutex
	rendered int
}

func NewTerminalView(w io.Writer, width int, color bool) *TerminalView {
	if width <= 0 {
		width = 80
	}
	return &TerminalView{w: w, width: width, color: color}
}

func (v *TerminalView) Render(messages []models.Message, selfID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(messages) < v.rendered {
		v.rendered = 0
	}
	for _, msg := range messages[v.rendered:] {
		fmt.Fprintln(v.w, v.format(msg, msg.UserID == selfID))
	}
	v.rendered = len(messages)
}

// Latest is the index of the last rendered message, or -1.
func (v *TerminalView) Latest() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rendered - 1
}

func (v *TerminalView) format(msg models.Message, own bool) string {
	stamp := msg.Timestamp.Local().Format("15:04")
	if own {
		line := fmt.Sprintf("%s · %s", msg.Message, stamp)
		if pad := v.width - len([]rune(line)); pad > 0 {
			line = strings.Repeat(" ", pad) + line
		}
		return v.paint(colorOwn, line)
	}
	name := v.paint(colorBold, msg.UserName)
	return fmt.Sprintf("%s: %s %s", name, msg.Message, v.paint(colorOther, stamp))
}

func (v *TerminalView) paint(code, s string) string {
	if !v.color {
		return s
	}
	return code + s + colorReset
}
