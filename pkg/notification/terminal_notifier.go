package notification

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// TerminalNotifier draws each notification as a boxed alert.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalNotifier creates a notifier writing to out.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out}
}

// Send prints the notification.
func (n *TerminalNotifier) Send(notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	accent := kindColor(notification.Kind)
	title := kindColor(notification.Kind).Add(color.Bold)
	lines := strings.Split(notification.Message, "\n")

	width := runewidth.StringWidth(notification.Title)
	for _, line := range lines {
		if w := runewidth.StringWidth(line); w > width {
			width = w
		}
	}
	rule := strings.Repeat("─", width+2)

	var b strings.Builder
	b.WriteString("\r\n")
	b.WriteString(accent.Sprint("┌" + rule + "┐"))
	b.WriteString("\r\n")
	b.WriteString(accent.Sprint("│ "))
	b.WriteString(title.Sprint(pad(notification.Title, width)))
	b.WriteString(accent.Sprint(" │"))
	b.WriteString("\r\n")
	for _, line := range lines {
		b.WriteString(accent.Sprint("│ "))
		b.WriteString(pad(line, width))
		b.WriteString(accent.Sprint(" │"))
		b.WriteString("\r\n")
	}
	b.WriteString(accent.Sprint("└" + rule + "┘"))
	b.WriteString("\r\n")

	if _, err := io.WriteString(n.out, b.String()); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

func kindColor(kind Kind) *color.Color {
	switch kind {
	case KindPermission, KindDiagnostic:
		return color.New(color.FgYellow)
	case KindConfiguration, KindAbnormalExit, KindError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

// pad fills s with spaces to width terminal columns.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
