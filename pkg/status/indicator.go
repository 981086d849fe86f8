// Package status draws the stopwatch line at the bottom of the terminal.
package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/idle"
)

// Indicator manages the status display in the terminal
type Indicator struct {
	mu      sync.Mutex
	enabled bool
	writer  io.Writer
	now     func() time.Time

	// Sensor lifecycle phase, as reported by the supervisor
	phase string

	// Latest idle timer state
	timer idle.Snapshot

	refreshChan chan struct{}
}

// NewIndicator creates a new status indicator
func NewIndicator(writer io.Writer, enabled bool) *Indicator {
	return &Indicator{
		writer:      writer,
		enabled:     enabled,
		now:         time.Now,
		phase:       "idle",
		refreshChan: make(chan struct{}, 1),
	}
}

// SetPhase updates the sensor phase
func (i *Indicator) SetPhase(phase string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.phase = phase

	// Best effort - don't fail if we can't update the display
	_ = i.draw()
}

// Update records the latest timer snapshot
func (i *Indicator) Update(snap idle.Snapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.timer = snap
	_ = i.draw()
}

// draw renders the status indicator. Caller holds i.mu.
func (i *Indicator) draw() error {
	if !i.enabled || i.writer == nil {
		return nil
	}

	// \0337 saves the cursor, \033[r resets the scroll region, \033[999;1H
	// moves to the last line, \033[2K clears it and \0338 restores the cursor.
	sequence := fmt.Sprintf("\0337\033[r\033[999;1H\033[2K%s\0338", i.getStatusText())

	if _, err := fmt.Fprint(i.writer, sequence); err != nil {
		return err
	}

	return nil
}

// getStatusText returns the status text with color
func (i *Indicator) getStatusText() string {
	var parts []string

	switch {
	case !i.timer.Running:
		parts = append(parts, "\033[90m■\033[0m") // Gray square for stopped
	case i.isIdle():
		parts = append(parts, "\033[33mⓏ\033[0m") // Yellow Z for idle
	default:
		parts = append(parts, "\033[32m▶\033[0m") // Green play for active
	}

	parts = append(parts, FormatDuration(i.timer.Accumulated))

	switch i.phase {
	case "running":
		parts = append(parts, "\033[32m● sensor\033[0m")
	case "degraded":
		parts = append(parts, "\033[33m⚠ sensor: permission\033[0m")
	case "launching", "restarting":
		parts = append(parts, "\033[33m⟳ sensor\033[0m")
	default:
		parts = append(parts, "\033[90m○ sensor\033[0m")
	}

	return strings.Join(parts, " ")
}

func (i *Indicator) isIdle() bool {
	if i.timer.LastActivityAt.IsZero() {
		return true
	}
	return i.now().Sub(i.timer.LastActivityAt) >= i.timer.Threshold
}

// FormatDuration renders d as a stopwatch reading, HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Clear removes the status indicator
func (i *Indicator) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.enabled || i.writer == nil {
		return nil
	}

	sequence := "\0337\033[999;1H\033[2K\0338"
	if _, err := fmt.Fprint(i.writer, sequence); err != nil {
		return err
	}

	return nil
}

// Refresh requests an immediate redraw from the auto-refresh loop
func (i *Indicator) Refresh() {
	select {
	case i.refreshChan <- struct{}{}:
	default:
		// Channel is full, refresh already pending
	}
}

// StartAutoRefresh starts a goroutine that redraws the display every
// interval so the idle glyph follows the clock between events.
func (i *Indicator) StartAutoRefresh(interval time.Duration, stopChan <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				i.mu.Lock()
				_ = i.draw() // Best effort
				i.mu.Unlock()
			case <-i.refreshChan:
				i.mu.Lock()
				_ = i.draw()
				i.mu.Unlock()
			case <-stopChan:
				_ = i.Clear() // Best effort
				return
			}
		}
	}()
}
