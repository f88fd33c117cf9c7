package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// Spinner shows that a long step is still working. On a TTY it animates in
// place; anywhere else it prints its message once.
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	message string
	frames  []string
	budget  time.Duration
	started time.Time
	running bool
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSpinner returns a stopped spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		w:       os.Stdout,
		message: message,
		frames:  []string{"|", "/", "-", "\\"},
		done:    make(chan struct{}),
	}
}

// WithTimeout makes the animated line count down from budget. Call it
// before Start.
func (s *Spinner) WithTimeout(budget time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = budget
	return s
}

// SetWriter redirects the spinner.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Start begins the animation. Starting twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.w) {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go s.animate(s.ticker, s.done)
}

func (s *Spinner) animate(ticker *time.Ticker, done <-chan struct{}) {
	frame := 0
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			fmt.Fprintf(s.w, "\r%s  %s", s.frames[frame], s.line())
			frame = (frame + 1) % len(s.frames)
			s.mu.Unlock()
		case <-done:
			return
		}
	}
}

// line renders the message with the time left in the budget, or the time
// spent so far when there is no budget. The caller holds mu.
func (s *Spinner) line() string {
	elapsed := time.Since(s.started)
	if s.budget <= 0 {
		return fmt.Sprintf("%s (%ds elapsed)", s.message, int(elapsed.Seconds()))
	}
	left := s.budget - elapsed
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("%s (%ds remaining)", s.message, int(left.Seconds()))
}

// Stop ends the animation and clears the line on a TTY.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.w) {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.line())+4))
	}
}

// StopWithMessage stops the spinner and prints message in its place.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, message)
}
