package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	bannerRule = "=========================================="
	bannerSep  = "------------------------------------------"
)

// Console prints human-oriented run lines. A silent Console writes nowhere,
// and so does everything handed its Writer.
type Console struct {
	w      io.Writer
	silent bool
}

// NewConsole returns a Console writing to w, or a silent one if silent is set.
func NewConsole(w io.Writer, silent bool) *Console {
	if silent || w == nil {
		return &Console{w: io.Discard, silent: true}
	}
	return &Console{w: w}
}

// Writer is where external tool output should go for this console.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Silent reports whether output is suppressed.
func (c *Console) Silent() bool {
	return c.silent
}

// Println writes one line.
func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.w, a...)
}

// Printf writes a formatted line; a trailing newline is added.
func (c *Console) Printf(format string, a ...interface{}) {
	fmt.Fprintf(c.w, format+"\n", a...)
}

// Banner opens a run.
func (c *Console) Banner(now time.Time, hostname string) {
	c.Println(bannerRule)
	c.Printf("Date/Time: %s", now.Format("2006-01-02 15:04:05"))
	c.Printf("Hostname: %s", hostname)
	c.Println(bannerSep)
}

// Footer closes a run. Every run ends with it, whatever happened.
func (c *Console) Footer() {
	c.Println(bannerRule)
	c.Println("Done.")
}

// Spinner returns a spinner bound to this console. It animates only on a TTY.
func (c *Console) Spinner(message string) *Spinner {
	s := NewSpinner(message)
	s.SetWriter(c.w)
	return s
}

// FormatSize renders a byte count for humans (e.g. "4.1 kB").
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}
