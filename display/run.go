package display

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"hop.computer/passage/app"
	"hop.computer/passage/logring"
)

// Options configure Run.
type Options struct {
	Namespace string
	// Plain forces line output even on a terminal.
	Plain  bool
	Output *os.File
}

// Interactive reports whether f is a terminal that can host the console.
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Run shows rt until ctx is done or the user quits the console. Quitting the
// console returns nil; the caller decides whether that ends the process.
func Run(ctx context.Context, rt *app.Runtime, opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Plain || !Interactive(out) {
		return RunPlain(ctx, out, rt.Ring())
	}

	width, _, err := term.GetSize(int(out.Fd()))
	if err != nil {
		width = 0
	}
	m := newModel(rt, opts.Namespace, width)
	stopRing := rt.Ring().Subscribe(m.ringChanged)
	defer stopRing()
	stopConns := rt.Subscribe(m.connChanged)
	defer stopConns()

	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(out))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunPlain prints each record once it completes.
func RunPlain(ctx context.Context, w io.Writer, ring *logring.Ring) error {
	changed := make(chan *logring.Ring, 1)
	stop := ring.Subscribe(changed)
	defer stop()

	p := newPrinter(w)
	p.print(ring.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			p.print(ring.Snapshot())
		}
	}
}

type printer struct {
	w       io.Writer
	printed map[string]bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, printed: make(map[string]bool)}
}

// print writes completed records not seen before. Records without an ID are
// keyed by start time, method and path.
func (p *printer) print(s logring.Snapshot) {
	seen := make(map[string]bool, len(s.Records))
	for i := range s.Records {
		rec := &s.Records[i]
		key := rec.ID
		if key == "" {
			key = fmt.Sprintf("%s %s %s", rec.Started, rec.Method, rec.Path)
		}
		seen[key] = true
		if rec.Pending() || p.printed[key] {
			continue
		}
		p.printed[key] = true
		fmt.Fprintln(p.w, Line(rec))
	}
	for key := range p.printed {
		if !seen[key] {
			delete(p.printed, key)
		}
	}
}
