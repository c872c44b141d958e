package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hop.computer/passage/app"
	"hop.computer/passage/config"
	"hop.computer/passage/display"
	"hop.computer/passage/flags"
	"hop.computer/passage/logring"
	"hop.computer/passage/metrics"
	"hop.computer/passage/proxy"
	"hop.computer/passage/relay/wsrelay"
	"hop.computer/passage/status"
)

// redirectLogs keeps log output off the console while it is drawn.
func redirectLogs(path string) (io.Closer, error) {
	if path == "" {
		logrus.SetOutput(io.Discard)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	logrus.SetOutput(f)
	return f, nil
}

func newRuntime(c *config.Config, m *metrics.Metrics) (*app.Runtime, error) {
	opener, err := wsrelay.NewOpener(c.RelayURL)
	if err != nil {
		return nil, err
	}
	ring := logring.New(logring.Options{
		Capacity: c.MaxLogs,
		Header:   c.Header,
		Footer:   c.Footer,
	})
	return app.New(app.Options{
		Mappings: c.Mappings(),
		Opener:   opener,
		Ring:     ring,
		Metrics:  m,
		Forward: proxy.Options{
			ForceHTMLContentType: c.ForceHTMLContentType,
			Verbose:              c.Verbose,
			ExcludePaths:         c.ExcludePaths,
		},
		RetryDelay:     c.RetryDelay.Duration,
		DrainTimeout:   c.DrainTimeout.Duration,
		RequestTimeout: c.RequestTimeout.Duration,
	}), nil
}

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	f, err := flags.ParseArgs(os.Args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.Fatal(err)
	}
	c, err := flags.LoadConfigFromFlags(f)
	if err != nil {
		logrus.Fatalf("error loading config: %s", err)
	}
	if f.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if !f.Plain && display.Interactive(os.Stdout) {
		closer, err := redirectLogs(c.LogFile)
		if err != nil {
			logrus.Fatal(err)
		}
		defer closer.Close()
	}

	m := metrics.New()
	rt, err := newRuntime(c, m)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Run(gctx)
	})
	if c.StatusAddress != "" {
		g.Go(func() error {
			return status.ListenAndServe(gctx, c.StatusAddress, status.New(rt, m).Handler())
		})
	}
	g.Go(func() error {
		// Leaving the console ends the session.
		defer cancel()
		return display.Run(gctx, rt, display.Options{
			Namespace: c.Namespace,
			Plain:     f.Plain,
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logrus.SetOutput(os.Stderr)
		logrus.Fatal(err)
	}
}
