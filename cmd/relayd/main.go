package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/flags"
	"hop.computer/passage/rendezvous"
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	f, err := flags.ParseRelaydArgs(os.Args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.Fatal(err)
	}
	if f.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	s := rendezvous.New(rendezvous.Options{
		Keys:           f.Keys,
		RequestTimeout: f.RequestTimeout,
		RateLimit:      f.RateLimit,
	})
	srv := &http.Server{
		Addr:              f.Address,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("relayd: listening on %s", f.Address)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logrus.Fatal(err)
	case <-ctx.Done():
	}
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("relayd: shutdown: %s", err)
	}
}
