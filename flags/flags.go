// Package flags provides support for passage CLI args
package flags

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"hop.computer/passage/common"
	"hop.computer/passage/config"
)

// ErrExcessArgs is returned when unparsed arguments remain
var ErrExcessArgs = errors.New("excess arguments provided")

// DefaultConfigPath is used when neither -C nor a positional path is given.
const DefaultConfigPath = "passage.toml"

// ListenerFlags holds CLI arguments for the passage listener.
type ListenerFlags struct {
	ConfigPath    string
	Verbose       bool   // debug logging
	Plain         bool   // line output instead of the console display
	StatusAddress string // overrides StatusAddress from the config
	RelayURL      string // overrides RelayURL from the config
}

func defineListenerFlags(fs *flag.FlagSet, f *ListenerFlags) {
	fs.StringVar(&f.ConfigPath, "C", "", "path to listener config (uses ./passage.toml when unspecified)")
	fs.BoolVar(&f.Verbose, "V", false, "display debug log messages")
	fs.BoolVar(&f.Plain, "plain", false, "print one line per request instead of the console display")
	fs.StringVar(&f.StatusAddress, "status", "", "serve the status API on this address")
	fs.StringVar(&f.RelayURL, "relay", "", "rendezvous websocket URL")
}

// ParseArgs defines and parses the flags from the command line for the
// listener. args[0] is the program name. The config path may also be given as
// the single positional argument.
func ParseArgs(args []string, output io.Writer) (*ListenerFlags, error) {
	f := new(ListenerFlags)
	fs := flag.NewFlagSet(programName(args), flag.ContinueOnError)
	fs.SetOutput(output)
	defineListenerFlags(fs, f)

	if err := fs.Parse(tail(args)); err != nil {
		return nil, err
	}
	switch {
	case fs.NArg() > 1:
		return nil, ErrExcessArgs
	case fs.NArg() == 1 && f.ConfigPath != "":
		return nil, fmt.Errorf("config path given twice: %q and %q", f.ConfigPath, fs.Arg(0))
	case fs.NArg() == 1:
		f.ConfigPath = fs.Arg(0)
	case f.ConfigPath == "":
		f.ConfigPath = DefaultConfigPath
	}
	return f, nil
}

// LoadConfigFromFlags reads the config named by f and applies the flag
// overrides. Verbose only affects the log level and is left to the caller.
func LoadConfigFromFlags(f *ListenerFlags) (*config.Config, error) {
	c, err := config.LoadFromFile(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(f, c)
	return c, nil
}

func applyOverrides(f *ListenerFlags, c *config.Config) {
	if f.StatusAddress != "" {
		c.StatusAddress = f.StatusAddress
	}
	if f.RelayURL != "" {
		c.RelayURL = f.RelayURL
	}
}

// RelaydFlags holds CLI arguments for the development rendezvous server.
type RelaydFlags struct {
	Address        string
	Keys           map[string]string // connection name -> policy key
	RequestTimeout time.Duration
	RateLimit      int // requests per minute per client address, 0 disables
	Verbose        bool
}

func defineRelaydFlags(fs *flag.FlagSet, f *RelaydFlags) {
	fs.StringVar(&f.Address, "addr", common.DefaultRendezvousAddress, "listen address")
	fs.DurationVar(&f.RequestTimeout, "timeout", 30*time.Second, "time to wait for a listener response")
	fs.IntVar(&f.RateLimit, "rate", 600, "requests per minute per client address (0 disables)")
	fs.BoolVar(&f.Verbose, "V", false, "display debug log messages")
	fs.Func("key", "require a policy key for a connection, as name=key (repeatable)", func(s string) error {
		name, key, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return fmt.Errorf("expected name=key, got %q", s)
		}
		f.Keys[name] = key
		return nil
	})
}

// ParseRelaydArgs defines and parses the flags for relayd.
func ParseRelaydArgs(args []string, output io.Writer) (*RelaydFlags, error) {
	f := &RelaydFlags{Keys: make(map[string]string)}
	fs := flag.NewFlagSet(programName(args), flag.ContinueOnError)
	fs.SetOutput(output)
	defineRelaydFlags(fs, f)

	if err := fs.Parse(tail(args)); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, ErrExcessArgs
	}
	return f, nil
}

func programName(args []string) string {
	if len(args) == 0 {
		return common.AppName
	}
	return args[0]
}

func tail(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}
