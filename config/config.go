// Package config contains structures for parsing passage listener
// configurations.
package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/pkg/combinators"
	"hop.computer/passage/pkg/thunks"
)

// ErrNoConnections is returned when a configuration defines no connections.
var ErrNoConnections = errors.New("no connections configured")

// Config represents a parsed listener configuration.
type Config struct {
	Namespace string `toml:"Namespace" yaml:"Namespace"`
	RelayURL  string `toml:"RelayURL" yaml:"RelayURL"`

	// MaxLogs is the number of transactions kept for display. MessageRows
	// is accepted as an older name for it.
	MaxLogs     int `toml:"MaxLogs" yaml:"MaxLogs"`
	MessageRows int `toml:"MessageRows" yaml:"MessageRows"`

	Verbose              bool     `toml:"Verbose" yaml:"Verbose"`
	RetryDelay           Duration `toml:"RetryDelay" yaml:"RetryDelay"`
	DrainTimeout         Duration `toml:"DrainTimeout" yaml:"DrainTimeout"`
	RequestTimeout       Duration `toml:"RequestTimeout" yaml:"RequestTimeout"`
	StatusAddress        string   `toml:"StatusAddress" yaml:"StatusAddress"`
	ForceHTMLContentType bool     `toml:"ForceHTMLContentType" yaml:"ForceHTMLContentType"`
	ExcludePaths         []string `toml:"ExcludePaths" yaml:"ExcludePaths"`
	Header               []string `toml:"Header" yaml:"Header"`
	Footer               []string `toml:"Footer" yaml:"Footer"`
	LogFile              string   `toml:"LogFile" yaml:"LogFile"`

	Connections []ConnectionConfig `toml:"Connections" yaml:"Connections"`
}

// ConnectionConfig is one [[Connections]] block.
type ConnectionConfig struct {
	HybridConnection string `toml:"HybridConnection" yaml:"HybridConnection"`
	PolicyName       string `toml:"PolicyName" yaml:"PolicyName"`
	PolicyKey        string `toml:"PolicyKey" yaml:"PolicyKey"`
	ConnectionString string `toml:"ConnectionString" yaml:"ConnectionString"`
	TargetHTTP       string `toml:"TargetHttp" yaml:"TargetHttp"`
	TargetScheme     string `toml:"TargetScheme" yaml:"TargetScheme"`
	TargetHost       string `toml:"TargetHost" yaml:"TargetHost"`
	TargetPort       string `toml:"TargetPort" yaml:"TargetPort"`
	TargetQuery      string `toml:"TargetQuery" yaml:"TargetQuery"`
	Subpath          string `toml:"Subpath" yaml:"Subpath"`
}

// LoadFromFile reads the configuration at path. Files ending in .yaml or .yml
// are parsed as YAML, everything else as TOML. Environment overrides and
// defaults are applied.
func LoadFromFile(path string) (*Config, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(b, &c)
	default:
		err = decodeTOML(b, &c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &c, nil
}

func decodeTOML(b []byte, c *Config) error {
	md, err := toml.NewDecoder(bytes.NewReader(b)).Decode(c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown settings: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(b []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(c)
}

func (c *Config) applyEnv() error {
	if v, ok := thunks.LookupEnv(common.EnvMaxLogs); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", common.EnvMaxLogs)
		}
		c.MaxLogs = n
	}
	if v, ok := thunks.LookupEnv(common.EnvVerbose); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", common.EnvVerbose)
		}
		c.Verbose = b
	}
	if v, ok := thunks.LookupEnv(common.EnvRelayURL); ok && v != "" {
		c.RelayURL = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxLogs == 0 {
		c.MaxLogs = combinators.Or(c.MessageRows, common.DefaultMaxLogs)
	}
	c.RelayURL = combinators.StringOr(c.RelayURL, common.DefaultRelayURL)
	c.RetryDelay.Duration = combinators.Or(c.RetryDelay.Duration, common.DefaultRetryDelay)
	c.DrainTimeout.Duration = combinators.Or(c.DrainTimeout.Duration, common.DefaultDrainTimeout)
	c.RequestTimeout.Duration = combinators.Or(c.RequestTimeout.Duration, common.DefaultRequestTimeout)
}

func (c *Config) validate() error {
	if c.MaxLogs < 0 {
		return fmt.Errorf("MaxLogs must not be negative, got %d", c.MaxLogs)
	}
	if len(c.Connections) == 0 {
		return ErrNoConnections
	}
	return nil
}

// Mappings converts the connection blocks into connection mappings. A block
// whose connection string cannot be parsed is still returned, carrying the
// parse error so that Validate rejects it.
func (c *Config) Mappings() []core.ConnectionMapping {
	out := make([]core.ConnectionMapping, 0, len(c.Connections))
	for _, cc := range c.Connections {
		m := core.ConnectionMapping{
			Name:         cc.HybridConnection,
			PolicyName:   cc.PolicyName,
			PolicyKey:    cc.PolicyKey,
			TargetHTTP:   cc.TargetHTTP,
			TargetScheme: cc.TargetScheme,
			TargetHost:   cc.TargetHost,
			TargetPort:   cc.TargetPort,
			TargetQuery:  cc.TargetQuery,
			Subpath:      cc.Subpath,
		}
		if cc.ConnectionString != "" {
			cs, err := core.ParseConnectionString(cc.ConnectionString)
			if err != nil {
				m.SourceErr = err
			} else {
				m.ApplyConnectionString(cs)
			}
		}
		m.Namespace = combinators.StringOr(m.Namespace, c.Namespace)
		out = append(out, m)
	}
	return out
}
