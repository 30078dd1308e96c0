// Package config provides functionality for managing configuration options
// for both front ends using command-line flags, a config file and
// environment variables. Both front ends read the same Options so they
// open the same registry store.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Options holds the configuration values for the application.
type Options struct {
	// Store selects the registry backend: file, bolt or postgres.
	Store string `json:"store" yaml:"store"`

	// StorePath is the file location for the file and bolt backends.
	StorePath string `json:"store_path" yaml:"store_path"`

	// DatabaseDSN holds the connection string for the postgres backend.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	// Spectre is the derivation binary.
	Spectre string `json:"spectre" yaml:"spectre"`

	// SpectreSecret is how the master secret reaches the binary: arg or stdin.
	SpectreSecret string `json:"spectre_secret" yaml:"spectre_secret"`

	// DeriveTimeout bounds one derivation call.
	DeriveTimeout Duration `json:"derive_timeout" yaml:"derive_timeout"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Addr is the daemon listen address (ip:port).
	Addr string `json:"addr" yaml:"addr"`

	// IdleLock locks the daemon session after this much inactivity.
	IdleLock Duration `json:"idle_lock" yaml:"idle_lock"`

	// ReloadInterval is how often the daemon re-reads the store.
	ReloadInterval Duration `json:"reload_interval" yaml:"reload_interval"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// Location returns where the selected backend lives: a DSN for postgres,
// a file path otherwise.
func (o *Options) Location() string {
	if o.Store == "postgres" {
		return o.DatabaseDSN
	}
	return o.StorePath
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		Store:          "file",
		StorePath:      defaultStorePath(),
		Spectre:        "spectre",
		SpectreSecret:  "arg",
		DeriveTimeout:  Duration(5 * time.Second),
		LogLevel:       "warn",
		Addr:           "127.0.0.1:7468",
		IdleLock:       Duration(5 * time.Minute),
		ReloadInterval: Duration(2 * time.Second),
		Config:         defaultConfigPath(),
	}
}

// Flags registers the options shared by every front end on fs, bound to o.
func (o *Options) Flags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Store, "store", o.Store, "registry backend: file | bolt | postgres")
	fs.StringVarP(&o.StorePath, "file", "f", o.StorePath, "registry file for the file and bolt backends")
	fs.StringVarP(&o.DatabaseDSN, "dsn", "d", o.DatabaseDSN, "postgres connection string")
	fs.StringVar(&o.Spectre, "spectre", o.Spectre, "path to the spectre derivation binary")
	fs.StringVar(&o.SpectreSecret, "spectre-secret", o.SpectreSecret, "pass the master secret to spectre as: arg | stdin")
	fs.Var(&o.DeriveTimeout, "derive-timeout", "timeout for one derivation")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level: debug | info | warn | error")
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file (JSON or YAML)")
}

// ServerFlags registers the daemon-only options on fs, bound to o.
func (o *Options) ServerFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Addr, "addr", "a", o.Addr, "listen on ip:port (loopback only)")
	fs.Var(&o.IdleLock, "idle-lock", "lock the session after this much inactivity (0 disables)")
	fs.Var(&o.ReloadInterval, "reload-interval", "re-read the store this often (0 disables)")
}

// Parse resolves the configuration. Precedence, lowest first: defaults,
// config file, environment, flags given explicitly in args.
// register binds the flags of the calling front end to the Options it is
// given; it runs twice, once to find the config file and once to apply
// explicit flags on top of the merged result.
func Parse(name string, args []string, register func(*Options, *pflag.FlagSet)) (*Options, []string, error) {
	probe := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetInterspersed(true)
	// Callers print their own usage on pflag.ErrHelp.
	fs.Usage = func() {}
	register(probe, fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	options := Default()
	configPath := probe.Config
	if env := os.Getenv("PASSE_CONFIG"); env != "" && !fs.Changed("config") {
		configPath = env
	}
	options.Config = configPath
	if err := options.loadFile(configPath, fs.Changed("config") || os.Getenv("PASSE_CONFIG") != ""); err != nil {
		return nil, nil, err
	}
	if err := options.applyEnv(); err != nil {
		return nil, nil, err
	}

	final := pflag.NewFlagSet(name, pflag.ContinueOnError)
	register(options, final)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if err := final.Set(f.Name, f.Value.String()); err != nil && setErr == nil {
			setErr = err
		}
	})
	if setErr != nil {
		return nil, nil, setErr
	}
	return options, fs.Args(), nil
}

// loadFile merges the config file at path into o. A missing file is an
// error only when the path was chosen explicitly.
func (o *Options) loadFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, o)
	default:
		err = json.Unmarshal(data, o)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file %s: %w", path, err)
	}
	return nil
}

func (o *Options) applyEnv() error {
	strs := map[string]*string{
		"PASSE_STORE":          &o.Store,
		"PASSE_STORE_PATH":     &o.StorePath,
		"PASSE_DATABASE_DSN":   &o.DatabaseDSN,
		"PASSE_SPECTRE":        &o.Spectre,
		"PASSE_SPECTRE_SECRET": &o.SpectreSecret,
		"PASSE_LOG_LEVEL":      &o.LogLevel,
		"PASSE_ADDR":           &o.Addr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	durations := map[string]*Duration{
		"PASSE_DERIVE_TIMEOUT":  &o.DeriveTimeout,
		"PASSE_IDLE_LOCK":       &o.IdleLock,
		"PASSE_RELOAD_INTERVAL": &o.ReloadInterval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			if err := dst.Set(v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".passe.json"
	}
	return filepath.Join(home, ".passe.json")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "passe", "config.json")
}

// CheckLoopback rejects listen addresses that are not on a loopback
// interface. "localhost" is accepted.
func (o *Options) CheckLoopback() error {
	host, _, err := net.SplitHostPort(o.Addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", o.Addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen address %q is not a loopback address", o.Addr)
	}
	return nil
}
