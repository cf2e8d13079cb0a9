// Package config resolves kitworker's startup configuration from CLI flags
// and environment variables.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	childRootKey      = "child-root"
	sysTemplateKey    = "sys-template"
	loTemplateKey     = "lo-template"
	loSubPathKey      = "lo-subpath"
	noCapabilitiesKey = "no-capabilities"
	queryVersionKey   = "query-version"
	displayVersionKey = "display-version"
	masterPortKey     = "master-port"
	metricsAddrKey    = "metrics-addr"
	bindMountKey      = "bind-mount"

	logFileKey     = "logfile"
	logFileNameKey = "logfilename"
	logLevelKey    = "loglevel"
	logColorKey    = "logcolor"
)

// Config holds every knob the worker reads at startup. Everything here maps
// 1:1 onto either a CLI flag or one of the LOOL_* environment variables from
// spec.md §6.4.
type Config struct {
	// ChildRoot is the parent directory under which the jail for this
	// worker's pid is created.
	ChildRoot string
	// SysTemplate is the donor tree for the base system image.
	SysTemplate string
	// LoTemplate is the donor tree for the document-engine installation.
	LoTemplate string
	// LoSubPath is the jail-relative install path the engine is symlinked
	// to point at.
	LoSubPath string
	// NoCapabilities skips jail construction and capability dropping
	// entirely, running the engine directly against LoTemplate. Intended
	// for local development only.
	NoCapabilities bool
	// QueryVersion requests the engine's version string and appends it to
	// the registration handshake with the supervisor.
	QueryVersion bool
	// DisplayVersion additionally echoes the queried version to stdout.
	DisplayVersion bool
	// MasterPort is the local TCP port the supervisor listens on for the
	// worker's control connection.
	MasterPort int
	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string
	// BindMount mirrors LOOL_BIND_MOUNT: attempt the /usr bind-mount fast
	// path during jail construction.
	BindMount bool

	// LogFile, when true, sends log output to LogFileName instead of
	// stderr.
	LogFile bool
	// LogFileName is the log file's path, used only when LogFile is true.
	LogFileName string
	// LogLevel is one of debug|info|warn|error (default info).
	LogLevel string
	// LogColor mirrors LOOL_LOGCOLOR. It is parsed and passed to wslog, whose
	// text handler does not apply it: log output is never colorized.
	LogColor bool
}

// FlagSet builds the pflag.FlagSet for this configuration, ready to be
// parsed against os.Args[1:].
func FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.String(childRootKey, "", "parent directory of the per-worker jail")
	fs.String(sysTemplateKey, "", "system donor tree for jail construction")
	fs.String(loTemplateKey, "", "document-engine donor tree")
	fs.String(loSubPathKey, "", "jail-relative install path for the engine")
	fs.Bool(noCapabilitiesKey, false, "skip jail construction and capability drop (development only)")
	fs.Bool(queryVersionKey, false, "query and report the engine version during handshake")
	fs.Bool(displayVersionKey, false, "print the queried engine version to stdout")
	fs.Int(masterPortKey, 9981, "supervisor control-connection port")
	fs.String(metricsAddrKey, "", "listen address for the /metrics endpoint (empty disables it)")
	fs.Bool(bindMountKey, false, "attempt the bind-mount fast path for /usr")
	fs.Bool(logFileKey, false, "log to a file instead of stderr")
	fs.String(logFileNameKey, "", "log file path, used when logfile is set")
	fs.String(logLevelKey, "info", "log level: debug|info|warn|error")
	fs.Bool(logColorKey, false, "request ANSI color in text log output (accepted, has no effect)")
	return fs
}

// Load binds fs to viper (flags take precedence, then LOOL_* environment
// variables, then defaults) and returns the resolved Config.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	envBindings := map[string]string{
		bindMountKey:   "LOOL_BIND_MOUNT",
		logFileKey:     "LOOL_LOGFILE",
		logFileNameKey: "LOOL_LOGFILENAME",
		logLevelKey:    "LOOL_LOGLEVEL",
		logColorKey:    "LOOL_LOGCOLOR",
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	cfg := &Config{
		ChildRoot:      v.GetString(childRootKey),
		SysTemplate:    v.GetString(sysTemplateKey),
		LoTemplate:     v.GetString(loTemplateKey),
		LoSubPath:      v.GetString(loSubPathKey),
		NoCapabilities: v.GetBool(noCapabilitiesKey),
		QueryVersion:   v.GetBool(queryVersionKey),
		DisplayVersion: v.GetBool(displayVersionKey),
		MasterPort:     v.GetInt(masterPortKey),
		MetricsAddr:    v.GetString(metricsAddrKey),
		BindMount:      v.GetBool(bindMountKey),
		LogFile:        v.GetBool(logFileKey),
		LogFileName:    v.GetString(logFileNameKey),
		LogLevel:       v.GetString(logLevelKey),
		LogColor:       v.GetBool(logColorKey),
	}

	if !cfg.NoCapabilities {
		if cfg.ChildRoot == "" || cfg.SysTemplate == "" || cfg.LoTemplate == "" || cfg.LoSubPath == "" {
			return nil, fmt.Errorf("config: child-root, sys-template, lo-template and lo-subpath are required unless --no-capabilities is set")
		}
	} else if cfg.LoTemplate == "" {
		return nil, fmt.Errorf("config: lo-template is required")
	}

	return cfg, nil
}
