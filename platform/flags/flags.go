// Package flags defines the command line flags for the platform node.
package flags

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value: "info",
	}
	// DataDirFlag defines the path holding the bolt database.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the platform databases",
		Value: DefaultDataDir(),
	}
	// ClearDB removes any previously stored data at the data directory.
	ClearDB = &cli.BoolFlag{
		Name:  "clear-db",
		Usage: "Clears any previously stored data at the data directory",
	}
	// LogFormat specifies the log output encoding.
	LogFormat = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Specify log formatting. Supports: text, json, fluentd.",
		Value: "text",
	}
	// LogFileName specifies the log output file name.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Specify log file name, relative or absolute",
	}
	// ConfigFileFlag loads flag values from a yaml file.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// PlatformConfigFileFlag overrides platform parameters from a yaml file.
	PlatformConfigFileFlag = &cli.StringFlag{
		Name:  "platform-config-file",
		Usage: "The filepath to a yaml file with platform parameter overrides (thresholds, TTLs, gates)",
	}
	// RPCHost defines the address the REST surface binds to.
	RPCHost = &cli.StringFlag{
		Name:  "rpc-host",
		Usage: "Host on which the RPC server should listen",
		Value: "127.0.0.1",
	}
	// RPCPort defines the port the REST surface binds to.
	RPCPort = &cli.IntFlag{
		Name:  "rpc-port",
		Usage: "RPC port exposed by the platform node",
		Value: 7500,
	}
	// MonitoringHostFlag defines the address the metrics endpoint binds to.
	MonitoringHostFlag = &cli.StringFlag{
		Name:  "monitoring-host",
		Usage: "Host used for listening and responding to metrics requests",
		Value: "127.0.0.1",
	}
	// MonitoringPortFlag defines the port of the metrics endpoint.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used for listening and responding to metrics requests",
		Value: 7600,
	}
	// DisableMonitoringFlag disables the metrics collection service.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable the monitoring service",
	}
	// RedisAddrFlag points the bar cache and idempotency store at redis.
	RedisAddrFlag = &cli.StringFlag{
		Name:    "redis-addr",
		Usage:   "host:port of the redis instance backing the shared bar cache and idempotency store. Empty disables redis-backed sharing.",
		EnvVars: []string{"REDIS_ADDR"},
	}
	// DatabentoKeyFlag gates the real-data path of the bar provider.
	DatabentoKeyFlag = &cli.StringFlag{
		Name:    "databento-api-key",
		Usage:   "API key for the databento historical bar provider. Absence gates backtests to the simulated fallback (TRIALS only).",
		EnvVars: []string{"DATABENTO_API_KEY"},
	}
	// FleetRiskIntervalFlag overrides the fleet assessment period.
	FleetRiskIntervalFlag = &cli.IntFlag{
		Name:    "fleet-risk-interval-ms",
		Usage:   "Milliseconds between fleet risk assessment cycles",
		EnvVars: []string{"FLEET_RISK_INTERVAL_MS"},
		Value:   60000,
	}
	// MaxContractsTrialsFlag overrides the TRIALS per-order contract cap.
	MaxContractsTrialsFlag = &cli.IntFlag{
		Name:    "max-contracts-trials",
		Usage:   "Contracts per order allowed for TRIALS bots",
		EnvVars: []string{"MAX_CONTRACTS_TRIALS"},
	}
	// MaxContractsPaperFlag overrides the PAPER per-order contract cap.
	MaxContractsPaperFlag = &cli.IntFlag{
		Name:    "max-contracts-paper",
		Usage:   "Contracts per order allowed for PAPER bots",
		EnvVars: []string{"MAX_CONTRACTS_PAPER"},
	}
	// MaxContractsShadowFlag overrides the SHADOW per-order contract cap.
	MaxContractsShadowFlag = &cli.IntFlag{
		Name:    "max-contracts-shadow",
		Usage:   "Contracts per order allowed for SHADOW bots",
		EnvVars: []string{"MAX_CONTRACTS_SHADOW"},
	}
	// MaxContractsCanaryFlag overrides the CANARY per-order contract cap.
	MaxContractsCanaryFlag = &cli.IntFlag{
		Name:    "max-contracts-canary",
		Usage:   "Contracts per order allowed for CANARY bots",
		EnvVars: []string{"MAX_CONTRACTS_CANARY"},
	}
	// MaxContractsLiveFlag overrides the LIVE per-order contract cap.
	MaxContractsLiveFlag = &cli.IntFlag{
		Name:    "max-contracts-live",
		Usage:   "Contracts per order allowed for LIVE bots",
		EnvVars: []string{"MAX_CONTRACTS_LIVE"},
	}
)

// DefaultDataDir is the default data directory to use for the databases.
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".gauntlet")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}
