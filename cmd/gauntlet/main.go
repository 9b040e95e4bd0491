// Package main defines the gauntlet platform node: an autonomous
// trading-bot lifecycle service that runs backtests, walks bots up and
// down the capital-exposure ladder under risk and governance gates, and
// keeps a tamper-evident audit trail of every decision.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	// Embed the tz database so exchange-time session windows stay
	// DST-correct on hosts without /usr/share/zoneinfo.
	_ "time/tzdata"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/platform/flags"
	"github.com/gauntletlabs/gauntlet/platform/node"
	"github.com/gauntletlabs/gauntlet/runtime/logging"
	"github.com/gauntletlabs/gauntlet/runtime/version"
	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(flags.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	platform, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	platform.Start()
	return nil
}

var appFlags = []cli.Flag{
	flags.VerbosityFlag,
	flags.DataDirFlag,
	flags.ClearDB,
	flags.LogFormat,
	flags.LogFileName,
	flags.ConfigFileFlag,
	flags.PlatformConfigFileFlag,
	flags.RPCHost,
	flags.RPCPort,
	flags.MonitoringHostFlag,
	flags.MonitoringPortFlag,
	flags.DisableMonitoringFlag,
	flags.RedisAddrFlag,
	flags.DatabentoKeyFlag,
	flags.FleetRiskIntervalFlag,
	flags.MaxContractsTrialsFlag,
	flags.MaxContractsPaperFlag,
	flags.MaxContractsShadowFlag,
	flags.MaxContractsCanaryFlag,
	flags.MaxContractsLiveFlag,
}

func init() {
	appFlags = append(appFlags, features.PlatformFlags...)
}

func main() {
	app := cli.App{}
	app.Name = "gauntlet"
	app.Usage = "launches an autonomous trading-bot lifecycle platform node"
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(flags.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					flags.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(flags.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// Log files render ANSI color codes as gibberish, so coloring is
			// disabled whenever a persistent log file is written.
			formatter.DisableColors = ctx.String(flags.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(flags.LogFileName.Name)
		if logFileName != "" {
			if err := logging.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configure logging to disk.")
			}
		}

		goruntime.GOMAXPROCS(goruntime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
