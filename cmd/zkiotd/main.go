// Package main defines the zkiot coordinator daemon. zkiotd authenticates
// IoT devices with zero-knowledge proofs and anchors batches of their
// telemetry to public ledgers.
package main

import (
	"fmt"
	"os"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"github.com/zkiotchain/zkiot/cmd"
	"github.com/zkiotchain/zkiot/cmd/zkiotd/flags"
	"github.com/zkiotchain/zkiot/cmd/zkiotd/jwt"
	"github.com/zkiotchain/zkiot/io/logs"
	"github.com/zkiotchain/zkiot/monitoring/journald"
	"github.com/zkiotchain/zkiot/node"
	"github.com/zkiotchain/zkiot/runtime/debug"
	"github.com/zkiotchain/zkiot/runtime/fdlimits"
	"github.com/zkiotchain/zkiot/runtime/version"
	_ "go.uber.org/automaxprocs"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.MonitoringHostFlag,
	cmd.DisableMonitoringFlag,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.ConfigFileFlag,
	cmd.ProtocolConfigFileFlag,
	cmd.EnableBackupWebhookFlag,
	cmd.BackupWebhookOutputDir,
	cmd.LogFormat,
	cmd.LogFileName,
	debug.PProfFlag,
	debug.PProfAddrFlag,
	debug.PProfPortFlag,
	debug.MemProfileRateFlag,
	debug.CPUProfileFlag,
	debug.TraceFlag,
	flags.NetworkFlag,
	flags.NetworksConfigFlag,
	flags.DeploymentsConfigFlag,
	flags.AnchorContractFlag,
	flags.SigningKeyFlag,
	flags.RPCJWTSecretFlag,
	flags.MonitoringPortFlag,
	flags.AnchorIntervalFlag,
	flags.AnchorMinLeavesFlag,
	flags.AnchorMaxAgeFlag,
	flags.AnchorTargetsFlag,
	flags.ZKPSchemeFlag,
	flags.ValidityWindowFlag,
	flags.LiveWindowFlag,
	flags.IdleWindowFlag,
	flags.RPCTimeoutFlag,
	flags.ConfirmTimeoutFlag,
	flags.MaxSubQueueFlag,
	flags.EventHistoryFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	coordinator, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	coordinator.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "zkiotd"
	app.Usage = "launches the zkiot coordinator, authenticating IoT devices with zero-knowledge proofs and anchoring their telemetry to public ledgers"
	app.Version = version.Version()
	app.Flags = appFlags
	app.Action = startNode
	app.Commands = []*cli.Command{
		jwt.Commands,
	}
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if err := cmd.LoadFlagsFromConfig(ctx, app.Flags); err != nil {
			return err
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		case "journald":
			if err := journald.Enable(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logs.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		if err := fdlimits.SetMaxFdLimits(); err != nil {
			log.WithError(err).Error("Failed to increase file descriptor limit")
		}

		if err := debug.Setup(ctx); err != nil {
			return err
		}
		return cmd.ValidateNoArgs(ctx)
	}

	app.After = func(ctx *cli.Context) error {
		debug.Exit(ctx)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
