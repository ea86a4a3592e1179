package node

import (
	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/cmd"
	"github.com/zkiotchain/zkiot/cmd/zkiotd/flags"
	"github.com/zkiotchain/zkiot/config/params"
)

// configureProtocol loads the protocol configuration file, if one was
// provided, and then applies per-flag overrides on top of it. The merged
// config is installed globally before any service reads it.
func configureProtocol(cliCtx *cli.Context) error {
	if cliCtx.IsSet(cmd.ProtocolConfigFileFlag.Name) {
		if err := params.LoadConfigFile(cliCtx.String(cmd.ProtocolConfigFileFlag.Name)); err != nil {
			return err
		}
	}
	c := params.Protocol().Copy()
	if cliCtx.IsSet(flags.ValidityWindowFlag.Name) {
		c.ValidityWindow = cliCtx.Uint64(flags.ValidityWindowFlag.Name)
	}
	if cliCtx.IsSet(flags.LiveWindowFlag.Name) {
		c.LiveWindow = cliCtx.Uint64(flags.LiveWindowFlag.Name)
	}
	if cliCtx.IsSet(flags.IdleWindowFlag.Name) {
		c.IdleWindow = cliCtx.Uint64(flags.IdleWindowFlag.Name)
	}
	if cliCtx.IsSet(flags.RPCTimeoutFlag.Name) {
		c.RPCTimeout = cliCtx.Uint64(flags.RPCTimeoutFlag.Name)
	}
	if cliCtx.IsSet(flags.ConfirmTimeoutFlag.Name) {
		c.ConfirmTimeout = cliCtx.Uint64(flags.ConfirmTimeoutFlag.Name)
	}
	if cliCtx.IsSet(flags.MaxSubQueueFlag.Name) {
		c.MaxSubQueue = cliCtx.Int(flags.MaxSubQueueFlag.Name)
	}
	if cliCtx.IsSet(flags.EventHistoryFlag.Name) {
		c.EventHistory = cliCtx.Int(flags.EventHistoryFlag.Name)
	}
	params.OverrideProtocolConfig(c)
	return nil
}
