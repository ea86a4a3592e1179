// Package flags contains all configuration runtime flags for the zkiotd
// process.
package flags

import (
	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/chain/registry"
	cmdflags "github.com/zkiotchain/zkiot/cmd/flags"
	"github.com/zkiotchain/zkiot/config/params"
	"github.com/zkiotchain/zkiot/zkp"
)

// zkpScheme receives the parsed --zkp-scheme value.
var zkpScheme string

var (
	// Chain flags.

	// NetworkFlag selects the network anchors are submitted to when a
	// request names no targets.
	NetworkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "Name of the registry network used as the default anchoring target",
		Value: registry.DefaultNetworkName,
	}
	// NetworksConfigFlag points to a yaml file defining additional networks.
	NetworksConfigFlag = &cli.StringFlag{
		Name:  "networks-config",
		Usage: "Path to a yaml file with network definitions merged over the built-in set",
	}
	// DeploymentsConfigFlag points to the yaml file recording contract deployments.
	DeploymentsConfigFlag = &cli.StringFlag{
		Name:  "deployments-config",
		Usage: "Path to the yaml file recording per-network contract deployments. Changes are hot reloaded.",
	}
	// AnchorContractFlag names the registry contract entry anchoring transactions call.
	AnchorContractFlag = &cli.StringFlag{
		Name:  "anchor-contract",
		Usage: "Registry contract entry invoked by anchoring transactions",
		Value: registry.ContractMerkleAnchor,
	}
	// SigningKeyFlag is the hex-encoded secp256k1 private key funding and
	// signing anchoring transactions.
	SigningKeyFlag = &cli.StringFlag{
		Name:    "signing-key",
		Usage:   "Hex-encoded secp256k1 private key used to sign anchoring transactions",
		EnvVars: []string{"SIGNING_KEY"},
	}
	// RPCJWTSecretFlag points to a file with a hex-encoded 32 byte secret
	// for authenticated RPC endpoints.
	RPCJWTSecretFlag = &cli.StringFlag{
		Name:  "rpc-jwt-secret",
		Usage: "Path to a hex-encoded 32 byte secret. When set, HS256 bearer tokens are attached to every RPC request.",
	}

	// Anchoring flags.

	// AnchorIntervalFlag enables the periodic anchoring sweep.
	AnchorIntervalFlag = &cli.DurationFlag{
		Name:  "anchor-interval",
		Usage: "Interval between automatic anchoring sweeps. Zero disables the background trigger.",
	}
	// AnchorMinLeavesFlag holds automatic anchors until this many records are pending.
	AnchorMinLeavesFlag = &cli.IntFlag{
		Name:  "anchor-min-leaves",
		Usage: "Minimum pending records before an automatic sweep anchors a batch",
		Value: 1,
	}
	// AnchorMaxAgeFlag forces an automatic anchor once the oldest pending record is this old.
	AnchorMaxAgeFlag = &cli.DurationFlag{
		Name:  "anchor-max-age",
		Usage: "Maximum age of the oldest pending record before an automatic sweep anchors regardless of batch size",
	}
	// AnchorTargetsFlag lists the networks automatic anchors dispatch to.
	AnchorTargetsFlag = &cli.StringSliceFlag{
		Name:  "anchor-targets",
		Usage: "Networks automatic anchors are dispatched to. Defaults to the active network.",
	}
	// ZKPSchemeFlag selects the proof scheme offered to devices.
	ZKPSchemeFlag = cmdflags.EnumValue{
		Name:        "zkp-scheme",
		Usage:       "Proof scheme used for device authentication",
		Destination: &zkpScheme,
		Enum:        []string{string(zkp.SchemeSimple), string(zkp.SchemeSnark), string(zkp.SchemeStark)},
		Value:       string(zkp.SchemeSimple),
	}.GenericFlag()

	// Monitoring flags.

	// MonitoringPortFlag defines the http port used to serve prometheus metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus",
		Value: 8081,
	}

	// Protocol override flags. Values default to the active protocol config
	// and feed params.OverrideProtocolConfig at startup.

	// ValidityWindowFlag bounds proof freshness and the replay TTL.
	ValidityWindowFlag = &cli.Uint64Flag{
		Name:    "validity-window",
		Usage:   "Proof freshness bound and replay cache TTL in seconds",
		Value:   params.DefaultConfig().ValidityWindow,
		EnvVars: []string{"VALIDITY_WINDOW"},
	}
	// LiveWindowFlag bounds the online presence state.
	LiveWindowFlag = &cli.Uint64Flag{
		Name:    "live-window",
		Usage:   "Seconds since the last heartbeat within which a device counts as online",
		Value:   params.DefaultConfig().LiveWindow,
		EnvVars: []string{"LIVE_WINDOW"},
	}
	// IdleWindowFlag bounds the idle presence state.
	IdleWindowFlag = &cli.Uint64Flag{
		Name:    "idle-window",
		Usage:   "Seconds since the last heartbeat within which a device counts as idle",
		Value:   params.DefaultConfig().IdleWindow,
		EnvVars: []string{"IDLE_WINDOW"},
	}
	// RPCTimeoutFlag bounds every chain RPC attempt.
	RPCTimeoutFlag = &cli.Uint64Flag{
		Name:    "rpc-timeout",
		Usage:   "Deadline in seconds applied to each chain RPC attempt",
		Value:   params.DefaultConfig().RPCTimeout,
		EnvVars: []string{"RPC_TIMEOUT"},
	}
	// ConfirmTimeoutFlag bounds receipt watchers.
	ConfirmTimeoutFlag = &cli.Uint64Flag{
		Name:    "confirm-timeout",
		Usage:   "Deadline in seconds for a submitted anchor to be mined before it is marked failed",
		Value:   params.DefaultConfig().ConfirmTimeout,
		EnvVars: []string{"CONFIRM_TIMEOUT"},
	}
	// MaxSubQueueFlag bounds per-subscriber event queues.
	MaxSubQueueFlag = &cli.IntFlag{
		Name:    "max-sub-queue",
		Usage:   "Events buffered per subscriber before the subscriber is dropped",
		Value:   params.DefaultConfig().MaxSubQueue,
		EnvVars: []string{"MAX_SUB_QUEUE"},
	}
	// EventHistoryFlag sizes the replayable event ring.
	EventHistoryFlag = &cli.IntFlag{
		Name:    "event-history",
		Usage:   "Events retained for replay to new subscribers",
		Value:   params.DefaultConfig().EventHistory,
		EnvVars: []string{"EVENT_HISTORY"},
	}
)
