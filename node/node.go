// Package node is the main service which launches the coordinator and
// manages the lifecycle of all its associated services at runtime, such as
// anchoring, cross-chain dispatch and presence tracking, gracefully closing
// them if the process ends.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/anchor"
	"github.com/zkiotchain/zkiot/chain"
	"github.com/zkiotchain/zkiot/chain/registry"
	"github.com/zkiotchain/zkiot/cmd"
	"github.com/zkiotchain/zkiot/cmd/zkiotd/flags"
	"github.com/zkiotchain/zkiot/crosschain"
	"github.com/zkiotchain/zkiot/db"
	"github.com/zkiotchain/zkiot/db/kv"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/io/logs"
	"github.com/zkiotchain/zkiot/monitoring/backup"
	"github.com/zkiotchain/zkiot/monitoring/prometheus"
	"github.com/zkiotchain/zkiot/monitoring/tracing"
	"github.com/zkiotchain/zkiot/multisig"
	"github.com/zkiotchain/zkiot/presence"
	"github.com/zkiotchain/zkiot/runtime"
	"github.com/zkiotchain/zkiot/runtime/debug"
	"github.com/zkiotchain/zkiot/runtime/prereqs"
	"github.com/zkiotchain/zkiot/runtime/version"
	"github.com/zkiotchain/zkiot/server"
	"github.com/zkiotchain/zkiot/zkp"
)

var log = logrus.WithField("prefix", "node")

// CoordinatorNode handles the services running the zkiot coordinator. It
// manages the lifecycle of the entire system and registers services to a
// service registry.
type CoordinatorNode struct {
	cliCtx    *cli.Context
	ctx       context.Context
	cancel    context.CancelFunc
	services  *runtime.ServiceRegistry
	lock      sync.RWMutex
	stop      chan struct{} // Channel to wait for termination notifications.
	db        db.Database
	networks  *registry.Registry
	bus       *events.Bus
	zkpEngine *zkp.Engine
}

// New creates a new node instance, sets up configuration options, and
// registers every required service to the node.
func New(cliCtx *cli.Context) (*CoordinatorNode, error) {
	if err := tracing.Setup(
		"zkiot-coordinator", // service name
		cliCtx.String(cmd.TracingProcessNameFlag.Name),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	// Warn if user's platform is not supported
	prereqs.WarnIfPlatformNotSupported(cliCtx.Context)

	if err := configureProtocol(cliCtx); err != nil {
		return nil, err
	}

	svcRegistry := runtime.NewServiceRegistry()

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &CoordinatorNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: svcRegistry,
		stop:     make(chan struct{}),
	}

	if err := node.startDB(cliCtx); err != nil {
		return nil, err
	}

	if err := node.startChainRegistry(cliCtx); err != nil {
		return nil, err
	}

	if err := node.startZKPEngine(cliCtx); err != nil {
		return nil, err
	}

	if err := node.registerEventBus(); err != nil {
		return nil, err
	}

	if err := node.registerCrossChainService(cliCtx); err != nil {
		return nil, err
	}

	if err := node.registerAnchorService(cliCtx); err != nil {
		return nil, err
	}

	if err := node.registerMultisigService(); err != nil {
		return nil, err
	}

	if err := node.registerPresenceService(); err != nil {
		return nil, err
	}

	if err := node.registerServerService(); err != nil {
		return nil, err
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheusService(cliCtx); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// Start the coordinator node and kicks off every registered service.
func (n *CoordinatorNode) Start() {
	n.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.Version(),
	}).Info("Starting coordinator node")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		debug.Exit(n.cliCtx) // Ensure trace and CPU profile data are flushed.
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the coordinator node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *CoordinatorNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping coordinator node")
	n.services.StopAll()
	if err := n.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	n.cancel()
	close(n.stop)
}

func (n *CoordinatorNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	if baseDir == "" {
		baseDir = cmd.DefaultDataDir()
		if baseDir == "" {
			log.Fatal(
				"Could not determine your system's HOME path, please specify a --datadir you wish " +
					"to use for your coordinator data",
			)
		}
	}
	dbPath := filepath.Join(baseDir, kv.DatabaseDirName)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("database-path", dbPath).Info("Checking DB")

	d, err := db.NewDB(n.ctx, dbPath)
	if err != nil {
		return err
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your coordinator database stored in your data directory. " +
			"Your database backups will not be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(n.ctx, dbPath)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}

	// Batches interrupted mid-assembly by a crash never reached the
	// dispatcher and are discarded before any service reads the store.
	pruned, err := d.PruneInterruptedBatches(n.ctx)
	if err != nil {
		return errors.Wrap(err, "could not prune interrupted batches")
	}
	if pruned > 0 {
		log.WithField("batches", pruned).Warn("Discarded batches interrupted before dispatch")
	}

	n.db = d
	return nil
}

func (n *CoordinatorNode) startChainRegistry(cliCtx *cli.Context) error {
	deploymentsPath := cliCtx.String(flags.DeploymentsConfigFlag.Name)
	networks, err := registry.New(&registry.Config{
		NetworksPath:    cliCtx.String(flags.NetworksConfigFlag.Name),
		DeploymentsPath: deploymentsPath,
		Active:          cliCtx.String(flags.NetworkFlag.Name),
	})
	if err != nil {
		return errors.Wrap(err, "could not build chain registry")
	}
	if deploymentsPath != "" {
		go networks.WatchDeployments(n.ctx)
	}
	active := networks.Active()
	log.WithFields(logrus.Fields{
		"network": active.Name,
		"chainID": active.ChainID,
		"rpc":     logs.MaskCredentialsLogging(active.RPCURL),
	}).Info("Using anchoring network")
	n.networks = networks
	return nil
}

func (n *CoordinatorNode) startZKPEngine(cliCtx *cli.Context) error {
	engine, err := zkp.NewEngine(&zkp.Config{
		Devices: n.db,
		Scheme:  zkp.SchemeName(cliCtx.String(flags.ZKPSchemeFlag.Name)),
	})
	if err != nil {
		return errors.Wrap(err, "could not build proof engine")
	}
	n.zkpEngine = engine
	return nil
}

func (n *CoordinatorNode) registerEventBus() error {
	n.bus = events.NewBus(n.ctx, nil)
	return n.services.RegisterService(n.bus)
}

// chainDialer builds the dial function the dispatcher uses to open one
// client per target network. Signing and RPC authentication material come
// from flags once and apply to every network.
func (n *CoordinatorNode) chainDialer(cliCtx *cli.Context) crosschain.DialFunc {
	signingKey := cliCtx.String(flags.SigningKeyFlag.Name)
	jwtPath := cliCtx.String(flags.RPCJWTSecretFlag.Name)
	return func(ctx context.Context, network registry.Network) (crosschain.TxClient, error) {
		opts := make([]chain.Option, 0, 2)
		if signingKey != "" {
			opts = append(opts, chain.WithSigner(signingKey))
		}
		if jwtPath != "" {
			opts = append(opts, chain.WithJWTSecretFile(jwtPath))
		}
		client, err := chain.New(network, opts...)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (n *CoordinatorNode) registerCrossChainService(cliCtx *cli.Context) error {
	svc, err := crosschain.New(n.ctx, &crosschain.Config{
		Store:        n.db,
		Registry:     n.networks,
		Notifier:     n.bus,
		Dial:         n.chainDialer(cliCtx),
		ContractName: cliCtx.String(flags.AnchorContractFlag.Name),
	})
	if err != nil {
		return errors.Wrap(err, "could not register cross-chain service")
	}
	return n.services.RegisterService(svc)
}

func (n *CoordinatorNode) registerAnchorService(cliCtx *cli.Context) error {
	var dispatcher *crosschain.Service
	if err := n.services.FetchService(&dispatcher); err != nil {
		return err
	}
	svc, err := anchor.New(n.ctx, &anchor.Config{
		Store:      n.db,
		Dispatcher: dispatcher,
		Notifier:   n.bus,
		Interval:   cliCtx.Duration(flags.AnchorIntervalFlag.Name),
		MinLeaves:  cliCtx.Int(flags.AnchorMinLeavesFlag.Name),
		MaxAge:     cliCtx.Duration(flags.AnchorMaxAgeFlag.Name),
		Targets:    cliCtx.StringSlice(flags.AnchorTargetsFlag.Name),
	})
	if err != nil {
		return errors.Wrap(err, "could not register anchor service")
	}
	return n.services.RegisterService(svc)
}

func (n *CoordinatorNode) registerMultisigService() error {
	svc, err := multisig.New(n.ctx, &multisig.Config{
		Store:    n.db,
		Notifier: n.bus,
	})
	if err != nil {
		return errors.Wrap(err, "could not register multisig service")
	}
	return n.services.RegisterService(svc)
}

func (n *CoordinatorNode) registerPresenceService() error {
	svc, err := presence.New(n.ctx, &presence.Config{
		Notifier: n.bus,
	})
	if err != nil {
		return errors.Wrap(err, "could not register presence service")
	}
	return n.services.RegisterService(svc)
}

func (n *CoordinatorNode) registerServerService() error {
	var anchorService *anchor.Service
	if err := n.services.FetchService(&anchorService); err != nil {
		return err
	}
	var crossChainService *crosschain.Service
	if err := n.services.FetchService(&crossChainService); err != nil {
		return err
	}
	var multisigService *multisig.Service
	if err := n.services.FetchService(&multisigService); err != nil {
		return err
	}
	var presenceService *presence.Service
	if err := n.services.FetchService(&presenceService); err != nil {
		return err
	}
	svc, err := server.New(n.ctx, &server.Config{
		Store:      n.db,
		ZKP:        n.zkpEngine,
		Anchor:     anchorService,
		CrossChain: crossChainService,
		Multisig:   multisigService,
		Presence:   presenceService,
		Bus:        n.bus,
		Registry:   n.networks,
	})
	if err != nil {
		return errors.Wrap(err, "could not register server service")
	}
	return n.services.RegisterService(svc)
}

func (n *CoordinatorNode) registerPrometheusService(cliCtx *cli.Context) error {
	var additionalHandlers []prometheus.Handler
	if cliCtx.IsSet(cmd.EnableBackupWebhookFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backup.Handler(n.db, cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
			},
		)
	}

	service := prometheus.New(
		fmt.Sprintf("%s:%d", n.cliCtx.String(cmd.MonitoringHostFlag.Name), n.cliCtx.Int(flags.MonitoringPortFlag.Name)),
		n.services,
		additionalHandlers...,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return n.services.RegisterService(service)
}
