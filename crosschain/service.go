// Package crosschain fans anchoring transactions out to the configured
// target networks and tracks each transaction through to confirmation or
// failure. A failure on one chain never blocks or rolls back its siblings;
// every target resolves independently and the per-chain outcome is
// persisted on the batch record.
package crosschain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/chain"
	"github.com/zkiotchain/zkiot/chain/registry"
	anchorcontract "github.com/zkiotchain/zkiot/contracts/anchor-contract"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/types"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("prefix", "crosschain")

// anchorGasLimit matches the anchoring cost ceiling of the deployed
// MerkleAnchor contract.
const anchorGasLimit = 200000

// TxClient is the part of the chain client the dispatcher drives. One
// client serves exactly one network.
type TxClient interface {
	Network() registry.Network
	SignerAddress() common.Address
	EstimateGas(ctx context.Context, op chain.TxOp) (chain.GasQuote, error)
	Send(ctx context.Context, op chain.TxOp) (common.Hash, error)
	WaitReceipt(ctx context.Context, txHash common.Hash, deadline time.Duration) (*gethTypes.Receipt, error)
	Call(ctx context.Context, op chain.TxOp) ([]byte, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Close()
}

// AnchorStore is the slice of the database the dispatcher reads and
// persists through.
type AnchorStore interface {
	Batch(ctx context.Context, batchID uint64) (*types.MerkleBatch, error)
	BatchByRoot(ctx context.Context, root [32]byte) (*types.MerkleBatch, error)
	UpdateAnchor(ctx context.Context, batchID uint64, chain string, anchor *types.Anchor) error
}

// DialFunc connects a client for the given network entry.
type DialFunc func(ctx context.Context, network registry.Network) (TxClient, error)

// Config holds the dispatcher's dependencies.
type Config struct {
	Store    AnchorStore
	Registry *registry.Registry
	Notifier events.Notifier
	Dial     DialFunc
	// ContractName overrides the anchor contract looked up in the
	// deployment records. Empty means MerkleAnchor.
	ContractName string
}

// ChainResult is the immediate per-chain outcome of a dispatch. A pending
// result has a receipt watcher running behind it.
type ChainResult struct {
	Chain  string             `json:"chain"`
	Status types.AnchorStatus `json:"status"`
	TxHash string             `json:"tx_hash,omitempty"`
	Err    string             `json:"error,omitempty"`
}

// RootSyncStatus reports the cross-chain anchoring state of one batch. The
// batch counts as available once at least one chain confirmed.
type RootSyncStatus struct {
	BatchID   uint64                   `json:"batch_id"`
	Root      string                   `json:"root"`
	Available bool                     `json:"available"`
	Chains    map[string]*types.Anchor `json:"chains"`
}

// Service dispatches anchor transactions and resolves their outcomes.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	contract string

	clientsLock sync.Mutex
	clients     map[string]TxClient

	wg sync.WaitGroup
}

// New validates the dependencies and builds the dispatcher.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil || cfg.Registry == nil || cfg.Notifier == nil || cfg.Dial == nil {
		return nil, errors.New("crosschain service requires store, registry, notifier and dial function")
	}
	contract := cfg.ContractName
	if contract == "" {
		contract = registry.ContractMerkleAnchor
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		contract: contract,
		clients:  make(map[string]TxClient),
	}, nil
}

// Start implements the runtime service contract. Receipt watchers spawn on
// demand, so there is nothing to launch here.
func (s *Service) Start() {}

// Stop cancels in-flight receipt watchers and closes every chain client.
// Anchors still pending at shutdown stay pending in the store.
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clients = make(map[string]TxClient)
	return nil
}

// Status implements the runtime service contract.
func (s *Service) Status() error {
	return nil
}

// Dispatch broadcasts the batch root to every target network. Targets
// resolve independently: the returned slice holds one result per deduped
// target in order, and failed entries never abort or delay the others.
// Passing no targets dispatches to the active network.
func (s *Service) Dispatch(ctx context.Context, batch *types.MerkleBatch, targets []string) ([]*ChainResult, error) {
	if batch == nil {
		return nil, apierror.New(apierror.Validation, "NIL_BATCH", "batch required")
	}
	if len(targets) == 0 {
		targets = []string{s.cfg.Registry.Active().Name}
	}
	targets = dedupTargets(targets)

	results := make([]*ChainResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = s.dispatchOne(gctx, batch, target)
			return nil
		})
	}
	// Workers record per-chain failures in their result and never return
	// an error, so Wait only propagates context teardown.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RetryChain re-dispatches a batch to a single chain whose previous
// attempt failed.
func (s *Service) RetryChain(ctx context.Context, batchID uint64, target string) (*ChainResult, error) {
	batch, err := s.cfg.Store.Batch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	anchor := batch.Anchors[target]
	if anchor == nil {
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeInvalidState,
			"batch %d has no anchor attempt on %s", batchID, target)
	}
	if anchor.Status != types.AnchorFailed {
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeInvalidState,
			"anchor on %s is %s, only failed anchors can be retried", target, anchor.Status)
	}
	return s.dispatchOne(ctx, batch, target), nil
}

// SyncStatus reports the per-chain anchoring state of the batch with the
// given root.
func (s *Service) SyncStatus(ctx context.Context, root [32]byte) (*RootSyncStatus, error) {
	batch, err := s.cfg.Store.BatchByRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	status := &RootSyncStatus{
		BatchID: batch.BatchID,
		Root:    hexutil.Encode(batch.Root[:]),
		Chains:  batch.Anchors,
	}
	for _, anchor := range batch.Anchors {
		if anchor.Status == types.AnchorConfirmed {
			status.Available = true
			break
		}
	}
	return status, nil
}

// QuoteAnchor estimates the gas an anchoring transaction would cost on the
// target network right now. Nothing is broadcast.
func (s *Service) QuoteAnchor(ctx context.Context, target string, root [32]byte, leafCount uint64, metadata string) (chain.GasQuote, error) {
	client, contractAddr, err := s.target(ctx, target)
	if err != nil {
		return chain.GasQuote{}, err
	}
	data, err := anchorcontract.PackAnchorMerkleRoot(root, leafCount, metadata)
	if err != nil {
		return chain.GasQuote{}, err
	}
	return client.EstimateGas(ctx, chain.TxOp{To: contractAddr, Data: data})
}

// SignerBalance returns the signing account and its balance in wei on the
// target network.
func (s *Service) SignerBalance(ctx context.Context, target string) (common.Address, *big.Int, error) {
	network, err := s.cfg.Registry.Get(target)
	if err != nil {
		return common.Address{}, nil, err
	}
	client, err := s.clientFor(ctx, network)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr := client.SignerAddress()
	balance, err := client.Balance(ctx, addr)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, balance, nil
}

// IsRootAnchored asks the anchor contract on the target network whether it
// has recorded the root.
func (s *Service) IsRootAnchored(ctx context.Context, target string, root [32]byte) (bool, error) {
	client, contractAddr, err := s.target(ctx, target)
	if err != nil {
		return false, err
	}
	data, err := anchorcontract.PackIsRootAnchored(root)
	if err != nil {
		return false, err
	}
	out, err := client.Call(ctx, chain.TxOp{To: contractAddr, Data: data})
	if err != nil {
		return false, err
	}
	return anchorcontract.UnpackIsRootAnchored(out)
}

// target resolves a network name to a connected client and the anchor
// contract address deployed there.
func (s *Service) target(ctx context.Context, name string) (TxClient, common.Address, error) {
	network, err := s.cfg.Registry.Get(name)
	if err != nil {
		return nil, common.Address{}, err
	}
	contractAddr, err := s.cfg.Registry.ContractAddress(name, s.contract)
	if err != nil {
		return nil, common.Address{}, err
	}
	client, err := s.clientFor(ctx, network)
	if err != nil {
		return nil, common.Address{}, err
	}
	return client, contractAddr, nil
}

func (s *Service) dispatchOne(ctx context.Context, batch *types.MerkleBatch, target string) *ChainResult {
	result := &ChainResult{Chain: target, Status: types.AnchorFailed}
	client, contractAddr, err := s.target(ctx, target)
	if err != nil {
		return s.failDispatch(ctx, batch.BatchID, result, err)
	}
	data, err := anchorcontract.PackAnchorMerkleRoot(batch.Root, batch.LeafCount, batch.Metadata)
	if err != nil {
		return s.failDispatch(ctx, batch.BatchID, result, err)
	}
	txHash, err := client.Send(ctx, chain.TxOp{To: contractAddr, Data: data, GasLimit: anchorGasLimit})
	if err != nil {
		return s.failDispatch(ctx, batch.BatchID, result, err)
	}

	result.Status = types.AnchorPending
	result.TxHash = txHash.Hex()
	s.record(ctx, batch.BatchID, target, &types.Anchor{TxHash: result.TxHash, Status: types.AnchorPending})

	s.wg.Add(1)
	go s.watchReceipt(batch.BatchID, target, client, txHash)
	return result
}

func (s *Service) failDispatch(ctx context.Context, batchID uint64, result *ChainResult, cause error) *ChainResult {
	result.Err = cause.Error()
	log.WithError(cause).WithFields(logrus.Fields{
		"batchID": batchID,
		"network": result.Chain,
	}).Warn("Could not dispatch anchor transaction")
	s.record(ctx, batchID, result.Chain, &types.Anchor{Status: types.AnchorFailed, Error: result.Err})
	return result
}

// watchReceipt follows one broadcast transaction to its terminal state.
// Runs on the service context so the watcher survives the request that
// dispatched it.
func (s *Service) watchReceipt(batchID uint64, target string, client TxClient, txHash common.Hash) {
	defer s.wg.Done()
	watcherGauge.Inc()
	defer watcherGauge.Dec()

	receipt, err := client.WaitReceipt(s.ctx, txHash, 0)
	if s.ctx.Err() != nil {
		// Shutting down. The anchor stays pending and can be retried
		// after restart.
		return
	}
	anchor := &types.Anchor{TxHash: txHash.Hex()}
	if receipt != nil {
		anchor.BlockNumber = receipt.BlockNumber.Uint64()
		anchor.GasUsed = receipt.GasUsed
	}
	if err != nil {
		anchor.Status = types.AnchorFailed
		anchor.Error = err.Error()
		log.WithError(err).WithFields(logrus.Fields{
			"batchID": batchID,
			"network": target,
			"txHash":  anchor.TxHash,
		}).Warn("Anchor transaction failed")
	} else {
		anchor.Status = types.AnchorConfirmed
		log.WithFields(logrus.Fields{
			"batchID": batchID,
			"network": target,
			"txHash":  anchor.TxHash,
			"block":   anchor.BlockNumber,
		}).Info("Anchor transaction confirmed")
	}
	s.record(s.ctx, batchID, target, anchor)
}

// record persists an anchor state change and publishes the progress event.
func (s *Service) record(ctx context.Context, batchID uint64, target string, anchor *types.Anchor) {
	if err := s.cfg.Store.UpdateAnchor(ctx, batchID, target, anchor); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"batchID": batchID,
			"network": target,
		}).Error("Could not persist anchor update")
	}
	anchorUpdates.WithLabelValues(target, string(anchor.Status)).Inc()
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: events.BatchAnchorProgress,
		Data: &events.BatchAnchorProgressData{
			BatchID:     batchID,
			Chain:       target,
			Status:      string(anchor.Status),
			TxHash:      anchor.TxHash,
			BlockNumber: anchor.BlockNumber,
			Reason:      anchor.Error,
		},
	})
}

func (s *Service) clientFor(ctx context.Context, network registry.Network) (TxClient, error) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	if client, ok := s.clients[network.Name]; ok {
		return client, nil
	}
	client, err := s.cfg.Dial(ctx, network)
	if err != nil {
		return nil, err
	}
	s.clients[network.Name] = client
	return client, nil
}

func dedupTargets(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	deduped := make([]string, 0, len(targets))
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		deduped = append(deduped, target)
	}
	return deduped
}
