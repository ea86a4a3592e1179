package server

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zkiotchain/zkiot/anchor"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/crosschain"
	"go.opencensus.io/trace"
	"golang.org/x/exp/slices"
)

// CrossChainAnchor batches the pending queue and dispatches it to the
// requested networks. Targets are checked against the registry before
// any batch is created so a typo cannot strand a batch.
func (s *Service) CrossChainAnchor(ctx context.Context, req *CrossChainAnchorRequest) (*anchor.Result, error) {
	ctx, span := trace.StartSpan(ctx, "server.CrossChainAnchor")
	defer span.End()
	requestsTotal.WithLabelValues("CrossChainAnchor").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("CrossChainAnchor", err)
	}
	for _, target := range req.Targets {
		if _, err := s.cfg.Registry.Get(target); err != nil {
			return nil, s.fail("CrossChainAnchor", err)
		}
	}
	result, err := s.cfg.Anchor.AnchorPending(ctx, req.Targets, req.Metadata)
	if err != nil {
		return nil, s.fail("CrossChainAnchor", err)
	}
	return result, nil
}

// CrossChainVerify checks a root's anchors directly on-chain, one
// network at a time. A chain that cannot be reached reports its error
// without failing the others.
func (s *Service) CrossChainVerify(ctx context.Context, req *CrossChainVerifyRequest) (*CrossChainVerifyResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.CrossChainVerify")
	defer span.End()
	requestsTotal.WithLabelValues("CrossChainVerify").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("CrossChainVerify", err)
	}
	root, err := decodeHash32("merkle_root", req.Root)
	if err != nil {
		return nil, s.fail("CrossChainVerify", err)
	}
	batch, err := s.cfg.Store.BatchByRoot(ctx, root)
	if err != nil {
		return nil, s.fail("CrossChainVerify", err)
	}
	chains := req.Chains
	if len(chains) == 0 {
		chains = make([]string, 0, len(batch.Anchors))
		for name := range batch.Anchors {
			chains = append(chains, name)
		}
		slices.Sort(chains)
	}
	resp := &CrossChainVerifyResponse{
		Root:    hexutil.Encode(root[:]),
		BatchID: batch.BatchID,
		Chains:  make(map[string]*ChainVerification, len(chains)),
	}
	for _, chain := range chains {
		entry := &ChainVerification{}
		if rec, ok := batch.Anchors[chain]; ok {
			entry.TxHash = rec.TxHash
		}
		anchored, err := s.cfg.CrossChain.IsRootAnchored(ctx, chain, root)
		if err != nil {
			entry.Error = apierror.CodeOf(err)
		} else {
			entry.Verified = anchored
		}
		resp.Chains[chain] = entry
	}
	return resp, nil
}

// CrossChainStatus reports the stored per-chain anchor state for a root.
func (s *Service) CrossChainStatus(ctx context.Context, rootHex string) (*crosschain.RootSyncStatus, error) {
	ctx, span := trace.StartSpan(ctx, "server.CrossChainStatus")
	defer span.End()
	requestsTotal.WithLabelValues("CrossChainStatus").Inc()

	root, err := decodeHash32("merkle_root", rootHex)
	if err != nil {
		return nil, s.fail("CrossChainStatus", err)
	}
	status, err := s.cfg.CrossChain.SyncStatus(ctx, root)
	if err != nil {
		return nil, s.fail("CrossChainStatus", err)
	}
	return status, nil
}

// GasQuote prices an anchoring transaction for the given root without
// broadcasting anything.
func (s *Service) GasQuote(ctx context.Context, req *GasQuoteRequest) (*GasQuoteResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.GasQuote")
	defer span.End()
	requestsTotal.WithLabelValues("GasQuote").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("GasQuote", err)
	}
	root, err := decodeHash32("merkle_root", req.Root)
	if err != nil {
		return nil, s.fail("GasQuote", err)
	}
	network := req.Network
	if network == "" {
		network = s.cfg.Registry.Active().Name
	}
	entry, err := s.cfg.Registry.Get(network)
	if err != nil {
		return nil, s.fail("GasQuote", err)
	}
	quote, err := s.cfg.CrossChain.QuoteAnchor(ctx, network, root, req.LeafCount, req.Metadata)
	if err != nil {
		return nil, s.fail("GasQuote", err)
	}
	total := new(big.Int).Mul(quote.GasPrice, new(big.Int).SetUint64(quote.GasUnits))
	return &GasQuoteResponse{
		Network:     network,
		GasUnits:    quote.GasUnits,
		GasPriceWei: quote.GasPrice.String(),
		TotalWei:    total.String(),
		Symbol:      entry.NativeSymbol,
	}, nil
}

// ChainBalance reports the signing account balance on one network. An
// empty name queries the active network.
func (s *Service) ChainBalance(ctx context.Context, network string) (*BalanceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ChainBalance")
	defer span.End()
	requestsTotal.WithLabelValues("ChainBalance").Inc()

	if network == "" {
		network = s.cfg.Registry.Active().Name
	}
	entry, err := s.cfg.Registry.Get(network)
	if err != nil {
		return nil, s.fail("ChainBalance", err)
	}
	address, balance, err := s.cfg.CrossChain.SignerBalance(ctx, network)
	if err != nil {
		return nil, s.fail("ChainBalance", err)
	}
	return &BalanceResponse{
		Network:    network,
		Address:    address.Hex(),
		BalanceWei: balance.String(),
		Symbol:     entry.NativeSymbol,
	}, nil
}
