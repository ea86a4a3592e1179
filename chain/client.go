// Package chain provides the RPC client used to estimate, broadcast and
// confirm anchoring transactions. One Client serves exactly one configured
// network; multi-network fan-out composes clients, it never shares them.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethRPC "github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/chain/registry"
	"github.com/zkiotchain/zkiot/config/params"
	anchorcontract "github.com/zkiotchain/zkiot/contracts/anchor-contract"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "chain")

const receiptCacheSize = 1024

// Broadcast failures that retrying can never fix. Everything else on the
// wire is assumed transient until the attempt budget runs out.
var permanentRPCErrors = []string{
	"insufficient funds",
	"execution reverted",
	"invalid sender",
	"gas required exceeds allowance",
	"exceeds block gas limit",
	"intrinsic gas too low",
}

// TxOp describes a contract call to estimate or broadcast.
type TxOp struct {
	To       common.Address
	Data     []byte
	GasLimit uint64         // 0 means estimate before sending
	Value    *big.Int       // nil means 0
}

// GasQuote is a gas estimate for a TxOp at current network prices.
type GasQuote struct {
	GasUnits uint64
	GasPrice *big.Int
}

// Cost returns the estimated fee in wei.
func (q GasQuote) Cost() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(q.GasUnits), q.GasPrice)
}

// AnchorEvent is a decoded MerkleRootAnchored log.
type AnchorEvent struct {
	Root      [32]byte
	BatchID   uint64
	LeafCount uint64
	Timestamp uint64
}

// Client talks to the RPC provider of a single network. Reads need no key;
// Send requires one configured via WithSigner. All methods are safe for
// concurrent use.
type Client struct {
	network  registry.Network
	endpoint Endpoint
	headers  map[string]string

	jwtSecret []byte

	rpcTimeout   time.Duration
	maxAttempts  int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	pollInterval time.Duration

	key  *ecdsa.PrivateKey
	from common.Address

	rpcClient *gethRPC.Client
	eth       *ethclient.Client

	// nonceLock serializes broadcasts so the locally tracked pending nonce
	// stays coherent across concurrent Send calls.
	nonceLock sync.Mutex
	nonce     uint64
	nonceInit bool

	receipts *lru.Cache
}

// New builds a client for the given network. Connect must be called before
// any RPC operation.
func New(network registry.Network, opts ...Option) (*Client, error) {
	receipts, err := lru.New(receiptCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Client{
		network:      network,
		endpoint:     HttpEndpoint(network.RPCURL),
		rpcTimeout:   params.Protocol().RPCTimeoutDuration(),
		maxAttempts:  params.Protocol().MaxRPCAttempts,
		baseBackoff:  time.Second,
		maxBackoff:   params.Protocol().MaxRPCBackoffDuration(),
		pollInterval: 2 * time.Second,
		receipts:     receipts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Network returns the registry entry this client serves.
func (c *Client) Network() registry.Network {
	return c.network
}

// SignerAddress returns the address of the configured signing key, or the
// zero address when the client is read only.
func (c *Client) SignerAddress() common.Address {
	return c.from
}

// Connect dials the provider over http(s), ws(s) or ipc and verifies that
// the remote chain id matches the registry entry, so a misconfigured
// endpoint can never receive transactions meant for another network.
func (c *Client) Connect(ctx context.Context) error {
	rpcClient, err := gethRPC.DialContext(ctx, c.endpoint.Url)
	if err != nil {
		return apierror.Wrap(err, apierror.RPCTransient, apierror.CodeRPCTransient,
			fmt.Sprintf("could not dial %s provider", c.network.Name))
	}
	c.rpcClient = rpcClient
	c.eth = ethclient.NewClient(rpcClient)
	c.applyHeaders()

	chainCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	c.refreshAuth()
	chainID, err := c.eth.ChainID(chainCtx)
	if err != nil {
		c.Close()
		return apierror.Wrap(err, apierror.RPCTransient, apierror.CodeRPCTransient,
			fmt.Sprintf("could not query chain id of %s provider", c.network.Name))
	}
	if chainID.Uint64() != c.network.ChainID {
		c.Close()
		return apierror.Newf(apierror.RPCPermanent, apierror.CodeRPCPermanent,
			"endpoint reports chain id %d, network %s expects %d", chainID.Uint64(), c.network.Name, c.network.ChainID)
	}
	log.WithFields(logrus.Fields{
		"network":  c.network.Name,
		"chainID":  c.network.ChainID,
		"endpoint": redactedUrl(c.endpoint.Url),
	}).Info("Connected to RPC provider")
	return nil
}

// Close tears down the RPC connection. The client can be reconnected with
// Connect.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient, c.eth = nil, nil
}

func (c *Client) applyHeaders() {
	if header, err := c.endpoint.Auth.ToHeaderValue(); err != nil {
		log.WithError(err).Warn("Could not build authorization header")
	} else if header != "" {
		c.rpcClient.SetHeader("Authorization", header)
	}
	for name, value := range c.headers {
		c.rpcClient.SetHeader(name, value)
	}
}

// refreshAuth mints a fresh JWT bearer token when a secret is configured.
// Called before every attempt because providers reject stale issued-at
// claims.
func (c *Client) refreshAuth() {
	if c.jwtSecret == nil || c.rpcClient == nil {
		return
	}
	token, err := jwtToken(c.jwtSecret)
	if err != nil {
		log.WithError(err).Warn("Could not sign RPC authentication token")
		return
	}
	c.rpcClient.SetHeader("Authorization", "Bearer "+token)
}

// EstimateGas quotes gas units and the suggested gas price for op. Nothing
// is broadcast.
func (c *Client) EstimateGas(ctx context.Context, op TxOp) (GasQuote, error) {
	ctx, span := trace.StartSpan(ctx, "chain.EstimateGas")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("network", c.network.Name))

	value := op.Value
	if value == nil {
		value = new(big.Int)
	}
	var quote GasQuote
	err := c.do(ctx, "estimate gas", func(ctx context.Context) error {
		gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  c.from,
			To:    &op.To,
			Value: value,
			Data:  op.Data,
		})
		if err != nil {
			return err
		}
		price, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		quote = GasQuote{GasUnits: gas, GasPrice: price}
		return nil
	})
	if err != nil {
		return GasQuote{}, err
	}
	return quote, nil
}

// Send signs op with the configured key and broadcasts it, returning the
// transaction hash. The pending nonce is tracked locally and refetched when
// the provider reports it stale.
func (c *Client) Send(ctx context.Context, op TxOp) (common.Hash, error) {
	ctx, span := trace.StartSpan(ctx, "chain.Send")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("network", c.network.Name))

	if c.key == nil {
		return common.Hash{}, apierror.New(apierror.Internal, "NO_SIGNER", "no signing key configured")
	}
	gasLimit := op.GasLimit
	if gasLimit == 0 {
		quote, err := c.EstimateGas(ctx, op)
		if err != nil {
			return common.Hash{}, err
		}
		gasLimit = quote.GasUnits
	}
	value := op.Value
	if value == nil {
		value = new(big.Int)
	}

	c.nonceLock.Lock()
	defer c.nonceLock.Unlock()

	start := time.Now()
	var txHash common.Hash
	err := c.do(ctx, "send transaction", func(ctx context.Context) error {
		if !c.nonceInit {
			nonce, err := c.eth.PendingNonceAt(ctx, c.from)
			if err != nil {
				return err
			}
			c.nonce = nonce
			c.nonceInit = true
		}
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		tx := gethTypes.NewTransaction(c.nonce, op.To, value, gasLimit, gasPrice, op.Data)
		signed, err := gethTypes.SignTx(tx, gethTypes.NewEIP155Signer(new(big.Int).SetUint64(c.network.ChainID)), c.key)
		if err != nil {
			return err
		}
		if err := c.eth.SendTransaction(ctx, signed); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "nonce too low") {
				c.nonceInit = false
				return err
			}
			if strings.Contains(msg, "already known") {
				// The identical transaction is in the pool from an earlier
				// attempt whose response we lost.
				txHash = signed.Hash()
				c.nonce++
				return nil
			}
			return err
		}
		txHash = signed.Hash()
		c.nonce++
		return nil
	})
	if err != nil {
		sendFailures.WithLabelValues(c.network.Name).Inc()
		return common.Hash{}, err
	}
	sendLatency.WithLabelValues(c.network.Name).Observe(time.Since(start).Seconds())
	log.WithFields(logrus.Fields{
		"network":  c.network.Name,
		"txHash":   txHash.Hex(),
		"nonce":    c.nonce - 1,
		"gasLimit": gasLimit,
	}).Info("Broadcast transaction")
	return txHash, nil
}

// WaitReceipt polls for the receipt of txHash until it is mined, the
// deadline passes or ctx is canceled. A deadline of 0 uses the protocol
// confirm timeout. A mined receipt with failed status is returned together
// with a permanent error so callers can still read block and gas data.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash, deadline time.Duration) (*gethTypes.Receipt, error) {
	ctx, span := trace.StartSpan(ctx, "chain.WaitReceipt")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("network", c.network.Name))

	if c.eth == nil {
		return nil, apierror.New(apierror.Internal, "NOT_CONNECTED", "client is not connected")
	}
	if cached, ok := c.receipts.Get(txHash); ok {
		return c.receiptResult(txHash, cached.(*gethTypes.Receipt))
	}
	if deadline == 0 {
		deadline = params.Protocol().ConfirmTimeoutDuration()
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		pollCtx, cancelPoll := context.WithTimeout(ctx, c.rpcTimeout)
		receipt, err := c.eth.TransactionReceipt(pollCtx, txHash)
		cancelPoll()
		if err == nil && receipt != nil {
			c.receipts.Add(txHash, receipt)
			return c.receiptResult(txHash, receipt)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).WithField("network", c.network.Name).Debug("Receipt poll failed")
		}
		select {
		case <-ctx.Done():
			return nil, apierror.Wrap(ctx.Err(), apierror.RPCTransient, apierror.CodeRPCTransient,
				fmt.Sprintf("transaction %#x not confirmed within %s on %s", txHash, deadline, c.network.Name))
		case <-ticker.C:
		}
	}
}

func (c *Client) receiptResult(txHash common.Hash, receipt *gethTypes.Receipt) (*gethTypes.Receipt, error) {
	if receipt.Status == gethTypes.ReceiptStatusFailed {
		return receipt, apierror.Newf(apierror.RPCPermanent, apierror.CodeRPCPermanent,
			"transaction %#x reverted in block %d", txHash, receipt.BlockNumber.Uint64())
	}
	return receipt, nil
}

// Call executes a read-only contract call against the latest block and
// returns the ABI encoded result.
func (c *Client) Call(ctx context.Context, op TxOp) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "chain.Call")
	defer span.End()

	var out []byte
	err := c.do(ctx, "call contract", func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, ethereum.CallMsg{
			From: c.from,
			To:   &op.To,
			Data: op.Data,
		}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the current balance of addr in wei.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, span := trace.StartSpan(ctx, "chain.Balance")
	defer span.End()

	var balance *big.Int
	err := c.do(ctx, "balance", func(ctx context.Context) error {
		var err error
		balance, err = c.eth.BalanceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// DecodeAnchorEvent unpacks a MerkleRootAnchored log emitted by the anchor
// contract.
func (c *Client) DecodeAnchorEvent(l gethTypes.Log) (*AnchorEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != anchorcontract.AnchoredEventSignature {
		return nil, errors.New("log is not a MerkleRootAnchored event")
	}
	root, batchID, leafCount, timestamp, err := anchorcontract.UnpackAnchoredLogData(l.Data)
	if err != nil {
		return nil, errors.Wrap(err, "could not unpack MerkleRootAnchored data")
	}
	return &AnchorEvent{
		Root:      root,
		BatchID:   batchID.Uint64(),
		LeafCount: leafCount.Uint64(),
		Timestamp: timestamp.Uint64(),
	}, nil
}

// do runs op under the per attempt timeout, retrying transient failures
// with exponential backoff until the attempt budget is spent. The final
// transient failure is reclassified permanent so callers stop retrying too.
func (c *Client) do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if c.eth == nil {
		return apierror.New(apierror.Internal, "NOT_CONNECTED", "client is not connected")
	}
	backoff := c.baseBackoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.refreshAuth()
		attemptCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
		err = op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !retriable(err) {
			return apierror.Wrap(err, apierror.RPCPermanent, apierror.CodeRPCPermanent,
				fmt.Sprintf("could not %s on %s", name, c.network.Name))
		}
		if attempt == c.maxAttempts {
			break
		}
		rpcRetries.WithLabelValues(c.network.Name).Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"network": c.network.Name,
			"op":      name,
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Transient RPC failure, backing off")
		select {
		case <-ctx.Done():
			return apierror.Wrap(ctx.Err(), apierror.RPCTransient, apierror.CodeRPCTransient,
				fmt.Sprintf("could not %s on %s", name, c.network.Name))
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return apierror.Wrap(err, apierror.RPCPermanent, apierror.CodeRPCPermanent,
		fmt.Sprintf("could not %s on %s after %d attempts", name, c.network.Name, c.maxAttempts))
}

// retriable reports whether an RPC failure is worth another attempt.
func retriable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentRPCErrors {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
