// Package anchor runs the batching pipeline. Telemetry enters through
// Ingest, which fixes the canonical payload and its leaf hash at submit
// time. AnchorPending snapshots everything unbatched under the pipeline
// lock, builds the Merkle tree, persists the batch in one two-phase
// store write, then releases the lock before handing the batch to the
// cross-chain dispatcher. At most one assembly runs at a time.
package anchor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/trailofbits/go-mutexasserts"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/async"
	"github.com/zkiotchain/zkiot/container/trie"
	"github.com/zkiotchain/zkiot/crosschain"
	"github.com/zkiotchain/zkiot/encoding/tuple"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/types"
	"go.opencensus.io/trace"
	"golang.org/x/exp/slices"
)

var log = logrus.WithField("prefix", "anchor")

// treeCacheSize bounds how many rebuilt batch trees stay resident for
// proof serving.
const treeCacheSize = 64

// BatchStore is the slice of the database the pipeline reads and writes.
type BatchStore interface {
	Device(ctx context.Context, deviceID string) (*types.Device, error)
	AppendPending(ctx context.Context, datum *types.PendingDatum) (*types.PendingDatum, error)
	BumpDeviceSubmissions(ctx context.Context, deviceID string) (uint64, error)
	PendingOrdered(ctx context.Context) ([]*types.PendingDatum, error)
	PendingCount(ctx context.Context) (int, error)
	Batch(ctx context.Context, batchID uint64) (*types.MerkleBatch, error)
	BatchLeaves(ctx context.Context, batchID uint64) ([]*types.PendingDatum, error)
	CreateBatchWithLeaves(ctx context.Context, batch *types.MerkleBatch, datumSeqs []uint64) (*types.MerkleBatch, error)
}

// Dispatcher fans an assembled batch out to its target chains.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch *types.MerkleBatch, targets []string) ([]*crosschain.ChainResult, error)
	IsRootAnchored(ctx context.Context, target string, root [32]byte) (bool, error)
}

// Config holds the pipeline's dependencies and trigger policy.
type Config struct {
	Store      BatchStore
	Dispatcher Dispatcher
	Notifier   events.Notifier
	// Interval enables the periodic trigger when positive. Zero leaves
	// anchoring purely on demand.
	Interval time.Duration
	// MinLeaves holds automatic anchoring until this many records are
	// pending. Zero disables the count threshold.
	MinLeaves int
	// MaxAge triggers an automatic anchor once the oldest pending record
	// is this old, regardless of count. Zero disables the age threshold.
	MaxAge time.Duration
	// Targets are the networks automatic anchors dispatch to. Empty
	// means the active network.
	Targets []string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Result summarizes one anchoring run.
type Result struct {
	BatchID   uint64                    `json:"batch_id"`
	Root      string                    `json:"merkle_root"`
	LeafCount uint64                    `json:"leaf_count"`
	Chains    []*crosschain.ChainResult `json:"chains"`
}

// Dispatched lists the chains whose anchor transaction was broadcast.
func (r *Result) Dispatched() []string {
	var out []string
	for _, c := range r.Chains {
		if c.Status == types.AnchorPending {
			out = append(out, c.Chain)
		}
	}
	return out
}

// Failed lists the chains that failed before broadcast.
func (r *Result) Failed() []string {
	var out []string
	for _, c := range r.Chains {
		if c.Status == types.AnchorFailed {
			out = append(out, c.Chain)
		}
	}
	return out
}

// Service owns batch assembly and proof serving.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	now    func() time.Time

	// assembleLock serializes batch assembly. It must never be held
	// across a dispatcher or RPC call.
	assembleLock sync.Mutex

	trees      *ristretto.Cache
	ingestRate *ratecounter.RateCounter
}

// New validates the dependencies and builds the pipeline service.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil || cfg.Dispatcher == nil || cfg.Notifier == nil {
		return nil, errors.New("anchor service requires store, dispatcher and notifier")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	trees, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: treeCacheSize * 10, // number of keys to track frequency of.
		MaxCost:     treeCacheSize,      // each resident tree costs 1.
		BufferItems: 64,                 // number of keys per Get buffer.
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create tree cache")
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		now:        now,
		trees:      trees,
		ingestRate: ratecounter.NewRateCounter(time.Minute),
	}, nil
}

// Start launches the periodic trigger when an interval is configured.
func (s *Service) Start() {
	if s.cfg.Interval <= 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"interval":  s.cfg.Interval,
		"minLeaves": s.cfg.MinLeaves,
		"maxAge":    s.cfg.MaxAge,
	}).Info("Automatic anchoring enabled")
	async.RunEvery(s.ctx, s.cfg.Interval, s.maybeAnchor)
}

// Stop ends the trigger loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status implements the runtime service contract.
func (s *Service) Status() error {
	return nil
}

// Ingest validates, canonicalizes and stores one telemetry submission.
// The leaf hash is fixed here, at submit time, so batch assembly never
// re-reads payloads.
func (s *Service) Ingest(ctx context.Context, deviceID, dataType string, payload []byte) (*types.PendingDatum, error) {
	ctx, span := trace.StartSpan(ctx, "anchor.Ingest")
	defer span.End()

	device, err := s.cfg.Store.Device(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.Active {
		return nil, apierror.Newf(apierror.Forbidden, apierror.CodeInactiveDevice, "device %s is deactivated", deviceID)
	}
	canonical, err := tuple.CanonicalJSON(payload)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.Validation, "BAD_PAYLOAD", "payload is not valid JSON")
	}

	stored, err := s.cfg.Store.AppendPending(ctx, &types.PendingDatum{
		DeviceID:    deviceID,
		Payload:     canonical,
		SubmittedAt: uint64(s.now().Unix()),
		LeafHash:    trie.LeafHash(canonical),
	})
	if err != nil {
		return nil, err
	}
	total, err := s.cfg.Store.BumpDeviceSubmissions(ctx, deviceID)
	if err != nil {
		log.WithError(err).WithField("deviceID", deviceID).Error("Could not bump submission counter")
	}
	s.ingestRate.Incr(1)
	ingestedCounter.Inc()
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: events.DataSubmitted,
		Data: &events.DataSubmittedData{
			DataID:   strconv.FormatUint(stored.Seq, 10),
			DeviceID: deviceID,
			DataType: dataType,
		},
	})
	log.WithFields(logrus.Fields{
		"deviceID": deviceID,
		"seq":      stored.Seq,
		"total":    total,
	}).Debug("Accepted telemetry submission")
	return stored, nil
}

// AnchorPending assembles every pending record into the next batch and
// hands it to the dispatcher. The pipeline lock covers the snapshot, the
// tree build and the batch write; it is released before any chain call.
func (s *Service) AnchorPending(ctx context.Context, targets []string, metadata string) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "anchor.AnchorPending")
	defer span.End()

	batch, err := s.assemble(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if mutexasserts.MutexLocked(&s.assembleLock) {
		return nil, errors.New("pipeline lock held across dispatch")
	}
	chains, err := s.cfg.Dispatcher.Dispatch(ctx, batch, targets)
	if err != nil {
		return nil, err
	}
	result := &Result{
		BatchID:   batch.BatchID,
		Root:      hexutil.Encode(batch.Root[:]),
		LeafCount: batch.LeafCount,
		Chains:    chains,
	}
	log.WithFields(logrus.Fields{
		"batchID":    batch.BatchID,
		"root":       result.Root,
		"leafCount":  batch.LeafCount,
		"dispatched": len(result.Dispatched()),
		"failed":     len(result.Failed()),
	}).Info("Anchored telemetry batch")
	return result, nil
}

func (s *Service) assemble(ctx context.Context, metadata string) (*types.MerkleBatch, error) {
	s.assembleLock.Lock()
	defer s.assembleLock.Unlock()

	started := time.Now()
	pending, err := s.cfg.Store.PendingOrdered(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, apierror.New(apierror.ConflictState, apierror.CodeNoPending, "no pending data to anchor")
	}
	sortPending(pending)

	leaves := make([][32]byte, len(pending))
	seqs := make([]uint64, len(pending))
	for i, datum := range pending {
		leaves[i] = datum.LeafHash
		seqs[i] = datum.Seq
	}
	tree, err := trie.GenerateTreeFromLeaves(leaves)
	if err != nil {
		return nil, err
	}

	batch, err := s.cfg.Store.CreateBatchWithLeaves(ctx, &types.MerkleBatch{
		LeafCount: uint64(len(leaves)),
		Root:      tree.Root(),
		CreatedAt: uint64(s.now().Unix()),
		Metadata:  metadata,
	}, seqs)
	if err != nil {
		return nil, err
	}
	s.trees.Set(batch.BatchID, tree, 1)

	assembleLatency.Observe(time.Since(started).Seconds())
	batchLeaves.Observe(float64(batch.LeafCount))
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: events.BatchCreated,
		Data: &events.BatchCreatedData{
			BatchID:    batch.BatchID,
			MerkleRoot: hexutil.Encode(batch.Root[:]),
			LeafCount:  int(batch.LeafCount),
		},
	})
	return batch, nil
}

// sortPending orders records the way their leaves enter the tree:
// submission time, then device id, then insertion sequence.
func sortPending(pending []*types.PendingDatum) {
	slices.SortStableFunc(pending, func(a, b *types.PendingDatum) bool {
		if a.SubmittedAt != b.SubmittedAt {
			return a.SubmittedAt < b.SubmittedAt
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Seq < b.Seq
	})
}

// maybeAnchor applies the trigger policy on each periodic tick.
func (s *Service) maybeAnchor() {
	count, err := s.cfg.Store.PendingCount(s.ctx)
	if err != nil {
		log.WithError(err).Error("Could not read pending count")
		return
	}
	log.WithFields(logrus.Fields{
		"pending":      count,
		"ingestPerMin": s.ingestRate.Rate(),
	}).Debug("Anchor trigger sweep")
	if count == 0 || !s.thresholdMet(count) {
		return
	}
	if _, err := s.AnchorPending(s.ctx, s.cfg.Targets, "auto"); err != nil {
		if apierror.CodeOf(err) == apierror.CodeNoPending {
			return
		}
		log.WithError(err).Error("Automatic anchor failed")
	}
}

func (s *Service) thresholdMet(count int) bool {
	if s.cfg.MinLeaves <= 0 && s.cfg.MaxAge <= 0 {
		return true
	}
	if s.cfg.MinLeaves > 0 && count >= s.cfg.MinLeaves {
		return true
	}
	if s.cfg.MaxAge > 0 {
		age, err := s.oldestPendingAge()
		if err != nil {
			log.WithError(err).Error("Could not read oldest pending age")
			return false
		}
		if age >= s.cfg.MaxAge {
			return true
		}
	}
	return false
}

func (s *Service) oldestPendingAge() (time.Duration, error) {
	pending, err := s.cfg.Store.PendingOrdered(s.ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	oldest := pending[0].SubmittedAt
	for _, datum := range pending[1:] {
		if datum.SubmittedAt < oldest {
			oldest = datum.SubmittedAt
		}
	}
	return time.Duration(s.now().Unix()-int64(oldest)) * time.Second, nil
}
