package anchor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/container/trie"
	"github.com/zkiotchain/zkiot/crosschain"
	"github.com/zkiotchain/zkiot/db"
	dbtest "github.com/zkiotchain/zkiot/db/testing"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
)

// fakeClock is a hand-advanced clock shared between the test and the
// service under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = at
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeDispatcher records every dispatched batch and answers on-chain
// root queries from a scripted table.
type fakeDispatcher struct {
	mu       sync.Mutex
	batches  []*types.MerkleBatch
	targets  [][]string
	results  []*crosschain.ChainResult
	anchored map[string]bool
	queries  [][32]byte
}

func (f *fakeDispatcher) Dispatch(_ context.Context, batch *types.MerkleBatch, targets []string) ([]*crosschain.ChainResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	f.targets = append(f.targets, append([]string(nil), targets...))
	if f.results != nil {
		return f.results, nil
	}
	return []*crosschain.ChainResult{{Chain: "sepolia", Status: types.AnchorPending, TxHash: "0x0101"}}, nil
}

func (f *fakeDispatcher) IsRootAnchored(_ context.Context, target string, root [32]byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, root)
	return f.anchored[target], nil
}

func (f *fakeDispatcher) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeDispatcher) lastBatch() *types.MerkleBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeDispatcher) lastTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targets) == 0 {
		return nil
	}
	return f.targets[len(f.targets)-1]
}

func (f *fakeDispatcher) setAnchored(target string, anchored bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchored[target] = anchored
}

func (f *fakeDispatcher) rootQueries() [][32]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][32]byte(nil), f.queries...)
}

// recordingNotifier collects published events on a buffered subscription.
type recordingNotifier struct {
	feed *event.Feed
	ch   chan *events.Event
}

func newRecordingNotifier() *recordingNotifier {
	n := &recordingNotifier{
		feed: new(event.Feed),
		ch:   make(chan *events.Event, 128),
	}
	n.feed.Subscribe(n.ch)
	return n
}

func (n *recordingNotifier) EventFeed() *event.Feed {
	return n.feed
}

func (n *recordingNotifier) next(t *testing.T) *events.Event {
	t.Helper()
	select {
	case ev := <-n.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
	return nil
}

// awaitBatchCreated discards events until a batch creation arrives.
func (n *recordingNotifier) awaitBatchCreated(t *testing.T) *events.BatchCreatedData {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-n.ch:
			if data, ok := ev.Data.(*events.BatchCreatedData); ok {
				return data
			}
		case <-deadline:
			t.Fatal("no batch created event")
			return nil
		}
	}
}

type anchorEnv struct {
	svc      *Service
	store    db.Database
	dispatch *fakeDispatcher
	notifier *recordingNotifier
	clock    *fakeClock
}

func setupAnchor(t *testing.T, mutate func(cfg *Config)) *anchorEnv {
	store := dbtest.SetupDB(t)
	dispatch := &fakeDispatcher{anchored: make(map[string]bool)}
	notifier := newRecordingNotifier()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg := &Config{
		Store:      store,
		Dispatcher: dispatch,
		Notifier:   notifier,
		Now:        clock.now,
	}
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Stop())
	})
	return &anchorEnv{svc: svc, store: store, dispatch: dispatch, notifier: notifier, clock: clock}
}

func registerDevice(t *testing.T, store db.Database, deviceID string) {
	t.Helper()
	require.NoError(t, store.SaveDevice(context.Background(), &types.Device{
		DeviceID:     deviceID,
		Name:         deviceID,
		Kind:         "sensor",
		RegisteredAt: 1700000000,
		Active:       true,
	}))
}

// waitForBatches blocks until the store holds at least want batches.
func waitForBatches(t *testing.T, store db.Database, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		latest, err := store.LatestBatchID(context.Background())
		require.NoError(t, err)
		if latest >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no batch %d assembled", want)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.ErrorContains(t, "requires store", err)
	_, err = New(context.Background(), &Config{})
	require.ErrorContains(t, "requires store", err)
}

func TestIngest_FixesLeafHashAtSubmit(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")

	canonical := []byte(`{"a":1,"b":2}`)
	stored, err := env.svc.Ingest(context.Background(), "sensor-a", "temperature", []byte(`{ "b" : 2, "a" : 1 }`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.Seq)
	assert.DeepEqual(t, canonical, stored.Payload)
	assert.Equal(t, trie.LeafHash(canonical), stored.LeafHash)
	assert.Equal(t, uint64(1700000000), stored.SubmittedAt)

	device, err := env.store.Device(context.Background(), "sensor-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), device.TotalDataSubmitted)

	ev := env.notifier.next(t)
	assert.Equal(t, events.DataSubmitted, ev.Type)
	data, ok := ev.Data.(*events.DataSubmittedData)
	require.Equal(t, true, ok)
	assert.Equal(t, "1", data.DataID)
	assert.Equal(t, "sensor-a", data.DeviceID)
	assert.Equal(t, "temperature", data.DataType)
}

func TestIngest_Validation(t *testing.T) {
	env := setupAnchor(t, nil)

	_, err := env.svc.Ingest(context.Background(), "ghost", "temperature", []byte(`{}`))
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))
	assert.Equal(t, apierror.CodeUnknownDevice, apierror.CodeOf(err))

	registerDevice(t, env.store, "sensor-a")
	require.NoError(t, env.store.SetDeviceActive(context.Background(), "sensor-a", false))
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "temperature", []byte(`{}`))
	require.ErrorContains(t, "deactivated", err)
	assert.Equal(t, true, apierror.IsKind(err, apierror.Forbidden))
	assert.Equal(t, apierror.CodeInactiveDevice, apierror.CodeOf(err))

	require.NoError(t, env.store.SetDeviceActive(context.Background(), "sensor-a", true))
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "temperature", []byte(`{"broken`))
	require.ErrorContains(t, "not valid JSON", err)
	assert.Equal(t, true, apierror.IsKind(err, apierror.Validation))

	count, err := env.store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAnchorPending_RootAndDensity(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")

	payloads := [][]byte{[]byte(`{"v":1}`), []byte(`{"v":2}`), []byte(`{"v":3}`)}
	for _, p := range payloads {
		env.clock.advance(time.Second)
		_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", p)
		require.NoError(t, err)
	}

	result, err := env.svc.AnchorPending(context.Background(), []string{"sepolia"}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.BatchID)
	assert.Equal(t, uint64(3), result.LeafCount)
	assert.DeepEqual(t, []string{"sepolia"}, result.Dispatched())
	assert.Equal(t, 0, len(result.Failed()))

	// Three leaves duplicate the last one at the first level.
	l1 := trie.LeafHash(payloads[0])
	l2 := trie.LeafHash(payloads[1])
	l3 := trie.LeafHash(payloads[2])
	wantRoot := trie.NodeHash(trie.NodeHash(l1, l2), trie.NodeHash(l3, l3))
	assert.Equal(t, hexutil.Encode(wantRoot[:]), result.Root)

	batch, err := env.store.Batch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, batch.Root)
	assert.Equal(t, "run-1", batch.Metadata)
	assert.Equal(t, types.BatchReady, batch.State)

	require.Equal(t, 1, env.dispatch.dispatchCount())
	assert.Equal(t, wantRoot, env.dispatch.lastBatch().Root)
	assert.DeepEqual(t, []string{"sepolia"}, env.dispatch.lastTargets())

	created := env.notifier.awaitBatchCreated(t)
	assert.Equal(t, uint64(1), created.BatchID)
	assert.Equal(t, 3, created.LeafCount)
	assert.Equal(t, result.Root, created.MerkleRoot)

	count, err := env.store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Batch ids stay dense across runs.
	env.clock.advance(time.Second)
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":4}`))
	require.NoError(t, err)
	second, err := env.svc.AnchorPending(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.BatchID)
	assert.Equal(t, uint64(1), second.LeafCount)
}

func TestAnchorPending_NoPending(t *testing.T) {
	env := setupAnchor(t, nil)

	_, err := env.svc.AnchorPending(context.Background(), nil, "")
	require.ErrorContains(t, "no pending data to anchor", err)
	assert.Equal(t, true, apierror.IsKind(err, apierror.ConflictState))
	assert.Equal(t, apierror.CodeNoPending, apierror.CodeOf(err))
	assert.Equal(t, 0, env.dispatch.dispatchCount())
}

func TestAnchorPending_LeafOrderFollowsSubmissionTime(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")
	registerDevice(t, env.store, "sensor-b")

	// Insertion order disagrees with submission time.
	env.clock.set(time.Unix(1700000200, 0))
	_, err := env.svc.Ingest(context.Background(), "sensor-b", "reading", []byte(`{"late":true}`))
	require.NoError(t, err)
	env.clock.set(time.Unix(1700000100, 0))
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"early":true}`))
	require.NoError(t, err)

	result, err := env.svc.AnchorPending(context.Background(), nil, "")
	require.NoError(t, err)

	early := trie.LeafHash([]byte(`{"early":true}`))
	late := trie.LeafHash([]byte(`{"late":true}`))
	wantRoot := trie.NodeHash(early, late)
	assert.Equal(t, hexutil.Encode(wantRoot[:]), result.Root)

	leaves, err := env.store.BatchLeaves(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.Equal(t, 2, len(leaves))
	assert.Equal(t, "sensor-a", leaves[0].DeviceID)
	assert.Equal(t, "sensor-b", leaves[1].DeviceID)

	// Equal timestamps fall back to device id.
	env.clock.set(time.Unix(1700000300, 0))
	_, err = env.svc.Ingest(context.Background(), "sensor-b", "reading", []byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"n":2}`))
	require.NoError(t, err)
	second, err := env.svc.AnchorPending(context.Background(), nil, "")
	require.NoError(t, err)
	wantSecond := trie.NodeHash(trie.LeafHash([]byte(`{"n":2}`)), trie.LeafHash([]byte(`{"n":1}`)))
	assert.Equal(t, hexutil.Encode(wantSecond[:]), second.Root)
}

func TestInclusionProof_RoundTrip(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")

	payloads := [][]byte{[]byte(`{"v":1}`), []byte(`{"v":2}`), []byte(`{"v":3}`), []byte(`{"v":4}`)}
	for _, p := range payloads {
		env.clock.advance(time.Second)
		_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", p)
		require.NoError(t, err)
	}
	result, err := env.svc.AnchorPending(context.Background(), nil, "")
	require.NoError(t, err)

	for i, p := range payloads {
		leaf := trie.LeafHash(p)
		steps, index, err := env.svc.InclusionProof(context.Background(), result.BatchID, leaf)
		require.NoError(t, err)
		assert.Equal(t, i, index)
		valid, err := env.svc.VerifyInclusion(context.Background(), result.BatchID, leaf, steps)
		require.NoError(t, err)
		assert.Equal(t, true, valid)

		// Any flipped sibling byte breaks verification.
		tampered := append([]trie.ProofStep(nil), steps...)
		tampered[0].Sibling[0] ^= 0xff
		valid, err = env.svc.VerifyInclusion(context.Background(), result.BatchID, leaf, tampered)
		require.NoError(t, err)
		assert.Equal(t, false, valid)
	}

	_, _, err = env.svc.InclusionProof(context.Background(), result.BatchID, trie.LeafHash([]byte(`{"v":9}`)))
	require.ErrorContains(t, "is not part of batch", err)
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))

	_, _, err = env.svc.InclusionProof(context.Background(), 42, trie.LeafHash(payloads[0]))
	assert.Equal(t, apierror.CodeBatchNotFound, apierror.CodeOf(err))

	// A fresh service holds no resident trees and proves from the store.
	rebuilt, err := New(context.Background(), &Config{Store: env.store, Dispatcher: env.dispatch, Notifier: env.notifier})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, rebuilt.Stop())
	})
	steps, index, err := rebuilt.InclusionProof(context.Background(), result.BatchID, trie.LeafHash(payloads[2]))
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	valid, err := rebuilt.VerifyInclusion(context.Background(), result.BatchID, trie.LeafHash(payloads[2]), steps)
	require.NoError(t, err)
	assert.Equal(t, true, valid)
}

func TestVerifyAgainstChain(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")

	_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":1}`))
	require.NoError(t, err)
	result, err := env.svc.AnchorPending(context.Background(), []string{"sepolia"}, "")
	require.NoError(t, err)

	env.dispatch.setAnchored("sepolia", true)
	anchored, err := env.svc.VerifyAgainstChain(context.Background(), result.BatchID, "sepolia")
	require.NoError(t, err)
	assert.Equal(t, true, anchored)

	anchored, err = env.svc.VerifyAgainstChain(context.Background(), result.BatchID, "bscTestnet")
	require.NoError(t, err)
	assert.Equal(t, false, anchored)

	batch, err := env.store.Batch(context.Background(), result.BatchID)
	require.NoError(t, err)
	queries := env.dispatch.rootQueries()
	require.Equal(t, 2, len(queries))
	assert.Equal(t, batch.Root, queries[0])

	_, err = env.svc.VerifyAgainstChain(context.Background(), 42, "sepolia")
	assert.Equal(t, apierror.CodeBatchNotFound, apierror.CodeOf(err))
}

func TestAutomaticTrigger_MinLeaves(t *testing.T) {
	env := setupAnchor(t, func(cfg *Config) {
		cfg.Interval = 10 * time.Millisecond
		cfg.MinLeaves = 2
		cfg.Targets = []string{"sepolia", "bscTestnet"}
	})
	registerDevice(t, env.store, "sensor-a")
	env.svc.Start()

	_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":1}`))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.dispatch.dispatchCount())

	env.clock.advance(time.Second)
	_, err = env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":2}`))
	require.NoError(t, err)
	waitForBatches(t, env.store, 1)
	assert.DeepEqual(t, []string{"sepolia", "bscTestnet"}, env.dispatch.lastTargets())

	batch, err := env.store.Batch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), batch.LeafCount)
	assert.Equal(t, "auto", batch.Metadata)
}

func TestAutomaticTrigger_MaxAge(t *testing.T) {
	env := setupAnchor(t, func(cfg *Config) {
		cfg.Interval = 10 * time.Millisecond
		cfg.MinLeaves = 100
		cfg.MaxAge = 5 * time.Minute
	})
	registerDevice(t, env.store, "sensor-a")
	env.svc.Start()

	_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":1}`))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.dispatch.dispatchCount())

	// One record stays far below the count threshold but ages out.
	env.clock.advance(10 * time.Minute)
	waitForBatches(t, env.store, 1)

	batch, err := env.store.Batch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batch.LeafCount)
	assert.Equal(t, "auto", batch.Metadata)
}

func TestStart_OnDemandOnlyWithoutInterval(t *testing.T) {
	env := setupAnchor(t, nil)
	registerDevice(t, env.store, "sensor-a")
	env.svc.Start()

	_, err := env.svc.Ingest(context.Background(), "sensor-a", "reading", []byte(`{"v":1}`))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.dispatch.dispatchCount())

	latest, err := env.store.LatestBatchID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), latest)
}
