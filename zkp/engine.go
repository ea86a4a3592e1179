package zkp

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/config/params"
	"github.com/zkiotchain/zkiot/crypto/rand"
)

var log = logrus.WithField("prefix", "zkp")

// replayCleanupInterval is how often expired replay entries are purged.
const replayCleanupInterval = time.Minute

// CommitmentSource supplies the registered commitment for a device.
// Unknown devices are reported with a NotFound taxonomy error.
type CommitmentSource interface {
	Commitment(ctx context.Context, deviceID string) (commitment [32]byte, active bool, err error)
}

// Config options for the proof engine.
type Config struct {
	// Devices resolves registered commitments at verification time.
	Devices CommitmentSource
	// Scheme selects the strategy used to generate proofs. Defaults to
	// SIMPLE. Verification always dispatches on the proof's own scheme.
	Scheme SchemeName
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine generates and verifies authentication proofs. Freshness and
// replay policy live here so every scheme back-end behaves identically.
type Engine struct {
	devices CommitmentSource
	scheme  Scheme
	replay  *cache.Cache
	window  time.Duration
	now     func() time.Time
}

// NewEngine constructs the engine with a replay cache sized to the
// protocol validity window.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil || cfg.Devices == nil {
		return nil, errors.New("commitment source required")
	}
	name := cfg.Scheme
	if name == "" {
		name = SchemeSimple
	}
	scheme, err := ForName(name)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	window := params.Protocol().ValidityWindowDuration()
	return &Engine{
		devices: cfg.Devices,
		scheme:  scheme,
		replay:  cache.New(window, replayCleanupInterval),
		window:  window,
		now:     now,
	}, nil
}

// Scheme returns the engine's generation strategy name.
func (e *Engine) Scheme() SchemeName {
	return e.scheme.Name()
}

// Generate builds a proof for the device at the given timestamp with a
// fresh random nonce.
func (e *Engine) Generate(deviceID string, secret []byte, timestamp uint64) (*Proof, error) {
	var nonce [16]byte
	if _, err := rand.NewGenerator().Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "could not draw nonce")
	}
	return e.GenerateWithNonce(deviceID, secret, nonce, timestamp)
}

// GenerateWithNonce builds a proof with caller-chosen attempt
// coordinates. Resubmitting the same (device, nonce, timestamp) is how
// replay detection is exercised end to end.
func (e *Engine) GenerateWithNonce(deviceID string, secret []byte, nonce [16]byte, timestamp uint64) (*Proof, error) {
	proof, err := e.scheme.Generate(deviceID, secret, nonce, timestamp)
	if err != nil {
		return nil, err
	}
	generatedCounter.WithLabelValues(string(e.scheme.Name())).Inc()
	return proof, nil
}

// Verify checks the proof against the current clock.
func (e *Engine) Verify(ctx context.Context, proof *Proof) error {
	return e.VerifyAt(ctx, proof, e.now())
}

// VerifyAt checks freshness, resolves the device, dispatches to the
// proof's scheme, and records the attempt in the replay cache. The
// replay entry is only written for proofs that pass every other check,
// so a failed attempt does not burn its coordinates.
func (e *Engine) VerifyAt(ctx context.Context, proof *Proof, at time.Time) error {
	if proof == nil {
		return apierror.New(apierror.Validation, apierror.CodeBadProof, "no proof supplied")
	}

	drift := at.Unix() - int64(proof.Timestamp)
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > e.window {
		verifiedCounter.WithLabelValues(resultStale).Inc()
		return apierror.Newf(apierror.StaleProof, apierror.CodeStaleProof,
			"proof timestamp outside validity window of %s", e.window)
	}

	registered, active, err := e.devices.Commitment(ctx, proof.DeviceID)
	if err != nil {
		if apierror.IsKind(err, apierror.NotFound) {
			verifiedCounter.WithLabelValues(resultUnknownDevice).Inc()
			return apierror.Newf(apierror.NotFound, apierror.CodeUnknownDevice, "device %s is not registered", proof.DeviceID)
		}
		verifiedCounter.WithLabelValues(resultError).Inc()
		return errors.Wrap(err, "could not resolve device commitment")
	}
	if !active {
		verifiedCounter.WithLabelValues(resultInactiveDevice).Inc()
		return apierror.Newf(apierror.Forbidden, apierror.CodeInactiveDevice, "device %s is deactivated", proof.DeviceID)
	}

	scheme, err := ForName(proof.Scheme)
	if err != nil {
		verifiedCounter.WithLabelValues(resultBadProof).Inc()
		return apierror.Wrap(err, apierror.Validation, apierror.CodeBadProof, "unsupported proof scheme")
	}
	if err := scheme.Verify(proof, registered); err != nil {
		verifiedCounter.WithLabelValues(resultBadProof).Inc()
		return err
	}

	key := ReplayKey(proof.DeviceID, proof.Nonce, proof.Timestamp)
	if err := e.replay.Add(hex.EncodeToString(key[:]), proof.Response, cache.DefaultExpiration); err != nil {
		verifiedCounter.WithLabelValues(resultReplay).Inc()
		log.WithFields(logrus.Fields{
			"deviceID":  proof.DeviceID,
			"timestamp": proof.Timestamp,
		}).Warn("Replayed authentication attempt rejected")
		return apierror.New(apierror.Replay, apierror.CodeReplay, "proof coordinates already used")
	}

	verifiedCounter.WithLabelValues(resultOK).Inc()
	return nil
}

// ReplaySize reports the number of live replay entries.
func (e *Engine) ReplaySize() int {
	return e.replay.ItemCount()
}
