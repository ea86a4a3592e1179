// Package multisig drives threshold approval of sensitive operations.
// A proposal moves PENDING to APPROVED, REJECTED or EXPIRED, and
// APPROVED to EXECUTED or EXPIRED. Every transition is a single
// compare-and-set store write, so concurrent votes serialize in the
// persistence layer. Vote signatures are checked by a pluggable
// predicate over the signer's stored public key.
package multisig

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/async"
	"github.com/zkiotchain/zkiot/config/params"
	"github.com/zkiotchain/zkiot/crypto/hash"
	"github.com/zkiotchain/zkiot/encoding/tuple"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/types"
	"go.opencensus.io/trace"
	"golang.org/x/exp/slices"
)

var log = logrus.WithField("prefix", "multisig")

// ProposalStore is the slice of the database the state machine uses.
type ProposalStore interface {
	SaveProposal(ctx context.Context, proposal *types.Proposal) error
	Proposal(ctx context.Context, proposalID string) (*types.Proposal, error)
	Proposals(ctx context.Context) ([]*types.Proposal, error)
	UpdateProposalCAS(ctx context.Context, proposalID string, expected types.ProposalState, mutate func(*types.Proposal) error) (*types.Proposal, error)
	SaveSigner(ctx context.Context, signer *types.Signer) error
	DeactivateSigner(ctx context.Context, signerID string) error
	Signers(ctx context.Context) ([]*types.Signer, error)
}

// Handler executes one approved proposal kind and returns an artifact
// reference, e.g. the id of a created device.
type Handler func(ctx context.Context, payload []byte) (string, error)

// SignatureVerifier reports whether sig binds the signer's public key
// to message. The state machine treats both as opaque bytes.
type SignatureVerifier func(publicKey, message, sig []byte) bool

// Vote verdicts signed by approve and reject calls.
const (
	VerdictApprove = "APPROVE"
	VerdictReject  = "REJECT"
)

// VoteMessage is the canonical byte string a signer signs to cast a
// vote on a proposal.
func VoteMessage(proposalID, verdict string) []byte {
	return tuple.New().Str("VOTE").Str(proposalID).Str(verdict).Encode()
}

// VerifySecp256k1 is the default signature check: a secp256k1
// signature over the keccak digest of the message, checked against the
// signer's compressed or uncompressed public key. A 65 byte signature
// has its recovery byte dropped.
func VerifySecp256k1(publicKey, message, sig []byte) bool {
	if len(publicKey) == 0 || len(sig) < 64 {
		return false
	}
	digest := hash.Hash(message)
	return crypto.VerifySignature(publicKey, digest[:], sig[:64])
}

// Config holds the state machine's dependencies and policy knobs.
type Config struct {
	Store    ProposalStore
	Notifier events.Notifier
	// Verifier checks vote signatures. Nil selects VerifySecp256k1.
	Verifier SignatureVerifier
	// TTL bounds a proposal's lifetime. Zero selects the protocol
	// default.
	TTL time.Duration
	// SweepInterval is the expiry sweeper cadence. Zero selects the
	// protocol default.
	SweepInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service owns proposal transitions and the signer set.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	now    func() time.Time
	verify SignatureVerifier
	ttl    time.Duration

	// executeLock keeps a proposal's handler from running twice when
	// concurrent execute calls race ahead of the EXECUTED transition.
	executeLock sync.Mutex

	handlersLock sync.RWMutex
	handlers     map[types.ProposalKind]Handler
}

// New validates the dependencies and builds the state machine service.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil || cfg.Notifier == nil {
		return nil, errors.New("multisig service requires store and notifier")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	verify := cfg.Verifier
	if verify == nil {
		verify = VerifySecp256k1
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = params.Protocol().ProposalTTLDuration()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		now:      now,
		verify:   verify,
		ttl:      ttl,
		handlers: make(map[types.ProposalKind]Handler),
	}, nil
}

// RegisterHandler binds a proposal kind to its execution path. Kinds
// without a handler cannot be proposed.
func (s *Service) RegisterHandler(kind types.ProposalKind, handler Handler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.handlers[kind] = handler
}

func (s *Service) handlerFor(kind types.ProposalKind) (Handler, bool) {
	s.handlersLock.RLock()
	defer s.handlersLock.RUnlock()
	handler, ok := s.handlers[kind]
	return handler, ok
}

// Start launches the expiry sweeper.
func (s *Service) Start() {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = params.Protocol().ProposalSweepDuration()
	}
	async.RunEvery(s.ctx, interval, s.sweepExpired)
}

// Stop ends the sweeper.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status implements the runtime service contract.
func (s *Service) Status() error {
	return nil
}

// Propose creates a PENDING proposal for a registered kind.
func (s *Service) Propose(ctx context.Context, kind types.ProposalKind, payload []byte, required uint64, proposer string) (*types.Proposal, error) {
	ctx, span := trace.StartSpan(ctx, "multisig.Propose")
	defer span.End()

	if _, ok := s.handlerFor(kind); !ok {
		return nil, apierror.Newf(apierror.Validation, "UNKNOWN_KIND", "no handler registered for proposal kind %s", kind)
	}
	if required < 1 {
		return nil, apierror.New(apierror.Validation, "INVALID_THRESHOLD", "required approvals must be at least 1")
	}
	now := uint64(s.now().Unix())
	proposal := &types.Proposal{
		ID:                uuid.New().String(),
		Kind:              kind,
		Payload:           payload,
		Proposer:          proposer,
		RequiredApprovals: required,
		Approvals:         []string{},
		Rejections:        []string{},
		State:             types.ProposalPending,
		CreatedAt:         now,
		ExpiresAt:         now + uint64(s.ttl.Seconds()),
	}
	if err := s.cfg.Store.SaveProposal(ctx, proposal); err != nil {
		return nil, err
	}
	proposalsCreated.Inc()
	s.emit(events.ProposalCreated, proposal, "")
	log.WithFields(logrus.Fields{
		"proposalID": proposal.ID,
		"kind":       kind,
		"required":   required,
		"proposer":   proposer,
	}).Info("Created proposal")
	return proposal, nil
}

// Approve records an approval vote. Reaching the approval threshold
// moves the proposal to APPROVED.
func (s *Service) Approve(ctx context.Context, proposalID, signerID string, sig []byte) (*types.Proposal, error) {
	ctx, span := trace.StartSpan(ctx, "multisig.Approve")
	defer span.End()

	return s.vote(ctx, proposalID, signerID, sig, VerdictApprove)
}

// Reject records a rejection vote. Once approval can no longer be
// reached the proposal moves to REJECTED.
func (s *Service) Reject(ctx context.Context, proposalID, signerID string, sig []byte) (*types.Proposal, error) {
	ctx, span := trace.StartSpan(ctx, "multisig.Reject")
	defer span.End()

	return s.vote(ctx, proposalID, signerID, sig, VerdictReject)
}

func (s *Service) vote(ctx context.Context, proposalID, signerID string, sig []byte, verdict string) (*types.Proposal, error) {
	proposal, err := s.cfg.Store.Proposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.State != types.ProposalPending {
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeInvalidState,
			"proposal %s is %s, votes require PENDING", proposalID, proposal.State)
	}
	if s.pastExpiry(proposal) {
		s.expireNow(ctx, proposalID, types.ProposalPending)
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeProposalExpired,
			"proposal %s expired at %d", proposalID, proposal.ExpiresAt)
	}

	signers, err := s.cfg.Store.Signers(ctx)
	if err != nil {
		return nil, err
	}
	var voter *types.Signer
	activeCount := 0
	for _, signer := range signers {
		if signer.Active {
			activeCount++
		}
		if signer.SignerID == signerID {
			voter = signer
		}
	}
	if voter == nil {
		return nil, apierror.Newf(apierror.NotFound, apierror.CodeUnknownSigner, "no signer with id %s", signerID)
	}
	if !voter.Active {
		return nil, apierror.Newf(apierror.Forbidden, "INACTIVE_SIGNER", "signer %s is deactivated", signerID)
	}
	if !s.verify(voter.PublicKey, VoteMessage(proposalID, verdict), sig) {
		return nil, apierror.Newf(apierror.Unauthenticated, "BAD_SIGNATURE", "vote signature by %s does not verify", signerID)
	}

	crossed := false
	updated, err := s.transition(ctx, proposalID, types.ProposalPending, func(p *types.Proposal) error {
		crossed = false
		switch verdict {
		case VerdictApprove:
			if p.HasRejection(signerID) {
				return apierror.Newf(apierror.ConflictState, "VOTE_CONFLICT", "signer %s already rejected proposal %s", signerID, p.ID)
			}
			if p.HasApproval(signerID) {
				return nil
			}
			p.Approvals = append(p.Approvals, signerID)
			if uint64(len(p.Approvals)) >= p.RequiredApprovals {
				p.State = types.ProposalApproved
			}
		default:
			if p.HasApproval(signerID) {
				return apierror.Newf(apierror.ConflictState, "VOTE_CONFLICT", "signer %s already approved proposal %s", signerID, p.ID)
			}
			if p.HasRejection(signerID) {
				return nil
			}
			p.Rejections = append(p.Rejections, signerID)
			if len(p.Rejections) >= rejectionThreshold(activeCount, p.RequiredApprovals) {
				p.State = types.ProposalRejected
			}
		}
		crossed = p.State != types.ProposalPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	if crossed {
		transitions.WithLabelValues(string(updated.State)).Inc()
		switch updated.State {
		case types.ProposalApproved:
			s.emit(events.ProposalApproved, updated, signerID)
		case types.ProposalRejected:
			s.emit(events.ProposalRejected, updated, signerID)
		}
		log.WithFields(logrus.Fields{
			"proposalID": proposalID,
			"state":      updated.State,
			"signer":     signerID,
		}).Info("Proposal crossed voting threshold")
	}
	return updated, nil
}

// Execute runs the handler for an APPROVED proposal. Handler failure
// leaves the proposal APPROVED so execution can be retried.
func (s *Service) Execute(ctx context.Context, proposalID string) (*types.Proposal, error) {
	ctx, span := trace.StartSpan(ctx, "multisig.Execute")
	defer span.End()

	s.executeLock.Lock()
	defer s.executeLock.Unlock()

	proposal, err := s.cfg.Store.Proposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.State != types.ProposalApproved {
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeInvalidState,
			"proposal %s is %s, only approved proposals execute", proposalID, proposal.State)
	}
	if s.pastExpiry(proposal) {
		s.expireNow(ctx, proposalID, types.ProposalApproved)
		return nil, apierror.Newf(apierror.ConflictState, apierror.CodeProposalExpired,
			"proposal %s expired at %d", proposalID, proposal.ExpiresAt)
	}
	handler, ok := s.handlerFor(proposal.Kind)
	if !ok {
		return nil, apierror.Newf(apierror.Validation, "UNKNOWN_KIND", "no handler registered for proposal kind %s", proposal.Kind)
	}
	artifact, err := handler(ctx, proposal.Payload)
	if err != nil {
		log.WithError(err).WithField("proposalID", proposalID).Warn("Proposal handler failed")
		return nil, errors.Wrapf(err, "could not execute proposal %s", proposalID)
	}
	updated, err := s.transition(ctx, proposalID, types.ProposalApproved, func(p *types.Proposal) error {
		p.State = types.ProposalExecuted
		p.Artifact = artifact
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("proposalID", proposalID).Error("Handler succeeded but EXECUTED transition failed")
		return nil, err
	}
	transitions.WithLabelValues(string(types.ProposalExecuted)).Inc()
	s.emit(events.ProposalExecuted, updated, "")
	log.WithFields(logrus.Fields{
		"proposalID": proposalID,
		"kind":       updated.Kind,
		"artifact":   artifact,
	}).Info("Executed proposal")
	return updated, nil
}

// GetProposal returns one proposal by id.
func (s *Service) GetProposal(ctx context.Context, proposalID string) (*types.Proposal, error) {
	return s.cfg.Store.Proposal(ctx, proposalID)
}

// ListProposals returns every proposal, newest first.
func (s *Service) ListProposals(ctx context.Context) ([]*types.Proposal, error) {
	proposals, err := s.cfg.Store.Proposals(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(proposals, func(a, b *types.Proposal) bool {
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID < b.ID
	})
	return proposals, nil
}

// AddSigner stores a new signer and announces it.
func (s *Service) AddSigner(ctx context.Context, signerID string, publicKey []byte) (*types.Signer, error) {
	ctx, span := trace.StartSpan(ctx, "multisig.AddSigner")
	defer span.End()

	if signerID == "" || len(publicKey) == 0 {
		return nil, apierror.New(apierror.Validation, "INVALID_SIGNER", "signer id and public key required")
	}
	signer := &types.Signer{
		SignerID:  signerID,
		PublicKey: publicKey,
		AddedAt:   uint64(s.now().Unix()),
		Active:    true,
	}
	if err := s.cfg.Store.SaveSigner(ctx, signer); err != nil {
		return nil, err
	}
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: events.SignerAdded,
		Data: &events.SignerAddedData{SignerID: signerID},
	})
	log.WithField("signerID", signerID).Info("Added signer")
	return signer, nil
}

// DeactivateSigner soft-removes a signer from the voting set.
func (s *Service) DeactivateSigner(ctx context.Context, signerID string) error {
	ctx, span := trace.StartSpan(ctx, "multisig.DeactivateSigner")
	defer span.End()

	if err := s.cfg.Store.DeactivateSigner(ctx, signerID); err != nil {
		return err
	}
	log.WithField("signerID", signerID).Info("Deactivated signer")
	return nil
}

// ListSigners returns the full signer set, active and inactive.
func (s *Service) ListSigners(ctx context.Context) ([]*types.Signer, error) {
	return s.cfg.Store.Signers(ctx)
}

// transition runs one CAS transition, retrying transient conflicts up
// to the protocol bound. A state that moved on is reported as an
// INVALID_STATE conflict rather than retried.
func (s *Service) transition(ctx context.Context, proposalID string, expected types.ProposalState, mutate func(*types.Proposal) error) (*types.Proposal, error) {
	var lastErr error
	for attempt := 0; attempt < params.Protocol().CASMaxRetries; attempt++ {
		updated, err := s.cfg.Store.UpdateProposalCAS(ctx, proposalID, expected, mutate)
		if err == nil {
			return updated, nil
		}
		if apierror.CodeOf(err) != apierror.CodeCASConflict {
			return nil, err
		}
		lastErr = err
		casRetries.Inc()
		current, readErr := s.cfg.Store.Proposal(ctx, proposalID)
		if readErr != nil {
			return nil, readErr
		}
		if current.State != expected {
			return nil, apierror.Newf(apierror.ConflictState, apierror.CodeInvalidState,
				"proposal %s is %s, not %s", proposalID, current.State, expected)
		}
	}
	return nil, lastErr
}

// sweepExpired retires every non-terminal proposal past its deadline.
func (s *Service) sweepExpired() {
	proposals, err := s.cfg.Store.Proposals(s.ctx)
	if err != nil {
		log.WithError(err).Error("Could not list proposals for expiry sweep")
		return
	}
	for _, proposal := range proposals {
		if proposal.State.Terminal() || !s.pastExpiry(proposal) {
			continue
		}
		s.expireNow(s.ctx, proposal.ID, proposal.State)
	}
}

// expireNow moves one proposal from its current state to EXPIRED. A
// conflict means another writer got there first and is not an error.
func (s *Service) expireNow(ctx context.Context, proposalID string, from types.ProposalState) {
	updated, err := s.transition(ctx, proposalID, from, func(p *types.Proposal) error {
		p.State = types.ProposalExpired
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("proposalID", proposalID).Debug("Skipped expiry transition")
		return
	}
	transitions.WithLabelValues(string(types.ProposalExpired)).Inc()
	s.emit(events.ProposalExpired, updated, "")
	log.WithFields(logrus.Fields{
		"proposalID": proposalID,
		"from":       from,
	}).Info("Expired proposal")
}

func (s *Service) pastExpiry(p *types.Proposal) bool {
	return uint64(s.now().Unix()) >= p.ExpiresAt
}

// rejectionThreshold is the rejection count that makes approval
// unreachable: active signers minus required approvals plus one,
// floored at one.
func rejectionThreshold(activeSigners int, required uint64) int {
	threshold := activeSigners - int(required) + 1
	if threshold < 1 {
		return 1
	}
	return threshold
}

func (s *Service) emit(eventType events.Type, p *types.Proposal, signer string) {
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: eventType,
		Data: &events.ProposalStateData{
			ProposalID: p.ID,
			Kind:       string(p.Kind),
			State:      string(p.State),
			Signer:     signer,
			Artifact:   p.Artifact,
		},
	})
}
