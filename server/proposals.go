package server

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/types"
	"go.opencensus.io/trace"
)

// Propose opens a multi-sig proposal. REGISTER_DEVICE payloads are
// validated up front so a malformed document cannot reach execution.
func (s *Service) Propose(ctx context.Context, req *ProposeRequest) (*ProposeResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.Propose")
	defer span.End()
	requestsTotal.WithLabelValues("Propose").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("Propose", err)
	}
	kind := types.ProposalKind(req.Kind)
	if kind == "" {
		kind = types.ProposalRegisterDevice
	}
	if kind == types.ProposalRegisterDevice {
		reg := &RegisterDeviceRequest{}
		if err := json.Unmarshal(req.Payload, reg); err != nil {
			return nil, s.fail("Propose", apierror.Wrap(err, apierror.Validation, codeBadRequest,
				"payload is not a registration document"))
		}
		if err := s.validate(reg); err != nil {
			return nil, s.fail("Propose", err)
		}
	}
	proposal, err := s.cfg.Multisig.Propose(ctx, kind, req.Payload, req.RequiredApprovals, req.Proposer)
	if err != nil {
		return nil, s.fail("Propose", err)
	}
	return &ProposeResponse{ProposalID: proposal.ID, ExpiresAt: proposal.ExpiresAt}, nil
}

// Approve casts an approving vote on a pending proposal.
func (s *Service) Approve(ctx context.Context, req *VoteRequest) (*VoteResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.Approve")
	defer span.End()
	requestsTotal.WithLabelValues("Approve").Inc()
	return s.vote(ctx, "Approve", req, s.cfg.Multisig.Approve)
}

// Reject casts a rejecting vote on a pending proposal.
func (s *Service) Reject(ctx context.Context, req *VoteRequest) (*VoteResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.Reject")
	defer span.End()
	requestsTotal.WithLabelValues("Reject").Inc()
	return s.vote(ctx, "Reject", req, s.cfg.Multisig.Reject)
}

func (s *Service) vote(ctx context.Context, handler string, req *VoteRequest,
	cast func(context.Context, string, string, []byte) (*types.Proposal, error)) (*VoteResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, s.fail(handler, err)
	}
	sig, err := decodeHexBytes("signature", req.Signature)
	if err != nil {
		return nil, s.fail(handler, err)
	}
	proposal, err := cast(ctx, req.ProposalID, req.SignerID, sig)
	if err != nil {
		return nil, s.fail(handler, err)
	}
	return &VoteResponse{ProposalID: proposal.ID, State: string(proposal.State)}, nil
}

// Execute runs an approved proposal's action.
func (s *Service) Execute(ctx context.Context, proposalID string) (*ExecuteResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.Execute")
	defer span.End()
	requestsTotal.WithLabelValues("Execute").Inc()

	if proposalID == "" {
		return nil, s.fail("Execute", apierror.New(apierror.Validation, codeBadRequest, "proposal id required"))
	}
	proposal, err := s.cfg.Multisig.Execute(ctx, proposalID)
	if err != nil {
		return nil, s.fail("Execute", err)
	}
	return &ExecuteResponse{Executed: true, Artifact: proposal.Artifact}, nil
}

// GetProposal returns one proposal.
func (s *Service) GetProposal(ctx context.Context, proposalID string) (*ProposalResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.GetProposal")
	defer span.End()
	requestsTotal.WithLabelValues("GetProposal").Inc()

	proposal, err := s.cfg.Multisig.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, s.fail("GetProposal", err)
	}
	return proposalResponse(proposal), nil
}

// ListProposals returns every proposal, newest first.
func (s *Service) ListProposals(ctx context.Context) ([]*ProposalResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ListProposals")
	defer span.End()
	requestsTotal.WithLabelValues("ListProposals").Inc()

	proposals, err := s.cfg.Multisig.ListProposals(ctx)
	if err != nil {
		return nil, s.fail("ListProposals", err)
	}
	resp := make([]*ProposalResponse, 0, len(proposals))
	for _, proposal := range proposals {
		resp = append(resp, proposalResponse(proposal))
	}
	return resp, nil
}

// AddSigner registers a new signer for proposal votes.
func (s *Service) AddSigner(ctx context.Context, req *AddSignerRequest) (*SignerResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.AddSigner")
	defer span.End()
	requestsTotal.WithLabelValues("AddSigner").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("AddSigner", err)
	}
	key, err := decodeHexBytes("public_key", req.PublicKey)
	if err != nil {
		return nil, s.fail("AddSigner", err)
	}
	signer, err := s.cfg.Multisig.AddSigner(ctx, req.SignerID, key)
	if err != nil {
		return nil, s.fail("AddSigner", err)
	}
	return signerResponse(signer), nil
}

// ListSigners returns every signer, active or not.
func (s *Service) ListSigners(ctx context.Context) ([]*SignerResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ListSigners")
	defer span.End()
	requestsTotal.WithLabelValues("ListSigners").Inc()

	signers, err := s.cfg.Multisig.ListSigners(ctx)
	if err != nil {
		return nil, s.fail("ListSigners", err)
	}
	resp := make([]*SignerResponse, 0, len(signers))
	for _, signer := range signers {
		resp = append(resp, signerResponse(signer))
	}
	return resp, nil
}

func proposalResponse(p *types.Proposal) *ProposalResponse {
	return &ProposalResponse{
		ProposalID:        p.ID,
		Kind:              string(p.Kind),
		Payload:           json.RawMessage(p.Payload),
		Proposer:          p.Proposer,
		RequiredApprovals: p.RequiredApprovals,
		Approvals:         p.Approvals,
		Rejections:        p.Rejections,
		State:             string(p.State),
		CreatedAt:         p.CreatedAt,
		ExpiresAt:         p.ExpiresAt,
		Artifact:          p.Artifact,
	}
}

func signerResponse(sig *types.Signer) *SignerResponse {
	return &SignerResponse{
		SignerID:  sig.SignerID,
		PublicKey: hexutil.Encode(sig.PublicKey),
		AddedAt:   sig.AddedAt,
		Active:    sig.Active,
	}
}
