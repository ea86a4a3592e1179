package server

import (
	"encoding/json"

	"github.com/zkiotchain/zkiot/types"
)

// RegisterDeviceRequest creates a device record. The secret never leaves
// the handler: only its commitment is stored.
type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=64,device_id"`
	Name     string `json:"device_name" validate:"required,max=128"`
	Kind     string `json:"device_type" validate:"required,max=64"`
	Secret   string `json:"secret" validate:"required"`
}

// AuthenticateDeviceRequest verifies a proof of secret knowledge. All
// byte fields are 0x-prefixed hex. An empty scheme means SIMPLE.
type AuthenticateDeviceRequest struct {
	DeviceID   string `json:"device_id" validate:"required,max=64,device_id"`
	Scheme     string `json:"scheme"`
	Commitment string `json:"commitment" validate:"required"`
	Response   string `json:"response" validate:"required"`
	Nonce      string `json:"nonce" validate:"required"`
	Timestamp  uint64 `json:"timestamp" validate:"required"`
}

// SubmitDataRequest queues one telemetry payload for anchoring.
type SubmitDataRequest struct {
	DeviceID string          `json:"device_id" validate:"required,max=64,device_id"`
	DataType string          `json:"data_type" validate:"max=64"`
	Payload  json.RawMessage `json:"data" validate:"required"`
}

// TriggerAnchorRequest assembles and anchors the pending queue on the
// active network.
type TriggerAnchorRequest struct {
	Metadata string `json:"batch_metadata" validate:"max=256"`
}

// CrossChainAnchorRequest anchors the pending queue to an explicit set
// of networks.
type CrossChainAnchorRequest struct {
	Targets  []string `json:"target_chains" validate:"required,min=1,dive,required"`
	Metadata string   `json:"batch_metadata" validate:"max=256"`
}

// VerifyInclusionRequest checks one leaf against a batch root.
type VerifyInclusionRequest struct {
	BatchID  uint64 `json:"batch_id" validate:"min=1"`
	LeafHash string `json:"data_hash" validate:"required"`
}

// CrossChainVerifyRequest checks a root's anchors on-chain. An empty
// chain list verifies every chain recorded for the batch.
type CrossChainVerifyRequest struct {
	Root   string   `json:"merkle_root" validate:"required"`
	Chains []string `json:"chains" validate:"omitempty,dive,required"`
}

// GasQuoteRequest prices an anchoring transaction without sending it.
// An empty network quotes against the active one.
type GasQuoteRequest struct {
	Network   string `json:"network"`
	Root      string `json:"merkle_root" validate:"required"`
	LeafCount uint64 `json:"batch_size" validate:"min=1"`
	Metadata  string `json:"metadata" validate:"max=256"`
}

// ProposeRequest opens a multi-sig proposal. An empty kind defaults to
// REGISTER_DEVICE.
type ProposeRequest struct {
	Kind              string          `json:"kind"`
	Payload           json.RawMessage `json:"payload" validate:"required"`
	RequiredApprovals uint64          `json:"required_approvals" validate:"min=1"`
	Proposer          string          `json:"proposer" validate:"max=64"`
}

// VoteRequest approves or rejects a pending proposal.
type VoteRequest struct {
	ProposalID string `json:"proposal_id" validate:"required"`
	SignerID   string `json:"signer_id" validate:"required,max=64"`
	Signature  string `json:"signature" validate:"required"`
}

// AddSignerRequest registers a new multi-sig signer.
type AddSignerRequest struct {
	SignerID  string `json:"signer_id" validate:"required,max=64"`
	PublicKey string `json:"public_key" validate:"required"`
}

// DeviceResponse is the API view of a device record.
type DeviceResponse struct {
	DeviceID            string `json:"device_id"`
	Name                string `json:"device_name"`
	Kind                string `json:"device_type"`
	PublicCommitment    string `json:"public_commitment"`
	RegisteredAt        uint64 `json:"registered_at"`
	LastAuthenticatedAt uint64 `json:"last_authenticated_at,omitempty"`
	Active              bool   `json:"is_active"`
	TotalDataSubmitted  uint64 `json:"total_data_submitted"`
}

// AuthResponse reports a successful verification.
type AuthResponse struct {
	OK bool   `json:"ok"`
	At uint64 `json:"at"`
}

// SubmitDataResponse acknowledges a queued payload.
type SubmitDataResponse struct {
	Accepted     bool   `json:"accepted"`
	DataID       string `json:"data_id"`
	LeafHash     string `json:"leaf_hash"`
	PendingCount int    `json:"pending_count"`
}

// PendingDatumResponse is one unanchored telemetry record.
type PendingDatumResponse struct {
	Seq         uint64          `json:"seq"`
	DeviceID    string          `json:"device_id"`
	LeafHash    string          `json:"leaf_hash"`
	SubmittedAt uint64          `json:"submitted_at"`
	Payload     json.RawMessage `json:"data"`
}

// PendingDataResponse lists the queue awaiting the next batch.
type PendingDataResponse struct {
	Count int                     `json:"count"`
	Items []*PendingDatumResponse `json:"items"`
}

// ProofStepResponse is one inclusion proof element.
type ProofStepResponse struct {
	Sibling string `json:"sibling"`
	Right   bool   `json:"right"`
}

// VerifyInclusionResponse carries the verification verdict and the
// proof used to reach it.
type VerifyInclusionResponse struct {
	Valid      bool                 `json:"valid"`
	BatchID    uint64               `json:"batch_id"`
	LeafHash   string               `json:"data_hash"`
	LeafIndex  int                  `json:"leaf_index"`
	MerkleRoot string               `json:"merkle_root"`
	Proof      []*ProofStepResponse `json:"proof"`
}

// BatchResponse is the API view of a batch and its anchors.
type BatchResponse struct {
	BatchID   uint64                   `json:"batch_id"`
	LeafCount uint64                   `json:"leaf_count"`
	Root      string                   `json:"merkle_root"`
	CreatedAt uint64                   `json:"created_at"`
	Metadata  string                   `json:"metadata,omitempty"`
	State     string                   `json:"state"`
	Anchors   map[string]*types.Anchor `json:"anchors"`
}

// ChainVerification is one chain's on-chain root check.
type ChainVerification struct {
	Verified bool   `json:"verified"`
	TxHash   string `json:"tx_hash,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CrossChainVerifyResponse reports per-chain verification of a root.
type CrossChainVerifyResponse struct {
	Root    string                        `json:"merkle_root"`
	BatchID uint64                        `json:"batch_id"`
	Chains  map[string]*ChainVerification `json:"chains"`
}

// GasQuoteResponse prices one anchor transaction.
type GasQuoteResponse struct {
	Network     string `json:"network"`
	GasUnits    uint64 `json:"gas_units"`
	GasPriceWei string `json:"gas_price_wei"`
	TotalWei    string `json:"total_wei"`
	Symbol      string `json:"symbol"`
}

// BalanceResponse reports the signing account's funds on one network.
type BalanceResponse struct {
	Network    string `json:"network"`
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"`
	Symbol     string `json:"symbol"`
}

// PresenceResponse is one device's live presence class.
type PresenceResponse struct {
	DeviceID      string `json:"device_id"`
	Status        string `json:"status"`
	LastHeartbeat uint64 `json:"last_heartbeat,omitempty"`
}

// ProposeResponse identifies a newly opened proposal.
type ProposeResponse struct {
	ProposalID string `json:"proposal_id"`
	ExpiresAt  uint64 `json:"expires_at"`
}

// VoteResponse reports the proposal state after a vote.
type VoteResponse struct {
	ProposalID string `json:"proposal_id"`
	State      string `json:"state"`
}

// ExecuteResponse reports a completed execution.
type ExecuteResponse struct {
	Executed bool   `json:"executed"`
	Artifact string `json:"artifact,omitempty"`
}

// ProposalResponse is the API view of one proposal.
type ProposalResponse struct {
	ProposalID        string          `json:"proposal_id"`
	Kind              string          `json:"kind"`
	Payload           json.RawMessage `json:"payload"`
	Proposer          string          `json:"proposer,omitempty"`
	RequiredApprovals uint64          `json:"required_approvals"`
	Approvals         []string        `json:"approvals"`
	Rejections        []string        `json:"rejections"`
	State             string          `json:"state"`
	CreatedAt         uint64          `json:"created_at"`
	ExpiresAt         uint64          `json:"expires_at"`
	Artifact          string          `json:"artifact,omitempty"`
}

// SignerResponse is the API view of one signer.
type SignerResponse struct {
	SignerID  string `json:"signer_id"`
	PublicKey string `json:"public_key"`
	AddedAt   uint64 `json:"added_at"`
	Active    bool   `json:"is_active"`
}

// NetworkResponse describes one configured network. RPC endpoints stay
// private because they can carry credentials.
type NetworkResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	ChainID     uint64            `json:"chain_id"`
	Symbol      string            `json:"native_symbol"`
	Testnet     bool              `json:"testnet"`
	Active      bool              `json:"is_active"`
	Contracts   map[string]string `json:"contracts,omitempty"`
}

// SchemeInfo describes one declared proof scheme.
type SchemeInfo struct {
	Name        string `json:"name"`
	Implemented bool   `json:"implemented"`
}

// SchemesResponse lists the proof scheme catalog.
type SchemesResponse struct {
	Active  string        `json:"active"`
	Schemes []*SchemeInfo `json:"schemes"`
}
