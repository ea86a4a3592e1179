// Package types holds the domain entities shared across the coordinator's
// subsystems and persisted by the db layer.
package types

// AnchorStatus tracks one chain's view of a batch anchor.
type AnchorStatus string

const (
	// AnchorPending means the anchoring transaction was broadcast and is
	// awaiting a receipt.
	AnchorPending AnchorStatus = "pending"
	// AnchorConfirmed means the transaction was included successfully.
	AnchorConfirmed AnchorStatus = "confirmed"
	// AnchorFailed means dispatch or inclusion failed.
	AnchorFailed AnchorStatus = "failed"
)

// BatchState marks the two-phase batch creation protocol. Batches are
// written as preparing, have their leaves attached, then flip to ready.
// A preparing batch found at startup is an interrupted write.
type BatchState string

const (
	// BatchPreparing is the transient state during creation.
	BatchPreparing BatchState = "preparing"
	// BatchReady marks an authoritative batch.
	BatchReady BatchState = "ready"
)

// ProposalState is the multi-sig FSM state.
type ProposalState string

const (
	// ProposalPending accepts approvals and rejections.
	ProposalPending ProposalState = "PENDING"
	// ProposalApproved reached its approval threshold.
	ProposalApproved ProposalState = "APPROVED"
	// ProposalRejected can no longer reach approval. Terminal.
	ProposalRejected ProposalState = "REJECTED"
	// ProposalExecuted ran its handler successfully. Terminal.
	ProposalExecuted ProposalState = "EXECUTED"
	// ProposalExpired passed its deadline before resolution. Terminal.
	ProposalExpired ProposalState = "EXPIRED"
)

// Terminal reports whether the state accepts no further transitions.
func (s ProposalState) Terminal() bool {
	return s == ProposalRejected || s == ProposalExecuted || s == ProposalExpired
}

// ProposalKind is the action a proposal executes.
type ProposalKind string

// ProposalRegisterDevice registers a device through the multi-sig path.
const ProposalRegisterDevice ProposalKind = "REGISTER_DEVICE"

// Device is a registered IoT device. PublicCommitment is immutable after
// creation; Active=false forbids authentication but preserves history.
type Device struct {
	DeviceID            string   `json:"device_id"`
	Name                string   `json:"device_name"`
	Kind                string   `json:"device_type"`
	PublicCommitment    [32]byte `json:"public_commitment"`
	RegisteredAt        uint64   `json:"registered_at"`
	LastAuthenticatedAt uint64   `json:"last_authenticated_at"`
	Active              bool     `json:"is_active"`
	TotalDataSubmitted  uint64   `json:"total_data_submitted"`
}

// PendingDatum is one telemetry submission. Seq is assigned by the store
// at append time and orders batch assembly. BatchID transitions exactly
// once from nil to the batch that anchored the record.
type PendingDatum struct {
	Seq         uint64   `json:"seq"`
	DeviceID    string   `json:"device_id"`
	Payload     []byte   `json:"payload"`
	SubmittedAt uint64   `json:"submitted_at"`
	LeafHash    [32]byte `json:"leaf_hash"`
	BatchID     *uint64  `json:"batch_id,omitempty"`
}

// Anchor is one chain's anchor record for a batch.
type Anchor struct {
	TxHash      string       `json:"tx_hash,omitempty"`
	BlockNumber uint64       `json:"block_number,omitempty"`
	GasUsed     uint64       `json:"gas_used,omitempty"`
	Status      AnchorStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// MerkleBatch is an anchored (or anchoring) batch of telemetry records.
// BatchID values are dense and monotonic from 1. Root, LeafCount, and the
// leaf set never change after creation.
type MerkleBatch struct {
	BatchID   uint64             `json:"batch_id"`
	LeafCount uint64             `json:"leaf_count"`
	Root      [32]byte           `json:"root"`
	CreatedAt uint64             `json:"created_at"`
	Metadata  string             `json:"metadata,omitempty"`
	State     BatchState         `json:"state"`
	Anchors   map[string]*Anchor `json:"anchors"`
}

// Copy returns a deep copy of the batch.
func (b *MerkleBatch) Copy() *MerkleBatch {
	if b == nil {
		return nil
	}
	dup := *b
	dup.Anchors = make(map[string]*Anchor, len(b.Anchors))
	for name, anchor := range b.Anchors {
		a := *anchor
		dup.Anchors[name] = &a
	}
	return &dup
}

// Proposal is a multi-sig governed action.
type Proposal struct {
	ID                string        `json:"proposal_id"`
	Kind              ProposalKind  `json:"kind"`
	Payload           []byte        `json:"payload"`
	Proposer          string        `json:"proposer"`
	RequiredApprovals uint64        `json:"required_approvals"`
	Approvals         []string      `json:"approvals"`
	Rejections        []string      `json:"rejections"`
	State             ProposalState `json:"state"`
	CreatedAt         uint64        `json:"created_at"`
	ExpiresAt         uint64        `json:"expires_at"`
	// Artifact references what execution produced, e.g. a device id.
	Artifact string `json:"artifact,omitempty"`
}

// HasApproval reports whether the signer already approved.
func (p *Proposal) HasApproval(signerID string) bool {
	return containsString(p.Approvals, signerID)
}

// HasRejection reports whether the signer already rejected.
func (p *Proposal) HasRejection(signerID string) bool {
	return containsString(p.Rejections, signerID)
}

// Copy returns a deep copy of the proposal.
func (p *Proposal) Copy() *Proposal {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Payload = append([]byte(nil), p.Payload...)
	dup.Approvals = append([]string(nil), p.Approvals...)
	dup.Rejections = append([]string(nil), p.Rejections...)
	return &dup
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Signer may approve or reject proposals. Removal is soft so historical
// approvals stay attributable.
type Signer struct {
	SignerID  string `json:"signer_id"`
	PublicKey []byte `json:"public_key"`
	AddedAt   uint64 `json:"added_at"`
	Active    bool   `json:"is_active"`
}
