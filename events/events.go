// Package events contains the typed event stream emitted by the
// coordinator's subsystems and the fan-out bus that pushes it to
// realtime subscribers.
//
// How to add a new event to the stream:
//  1. Add a Type constant to the list below and wire it into typeNames.
//  2. Add a structure with the name `<Event>Data` containing the fields
//     that should be supplied with the event.
//
// The same event value is supplied to every subscriber, so received
// events must be treated as read-only.
package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Type identifies the topic an event belongs to.
type Type int

const (
	// DeviceRegistered is sent after a device commitment has been stored.
	DeviceRegistered Type = iota + 1
	// DeviceAuthenticated is sent after a proof has been verified.
	DeviceAuthenticated
	// DataSubmitted is sent after a telemetry record lands in the pending set.
	DataSubmitted
	// BatchCreated is sent after batch assembly commits a new Merkle root.
	BatchCreated
	// BatchAnchorProgress is sent as each target chain resolves to
	// confirmed or failed.
	BatchAnchorProgress
	// DeviceStatusChange is sent when a device crosses a presence boundary.
	DeviceStatusChange
	// ProposalCreated is sent when a proposal enters PENDING.
	ProposalCreated
	// ProposalApproved is sent when a proposal reaches its approval threshold.
	ProposalApproved
	// ProposalRejected is sent when approval becomes unreachable.
	ProposalRejected
	// ProposalExecuted is sent after the registered handler succeeds.
	ProposalExecuted
	// ProposalExpired is sent when the sweeper retires a proposal.
	ProposalExpired
	// SignerAdded is sent after a new multi-sig signer has been stored.
	SignerAdded
)

var typeNames = map[Type]string{
	DeviceRegistered:    "DEVICE_REGISTERED",
	DeviceAuthenticated: "DEVICE_AUTHENTICATED",
	DataSubmitted:       "DATA_SUBMITTED",
	BatchCreated:        "BATCH_CREATED",
	BatchAnchorProgress: "BATCH_ANCHOR_PROGRESS",
	DeviceStatusChange:  "DEVICE_STATUS_CHANGE",
	ProposalCreated:     "PROPOSAL_CREATED",
	ProposalApproved:    "PROPOSAL_APPROVED",
	ProposalRejected:    "PROPOSAL_REJECTED",
	ProposalExecuted:    "PROPOSAL_EXECUTED",
	ProposalExpired:     "PROPOSAL_EXPIRED",
	SignerAdded:         "SIGNER_ADDED",
}

// String returns the wire name of the topic.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseTopic maps a wire topic name back to its Type.
func ParseTopic(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown event topic %q", name)
}

// Topics enumerates every topic the bus can carry.
func Topics() []Type {
	all := make([]Type, 0, len(typeNames))
	for t := DeviceRegistered; t <= SignerAdded; t++ {
		all = append(all, t)
	}
	return all
}

// Event is the envelope sent with every feed update. ID and At are
// assigned by the bus at publish time and are zero before that.
type Event struct {
	// ID is the bus-assigned monotonic sequence number.
	ID uint64 `json:"event_id"`
	// Type is the topic of the event.
	Type Type `json:"-"`
	// Data is topic-specific data.
	Data interface{} `json:"payload"`
	// At is the publish timestamp.
	At time.Time `json:"at"`
}

// MarshalJSON writes the wire form of the event, with the topic spelled
// out as a string under "kind".
func (e *Event) MarshalJSON() ([]byte, error) {
	type wireEvent struct {
		ID   uint64      `json:"event_id"`
		Kind string      `json:"kind"`
		Data interface{} `json:"payload"`
		At   time.Time   `json:"at"`
	}
	return json.Marshal(&wireEvent{
		ID:   e.ID,
		Kind: e.Type.String(),
		Data: e.Data,
		At:   e.At,
	})
}

// DeviceRegisteredData is the data sent with DeviceRegistered events.
type DeviceRegisteredData struct {
	// DeviceID of the registered device.
	DeviceID string `json:"device_id"`
	// Commitment is the 0x-prefixed hex commitment digest.
	Commitment string `json:"commitment"`
	// Scheme is the proof scheme the device registered under.
	Scheme string `json:"scheme"`
}

// DeviceAuthenticatedData is the data sent with DeviceAuthenticated events.
type DeviceAuthenticatedData struct {
	// DeviceID of the authenticated device.
	DeviceID string `json:"device_id"`
	// AuthenticatedAt is the unix time of the successful verification.
	AuthenticatedAt uint64 `json:"authenticated_at"`
}

// DataSubmittedData is the data sent with DataSubmitted events.
type DataSubmittedData struct {
	// DataID of the pending record.
	DataID string `json:"data_id"`
	// DeviceID that submitted the record.
	DeviceID string `json:"device_id"`
	// DataType is the submitter-declared payload type.
	DataType string `json:"data_type"`
}

// BatchCreatedData is the data sent with BatchCreated events.
type BatchCreatedData struct {
	// BatchID of the assembled batch.
	BatchID uint64 `json:"batch_id"`
	// MerkleRoot is the 0x-prefixed hex root of the batch tree.
	MerkleRoot string `json:"merkle_root"`
	// LeafCount is the number of records in the batch.
	LeafCount int `json:"leaf_count"`
}

// BatchAnchorProgressData is the data sent with BatchAnchorProgress events.
type BatchAnchorProgressData struct {
	// BatchID of the batch being anchored.
	BatchID uint64 `json:"batch_id"`
	// Chain is the target network name.
	Chain string `json:"chain"`
	// Status is the per-chain anchor status after this update.
	Status string `json:"status"`
	// TxHash is the anchoring transaction, when one was sent.
	TxHash string `json:"tx_hash,omitempty"`
	// BlockNumber of the confirmed anchor, when confirmed.
	BlockNumber uint64 `json:"block_number,omitempty"`
	// Reason carries the failure cause, when failed.
	Reason string `json:"reason,omitempty"`
}

// DeviceStatusChangeData is the data sent with DeviceStatusChange events.
type DeviceStatusChangeData struct {
	// DeviceID whose presence class changed.
	DeviceID string `json:"device_id"`
	// Previous presence status.
	Previous string `json:"previous"`
	// Current presence status.
	Current string `json:"current"`
}

// SignerAddedData is the data sent with SignerAdded events.
type SignerAddedData struct {
	// SignerID of the new signer.
	SignerID string `json:"signer_id"`
}

// ProposalStateData is the data sent with every Proposal* event.
type ProposalStateData struct {
	// ProposalID of the proposal.
	ProposalID string `json:"proposal_id"`
	// Kind is the proposal's action kind.
	Kind string `json:"kind"`
	// State after the transition.
	State string `json:"state"`
	// Signer that caused the transition, when one did.
	Signer string `json:"signer,omitempty"`
	// Artifact references the execution result, when executed.
	Artifact string `json:"artifact,omitempty"`
}
