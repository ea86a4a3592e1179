package kv

// The schema defines the bucket layout of the store. Device records key
// by device id, pending data by an 8-byte big-endian insertion sequence,
// batches by an 8-byte big-endian batch id. Batch leaf attachments live
// in their own bucket keyed batchID||index so one prefix scan returns a
// batch's leaves in order.
var (
	devicesBucket        = []byte("devices")
	pendingDataBucket    = []byte("pending-data")
	batchesBucket        = []byte("batches")
	batchLeavesBucket    = []byte("batch-leaves")
	batchRootIndexBucket = []byte("batch-root-index")
	proposalsBucket      = []byte("proposals")
	signersBucket        = []byte("signers")
	chainMetadataBucket  = []byte("chain-metadata")

	// Metadata keys.
	latestBatchIDKey = []byte("latest-batch-id")
)
