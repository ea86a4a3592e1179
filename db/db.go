// Package db defines the ability to create a new database for the
// coordinator and exposes the persistence interface its services use.
package db

import (
	"context"

	"github.com/zkiotchain/zkiot/db/iface"
	"github.com/zkiotchain/zkiot/db/kv"
)

// Database describes the full persistence contract.
type Database = iface.Database

// ReadOnlyDatabase describes the read-only persistence contract.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// NewDB initializes a new database at the directory path.
func NewDB(ctx context.Context, dirPath string) (Database, error) {
	return kv.NewKVStore(ctx, dirPath)
}
