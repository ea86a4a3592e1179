package db

import (
	"github.com/zkiotchain/zkiot/db/kv"
)

var _ = Database(&kv.Store{})
