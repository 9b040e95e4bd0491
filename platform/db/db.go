// Package db exports the platform database constructor. Callers hold the
// iface.Database contract; the bolt implementation lives in kv.
package db

import (
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/db/kv"
)

// Database defines the necessary methods for the platform's backend.
type Database = iface.Database

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = kv.ErrNotFound

// NewDB initializes a new database at the given directory path.
func NewDB(dirPath string) (Database, error) {
	return kv.NewKVStore(dirPath)
}
