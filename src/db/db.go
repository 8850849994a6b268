// Package db wires the ledger, the record layer and the version manager of
// one database together.
package db

import (
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/mvcc"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/engine"
	"github.com/llifei/db2023/src/txns"
)

type DB struct {
	Ledger   *txns.Ledger
	Data     *engine.DataManager
	Versions *mvcc.VersionManager

	path   string
	level  mvcc.IsolationLevel
	logger src.Logger
}

// Create makes the ledger, heap and log files for path. None of them may
// exist yet.
func Create(fs afero.Fs, path string, mem int64, logger src.Logger) (*DB, error) {
	ledger, err := txns.CreateLedger(fs, engine.GetLedgerFilePath(path))
	if err != nil {
		return nil, err
	}

	dm, err := engine.Create(fs, path, mem, logger)
	if err != nil {
		return nil, multierr.Append(err, ledger.Close())
	}

	logger.Infow("database created", "path", path)

	return newDB(path, ledger, dm, logger), nil
}

// Open loads the database at path and recovers it if needed.
func Open(fs afero.Fs, path string, mem int64, logger src.Logger) (*DB, error) {
	ledger, err := txns.OpenLedger(fs, engine.GetLedgerFilePath(path))
	if err != nil {
		return nil, err
	}

	dm, err := engine.Open(fs, path, mem, ledger, logger)
	if err != nil {
		return nil, multierr.Append(err, ledger.Close())
	}

	logger.Infow("database opened", "path", path, "last_xid", ledger.LastID())

	return newDB(path, ledger, dm, logger), nil
}

func newDB(path string, ledger *txns.Ledger, dm *engine.DataManager, logger src.Logger) *DB {
	return &DB{
		Ledger:   ledger,
		Data:     dm,
		Versions: mvcc.New(ledger, dm, logger),
		path:     path,
		logger:   logger,
	}
}

func (db *DB) Path() string {
	return db.path
}

// SetIsolation changes the level Begin starts transactions with. It defaults
// to read committed.
func (db *DB) SetIsolation(level mvcc.IsolationLevel) {
	db.level = level
}

func (db *DB) Isolation() mvcc.IsolationLevel {
	return db.level
}

// Begin starts a transaction at the database's default isolation level.
func (db *DB) Begin() (common.TxnID, error) {
	return db.Versions.Begin(db.level)
}

// Close shuts the database down cleanly. Transactions still running are
// left active in the ledger and rolled back by the next recovery.
func (db *DB) Close() error {
	if n := db.Versions.Active(); n > 0 {
		db.logger.Warnw("closing with running transactions", "count", n)
	}

	db.Versions.Close()

	err := multierr.Combine(db.Data.Close(), db.Ledger.Close())
	if err == nil {
		db.logger.Infow("database closed", "path", db.path)
	}

	return err
}
