package common

import (
	"github.com/go-faster/errors"
)

// Fatal error kinds: storage corruption or misconfiguration. The storage layer
// only returns them; the process boundary decides to terminate.
var (
	ErrFileExists    = errors.New("file already exists")
	ErrFileNotExists = errors.New("file does not exist")
	ErrCacheFull     = errors.New("cache is full")
	ErrMemTooSmall   = errors.New("memory is too small")
	ErrBadXIDFile    = errors.New("bad xid file")
	ErrBadLogFile    = errors.New("bad log file")
	ErrBadHeapFile   = errors.New("bad heap file")
	ErrRecovery      = errors.New("recovery failed")
	ErrLostWrite     = errors.New("dirty page could not be written back")
)

// Recoverable error kinds, reported to the calling transaction only.
var (
	ErrDataTooLarge     = errors.New("data is too large")
	ErrDatabaseBusy     = errors.New("database is busy")
	ErrDeadlock         = errors.New("deadlock detected")
	ErrConcurrentUpdate = errors.New("concurrent update")
	ErrNoSuchTxn        = errors.New("no such transaction")
	ErrInvalidUID       = errors.New("invalid uid")
	ErrUnknownLogRecord = errors.New("unknown log record")
)

var fatalKinds = []error{
	ErrFileExists,
	ErrFileNotExists,
	ErrCacheFull,
	ErrMemTooSmall,
	ErrBadXIDFile,
	ErrBadLogFile,
	ErrBadHeapFile,
	ErrRecovery,
	ErrLostWrite,
}

// IsFatal reports whether err carries one of the fatal kinds.
func IsFatal(err error) bool {
	for _, kind := range fatalKinds {
		if errors.Is(err, kind) {
			return true
		}
	}

	return false
}
