package txns

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src/pkg/common"
)

type Status byte

const (
	StatusActive    Status = 0
	StatusCommitted Status = 1
	StatusAborted   Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	ledgerHeaderSize = 8
	statusSize       = 1
)

// Ledger is the durable table of transaction states. The file starts with
// an 8 byte counter holding the last issued id, followed by one status byte
// per issued id.
type Ledger struct {
	mu      sync.Mutex
	file    afero.File
	counter common.TxnID
}

var _ common.TxnLedger = &Ledger{}

func CreateLedger(fs afero.Fs, path string) (*Ledger, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.Wrap(common.ErrFileExists, path)
		}

		return nil, errors.Wrapf(err, "create ledger %s", path)
	}

	var header [ledgerHeaderSize]byte
	if _, err := f.WriteAt(header[:], 0); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "write ledger header"), f.Close())
	}

	if err := f.Sync(); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "sync ledger header"), f.Close())
	}

	return &Ledger{file: f}, nil
}

// OpenLedger opens an existing ledger and validates that its length matches
// the counter in the header exactly.
func OpenLedger(fs afero.Fs, path string) (*Ledger, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat ledger %s", path)
	}

	if !exists {
		return nil, errors.Wrap(common.ErrFileNotExists, path)
	}

	f, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}

	l, err := checkLedger(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	return l, nil
}

func checkLedger(f afero.File) (*Ledger, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat ledger")
	}

	if info.Size() < ledgerHeaderSize {
		return nil, errors.Wrapf(common.ErrBadXIDFile, "file is %d bytes long", info.Size())
	}

	var header [ledgerHeaderSize]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return nil, errors.Wrap(err, "read ledger header")
	}

	counter := common.TxnID(binary.BigEndian.Uint64(header[:]))
	if want := statusPosition(counter + 1); want != info.Size() {
		return nil, errors.Wrapf(
			common.ErrBadXIDFile,
			"counter %d requires %d bytes, file has %d",
			counter,
			want,
			info.Size(),
		)
	}

	return &Ledger{file: f, counter: counter}, nil
}

func statusPosition(xid common.TxnID) int64 {
	return ledgerHeaderSize + int64(xid-1)*statusSize
}

// Begin issues the next transaction id in the active state. Both the status
// byte and the counter are durable when Begin returns.
func (l *Ledger) Begin() (common.TxnID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.counter + 1
	if err := l.writeStatus(next, StatusActive); err != nil {
		return 0, err
	}

	var header [ledgerHeaderSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(next))

	if _, err := l.file.WriteAt(header[:], 0); err != nil {
		return 0, errors.Wrap(err, "write ledger counter")
	}

	if err := l.file.Sync(); err != nil {
		return 0, errors.Wrap(err, "sync ledger counter")
	}

	l.counter = next

	return next, nil
}

func (l *Ledger) Commit(xid common.TxnID) error {
	return l.setStatus(xid, StatusCommitted)
}

func (l *Ledger) Abort(xid common.TxnID) error {
	return l.setStatus(xid, StatusAborted)
}

func (l *Ledger) setStatus(xid common.TxnID, status Status) error {
	if xid == common.SuperTxnID {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if xid > l.counter {
		return errors.Wrapf(common.ErrNoSuchTxn, "xid %d", xid)
	}

	return l.writeStatus(xid, status)
}

func (l *Ledger) writeStatus(xid common.TxnID, status Status) error {
	if _, err := l.file.WriteAt([]byte{byte(status)}, statusPosition(xid)); err != nil {
		return errors.Wrapf(err, "write status of xid %d", xid)
	}

	if err := l.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync status of xid %d", xid)
	}

	return nil
}

// Status reads the stored state of xid. The super transaction is always
// committed.
func (l *Ledger) Status(xid common.TxnID) (Status, error) {
	if xid == common.SuperTxnID {
		return StatusCommitted, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if xid > l.counter {
		return 0, errors.Wrapf(common.ErrNoSuchTxn, "xid %d", xid)
	}

	var b [statusSize]byte
	if _, err := l.file.ReadAt(b[:], statusPosition(xid)); err != nil {
		return 0, errors.Wrapf(err, "read status of xid %d", xid)
	}

	return Status(b[0]), nil
}

func (l *Ledger) is(xid common.TxnID, want Status) (bool, error) {
	s, err := l.Status(xid)
	if err != nil {
		return false, err
	}

	return s == want, nil
}

func (l *Ledger) IsActive(xid common.TxnID) (bool, error) {
	if xid == common.SuperTxnID {
		return false, nil
	}

	return l.is(xid, StatusActive)
}

func (l *Ledger) IsCommitted(xid common.TxnID) (bool, error) {
	return l.is(xid, StatusCommitted)
}

func (l *Ledger) IsAborted(xid common.TxnID) (bool, error) {
	if xid == common.SuperTxnID {
		return false, nil
	}

	return l.is(xid, StatusAborted)
}

// LastID returns the most recently issued transaction id.
func (l *Ledger) LastID() common.TxnID {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counter
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
