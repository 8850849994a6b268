package recovery

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llifei/db2023/src/bufferpool"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
	"github.com/llifei/db2023/src/txns"
)

var testSession = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

type crashState struct {
	fs     afero.Fs
	ledger *txns.Ledger
	wal    *Logger
	pool   *bufferpool.BufferPool_mock

	committed common.TxnID
	active    common.TxnID

	committedUID common.UID
	activeUID    common.UID
}

// newCrashState leaves one committed insert and one active transaction that
// inserted a record and rewrote the committed one.
func newCrashState(t *testing.T) *crashState {
	t.Helper()

	s := &crashState{fs: afero.NewMemMapFs(), pool: bufferpool.NewBufferPoolMock()}

	var err error
	s.ledger, err = txns.CreateLedger(s.fs, "test.xid")
	require.NoError(t, err)
	s.wal, err = CreateLogger(s.fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = s.pool.NewPage(page.InitPageOneRaw(testSession))
	require.NoError(t, err)
	heapPage, err := s.pool.NewPage(page.InitHeapRaw())
	require.NoError(t, err)

	s.committed, err = s.ledger.Begin()
	require.NoError(t, err)

	chain := NewTxnLogChain(s.wal, s.pool, s.committed).Insert(heapPage, []byte("committed"))
	require.NoError(t, chain.Err())
	require.NoError(t, s.ledger.Commit(s.committed))

	s.active, err = s.ledger.Begin()
	require.NoError(t, err)

	s.committedUID = chain.UIDs()[0]
	chain.SwitchTransactionID(s.active).
		Insert(heapPage, []byte("in flight")).
		Update(s.committedUID, []byte("COMMITTED"))
	require.NoError(t, chain.Err())
	s.activeUID = chain.UIDs()[1]

	s.crash(t)

	return s
}

// crash drops every heap write and allocates a page that no record refers
// to.
func (s *crashState) crash(t *testing.T) {
	t.Helper()

	require.NoError(t, s.pool.TruncateByPageNo(1))
	for range 2 {
		_, err := s.pool.NewPage(page.InitHeapRaw())
		require.NoError(t, err)
	}
}

func (s *crashState) recover(t *testing.T) Stats {
	t.Helper()

	stats, err := Recover(s.ledger, s.wal, s.pool, zap.NewNop().Sugar())
	require.NoError(t, err)

	return stats
}

func slotAt(t *testing.T, pool *bufferpool.BufferPool_mock, uid common.UID) []byte {
	t.Helper()

	addr, ok := uid.Address()
	require.True(t, ok)

	img := pool.DiskImage(addr.PageNo)
	require.NotEmpty(t, img)

	size := int(page.SlotSize(img[addr.Offset:]))
	return img[addr.Offset : int(addr.Offset)+page.SlotHeaderSize+size]
}

func TestRecoverRedoAndUndo(t *testing.T) {
	s := newCrashState(t)

	stats := s.recover(t)

	assert.Equal(t, common.PageNo(2), stats.MaxPageNo)
	assert.Equal(t, 1, stats.Redone)
	assert.Equal(t, 2, stats.Undone)
	assert.Equal(t, []common.TxnID{s.active}, stats.AbortedTxns)

	committed := slotAt(t, s.pool, s.committedUID)
	require.True(t, page.SlotIsValid(committed))
	require.Equal(t, []byte("committed"), committed[page.SlotHeaderSize:])

	undone := slotAt(t, s.pool, s.activeUID)
	require.False(t, page.SlotIsValid(undone))

	aborted, err := s.ledger.IsAborted(s.active)
	require.NoError(t, err)
	require.True(t, aborted)

	require.Equal(t, common.PageNo(2), s.pool.PageCount())
	require.Empty(t, s.pool.DiskImage(3), "unlogged page is dropped")
	require.Empty(t, s.pool.PinnedPages())
}

func TestRecoverEmptyLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := bufferpool.NewBufferPoolMock()

	ledger, err := txns.CreateLedger(fs, "test.xid")
	require.NoError(t, err)
	wal, err := CreateLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)

	for range 3 {
		_, err := pool.NewPage(page.InitHeapRaw())
		require.NoError(t, err)
	}

	stats, err := Recover(ledger, wal, pool, zap.NewNop().Sugar())
	require.NoError(t, err)

	require.Equal(t, common.PageNo(1), stats.MaxPageNo)
	require.Equal(t, common.PageNo(1), pool.PageCount())
}

var errCrash = errors.New("crash before the abort is recorded")

type crashingLedger struct {
	*txns.Ledger
}

func (crashingLedger) Abort(common.TxnID) error {
	return errCrash
}

func TestRecoverIsIdempotent(t *testing.T) {
	reference := newCrashState(t)
	reference.recover(t)

	again := newCrashState(t)
	require.Equal(t, reference.active, again.active)

	_, err := Recover(crashingLedger{again.ledger}, again.wal, again.pool, zap.NewNop().Sugar())
	require.ErrorIs(t, err, common.ErrRecovery)
	require.ErrorIs(t, err, errCrash)
	require.True(t, common.IsFatal(err))

	again.recover(t)

	require.Equal(t, reference.pool.Snapshot(), again.pool.Snapshot())
}

func TestRecoverTwiceIsFixedPoint(t *testing.T) {
	s := newCrashState(t)

	s.recover(t)
	first := s.pool.Snapshot()

	stats := s.recover(t)
	require.Equal(t, first, s.pool.Snapshot())

	assert.Equal(t, 1, stats.Redone)
	assert.Equal(t, 2, stats.Undone, "aborted records are rolled back again")
	assert.Empty(t, stats.AbortedTxns)

	undone := slotAt(t, s.pool, s.activeUID)
	require.False(t, page.SlotIsValid(undone))

	committed := slotAt(t, s.pool, s.committedUID)
	require.Equal(t, []byte("committed"), committed[page.SlotHeaderSize:])
}

func TestRecoverRollsBackAbortedBeforeLaterCommit(t *testing.T) {
	s := newCrashState(t)
	s.recover(t)

	// a later transaction rewrites the slot the aborted one had touched
	later, err := s.ledger.Begin()
	require.NoError(t, err)
	chain := NewTxnLogChain(s.wal, s.pool, later).Update(s.committedUID, []byte("rewritten"))
	require.NoError(t, chain.Err())
	require.NoError(t, s.ledger.Commit(later))

	s.crash(t)

	stats := s.recover(t)
	assert.Equal(t, 2, stats.Redone)
	assert.Equal(t, 2, stats.Undone)
	assert.Empty(t, stats.AbortedTxns)

	committed := slotAt(t, s.pool, s.committedUID)
	require.True(t, page.SlotIsValid(committed))
	require.Equal(t, []byte("rewritten"), committed[page.SlotHeaderSize:])

	undone := slotAt(t, s.pool, s.activeUID)
	require.False(t, page.SlotIsValid(undone))

	first := s.pool.Snapshot()
	s.recover(t)
	require.Equal(t, first, s.pool.Snapshot())
}

func TestRecoverRejectsCorruptRecord(t *testing.T) {
	s := newCrashState(t)

	bad := NewUpdateLogRecord(s.active, common.UID(1<<20), []byte("a"), []byte("b"))
	require.NoError(t, s.wal.LogRecord(&bad))

	_, err := Recover(s.ledger, s.wal, s.pool, zap.NewNop().Sugar())
	require.ErrorIs(t, err, common.ErrRecovery)
	require.ErrorIs(t, err, common.ErrInvalidUID)
}
