package recovery

import (
	"fmt"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llifei/db2023/src/pkg/common"
)

func newTestWAL(t *testing.T, fs afero.Fs) *Logger {
	t.Helper()

	l, err := CreateLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)

	return l
}

func readRemaining(l *Logger) [][]byte {
	var res [][]byte
	for {
		data, ok := l.Next()
		if !ok {
			return res
		}
		res = append(res, data)
	}
}

func TestChecksumRecurrence(t *testing.T) {
	assert.Equal(t, int32(0), calChecksum(0, nil))
	assert.Equal(t, int32(13333), calChecksum(0, []byte{1, 2}))
	assert.Equal(t, int32(-1), calChecksum(0, []byte{0xff}), "bytes are signed")
	assert.Equal(
		t,
		calChecksum(calChecksum(0, []byte("ab")), []byte("cd")),
		calChecksum(0, []byte("abcd")),
	)
}

func TestLoggerAppendAndIterate(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := newTestWAL(t, fs)

	records := [][]byte{[]byte("first"), []byte("second"), {}, []byte("fourth")}
	for _, r := range records {
		require.NoError(t, l.Log(r))
	}

	l.Rewind()
	got := readRemaining(l)
	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i], got[i])
	}

	_, ok := l.Next()
	require.False(t, ok, "cursor stays at the end")

	require.NoError(t, l.Close())

	l, err := OpenLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	require.Len(t, readRemaining(l), len(records))
}

func TestLoggerTruncatesCorruptTail(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := newTestWAL(t, fs)

	for i := range 3 {
		require.NoError(t, l.Log([]byte(fmt.Sprintf("record-%d", i))))
	}

	boundary := int64(fileHeaderSize + 2*(frameHeaderSize+len("record-0")))
	size := l.Size()
	require.NoError(t, l.Close())

	f, err := fs.OpenFile("test.log", os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{'X'}, size-1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err = OpenLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)

	require.Equal(t, boundary, l.Size())

	got := readRemaining(l)
	require.Equal(t, [][]byte{[]byte("record-0"), []byte("record-1")}, got)
	require.NoError(t, l.Close())

	info, err := fs.Stat("test.log")
	require.NoError(t, err)
	require.Equal(t, boundary, info.Size())

	l, err = OpenLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	require.Equal(t, boundary, l.Size(), "a repaired log reopens unchanged")
	require.NoError(t, l.Log([]byte("record-3")))

	l.Rewind()
	require.Len(t, readRemaining(l), 3)
}

func TestLoggerTruncatesPartialFrame(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := newTestWAL(t, fs)

	require.NoError(t, l.Log([]byte("complete")))
	size := l.Size()
	require.NoError(t, l.Close())

	f, err := fs.OpenFile("test.log", os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(wrapFrame([]byte("torn write"))[:11], size)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err = OpenLogger(fs, "test.log", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	require.Equal(t, size, l.Size())
	require.Equal(t, [][]byte{[]byte("complete")}, readRemaining(l))
}

func TestLoggerTruncate(t *testing.T) {
	l := newTestWAL(t, afero.NewMemMapFs())
	defer func() { require.NoError(t, l.Close()) }()

	require.NoError(t, l.Log([]byte("a")))
	require.NoError(t, l.Log([]byte("b")))

	require.NoError(t, l.Truncate(fileHeaderSize+frameHeaderSize+1))

	l.Rewind()
	require.Equal(t, [][]byte{[]byte("a")}, readRemaining(l))
}

func TestLoggerFilePreconditions(t *testing.T) {
	fs := afero.NewMemMapFs()
	logger := zap.NewNop().Sugar()

	_, err := OpenLogger(fs, "missing.log", logger)
	require.ErrorIs(t, err, common.ErrFileNotExists)

	require.NoError(t, afero.WriteFile(fs, "short.log", []byte{0, 0}, 0o644))
	_, err = OpenLogger(fs, "short.log", logger)
	require.ErrorIs(t, err, common.ErrBadLogFile)

	l := newTestWAL(t, fs)
	require.NoError(t, l.Close())

	_, err = CreateLogger(fs, "test.log", logger)
	require.ErrorIs(t, err, common.ErrFileExists)
}
