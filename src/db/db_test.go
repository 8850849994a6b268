package db

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llifei/db2023/src/mvcc"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

const (
	testPath = "/data/db"
	testMem  = 32 * page.PageSize
)

func TestCreateOpenClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := zap.NewNop().Sugar()

	db, err := Create(fs, testPath, testMem, log)
	require.NoError(t, err)
	assert.Equal(t, testPath, db.Path())

	xid, err := db.Versions.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	uid, err := db.Versions.Insert(xid, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, db.Versions.Commit(xid))
	require.NoError(t, db.Close())

	_, err = Create(fs, testPath, testMem, log)
	require.ErrorIs(t, err, common.ErrFileExists)

	db, err = Open(fs, testPath, testMem, log)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	assert.True(t, db.Data.Recovered().IsNone())

	xid, err = db.Versions.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	data, err := db.Versions.Read(xid, uid)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data.Unwrap())
	require.NoError(t, db.Versions.Commit(xid))
}

func TestOpenAfterCrash(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := zap.NewNop().Sugar()

	db, err := Create(fs, testPath, testMem, log)
	require.NoError(t, err)

	committed, err := db.Versions.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	kept, err := db.Versions.Insert(committed, []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, db.Versions.Commit(committed))

	running, err := db.Versions.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)
	lost, err := db.Versions.Insert(running, []byte("lost"))
	require.NoError(t, err)
	deleted, err := db.Versions.Delete(running, kept)
	require.NoError(t, err)
	require.True(t, deleted)

	// no Close: the next Open sees an unclean heap
	db, err = Open(fs, testPath, testMem, log)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	stats, ok := db.Data.Recovered().Get()
	require.True(t, ok)
	assert.Equal(t, []common.TxnID{running}, stats.AbortedTxns)

	xid, err := db.Versions.Begin(mvcc.ReadCommitted)
	require.NoError(t, err)

	data, err := db.Versions.Read(xid, kept)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data.Unwrap())

	data, err = db.Versions.Read(xid, lost)
	require.NoError(t, err)
	assert.True(t, data.IsNone())

	require.NoError(t, db.Versions.Commit(xid))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(afero.NewMemMapFs(), testPath, testMem, zap.NewNop().Sugar())
	require.ErrorIs(t, err, common.ErrFileNotExists)
}

func TestBeginUsesDefaultIsolation(t *testing.T) {
	tests := []struct {
		name    string
		level   mvcc.IsolationLevel
		visible bool
	}{
		{name: "read committed sees later commits", level: mvcc.ReadCommitted, visible: true},
		{name: "repeatable read keeps its snapshot", level: mvcc.RepeatableRead, visible: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Create(afero.NewMemMapFs(), testPath, testMem, zap.NewNop().Sugar())
			require.NoError(t, err)
			defer func() { require.NoError(t, db.Close()) }()

			assert.Equal(t, mvcc.ReadCommitted, db.Isolation())
			db.SetIsolation(tt.level)

			reader, err := db.Begin()
			require.NoError(t, err)

			writer, err := db.Begin()
			require.NoError(t, err)
			uid, err := db.Versions.Insert(writer, []byte("later"))
			require.NoError(t, err)
			require.NoError(t, db.Versions.Commit(writer))

			data, err := db.Versions.Read(reader, uid)
			require.NoError(t, err)
			assert.Equal(t, tt.visible, data.IsSome())
			require.NoError(t, db.Versions.Commit(reader))
		})
	}
}
