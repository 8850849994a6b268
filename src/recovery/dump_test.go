package recovery

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llifei/db2023/src/pkg/common"
)

func TestDumpJSONLines(t *testing.T) {
	l := newTestWAL(t, afero.NewMemMapFs())
	defer func() { require.NoError(t, l.Close()) }()

	insert := NewInsertLogRecord(3, 2, 2, []byte{0, 0, 2, 'a', 'b'})
	require.NoError(t, l.LogRecord(&insert))

	update := NewUpdateLogRecord(
		4,
		common.Address{PageNo: 2, Offset: 10}.UID(),
		[]byte{0, 0, 1, 'x'},
		[]byte{0, 0, 1, 'y'},
	)
	require.NoError(t, l.LogRecord(&update))

	var out bytes.Buffer
	n, err := Dump(&out, l)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t,
		`{"type":"insert","xid":3,"page":2,"offset":2,"raw":"AAACYWI="}`+"\n"+
			`{"type":"update","xid":4,"uid":8589934602,"page":2,"offset":10,"old":"AAABeA==","new":"AAABeQ=="}`+"\n",
		out.String(),
	)
}

func TestDumpRejectsUnknownRecord(t *testing.T) {
	l := newTestWAL(t, afero.NewMemMapFs())
	defer func() { require.NoError(t, l.Close()) }()

	insert := NewInsertLogRecord(1, 2, 2, []byte{0, 0, 0})
	require.NoError(t, l.LogRecord(&insert))
	require.NoError(t, l.Log([]byte{9, 0, 0}))

	var out bytes.Buffer
	n, err := Dump(&out, l)
	require.Error(t, err)
	assert.Equal(t, 1, n)
}
