package recovery

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/metrics"
)

// Log file layout:
//
//	[file checksum:4][frame]...
//	frame = [size:4][checksum:4][data:size]
//
// The frame checksum covers data. The file checksum accumulates every frame,
// headers included, in append order.
const (
	checksumSeed = 13331

	fileHeaderSize   = 4
	frameSizeOffset  = 0
	frameCheckOffset = 4
	frameHeaderSize  = 8
)

func calChecksum(acc int32, data []byte) int32 {
	for _, b := range data {
		acc = acc*checksumSeed + int32(int8(b))
	}

	return acc
}

// Logger is the append-only write-ahead log with a single forward cursor.
type Logger struct {
	mu sync.Mutex

	file      afero.File
	fileSize  int64
	xChecksum int32
	position  int64

	logger src.Logger
}

func CreateLogger(fs afero.Fs, path string, logger src.Logger) (*Logger, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.Wrap(common.ErrFileExists, path)
		}

		return nil, errors.Wrapf(err, "create log %s", path)
	}

	var header [fileHeaderSize]byte
	if _, err := f.WriteAt(header[:], 0); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "write log header"), f.Close())
	}

	if err := f.Sync(); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "sync log header"), f.Close())
	}

	return &Logger{
		file:     f,
		fileSize: fileHeaderSize,
		position: fileHeaderSize,
		logger:   logger,
	}, nil
}

// OpenLogger opens an existing log and cuts off everything after the last
// frame that verifies. A file checksum that disagrees with the surviving
// frames is replaced by the recomputed one.
func OpenLogger(fs afero.Fs, path string, logger src.Logger) (*Logger, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat log %s", path)
	}

	if !exists {
		return nil, errors.Wrap(common.ErrFileNotExists, path)
	}

	f, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}

	l := &Logger{file: f, logger: logger}
	if err := l.init(); err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	if err := l.checkAndRemoveTail(); err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	return l, nil
}

func (l *Logger) init() error {
	info, err := l.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat log")
	}

	if info.Size() < fileHeaderSize {
		return errors.Wrapf(common.ErrBadLogFile, "file is %d bytes long", info.Size())
	}

	var header [fileHeaderSize]byte
	if _, err := l.file.ReadAt(header[:], 0); err != nil {
		return errors.Wrap(err, "read log header")
	}

	l.fileSize = info.Size()
	l.xChecksum = int32(binary.BigEndian.Uint32(header[:]))
	l.position = fileHeaderSize

	return nil
}

func (l *Logger) checkAndRemoveTail() error {
	var xCheck int32

	for {
		frame, ok := l.nextFrame()
		if !ok {
			break
		}

		xCheck = calChecksum(xCheck, frame)
	}

	if l.position < l.fileSize {
		l.logger.Warnw(
			"discarding unverifiable log tail",
			"valid", l.position,
			"size", l.fileSize,
		)

		if err := l.truncate(l.position); err != nil {
			return err
		}
	}

	if xCheck != l.xChecksum {
		l.logger.Warnw(
			"log checksum mismatch, rewriting",
			"stored", l.xChecksum,
			"computed", xCheck,
		)

		if err := l.writeChecksum(xCheck); err != nil {
			return err
		}
	}

	l.position = fileHeaderSize

	return nil
}

func wrapFrame(data []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame[frameSizeOffset:], uint32(len(data)))
	binary.BigEndian.PutUint32(frame[frameCheckOffset:], uint32(calChecksum(0, data)))
	copy(frame[frameHeaderSize:], data)

	return frame
}

// Log appends data and durably updates the file checksum.
func (l *Logger) Log(data []byte) error {
	frame := wrapFrame(data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteAt(frame, l.fileSize); err != nil {
		return errors.Wrap(err, "append log frame")
	}

	l.fileSize += int64(len(frame))

	if err := l.writeChecksum(calChecksum(l.xChecksum, frame)); err != nil {
		return err
	}

	metrics.Inc(metrics.Get().WALAppends)

	return nil
}

// LogRecord serializes r and appends it.
func (l *Logger) LogRecord(r LogRecord) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}

	return l.Log(data)
}

func (l *Logger) writeChecksum(xCheck int32) error {
	var header [fileHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(xCheck))

	if _, err := l.file.WriteAt(header[:], 0); err != nil {
		return errors.Wrap(err, "write log checksum")
	}

	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "sync log")
	}

	l.xChecksum = xCheck

	return nil
}

// nextFrame returns the whole frame at the cursor and advances past it. It
// reports false at the end of the file and on any malformed frame.
func (l *Logger) nextFrame() ([]byte, bool) {
	if l.position+frameHeaderSize > l.fileSize {
		return nil, false
	}

	var header [frameHeaderSize]byte
	if _, err := l.file.ReadAt(header[:], l.position); err != nil {
		return nil, false
	}

	size := int64(binary.BigEndian.Uint32(header[frameSizeOffset:]))
	if l.position+frameHeaderSize+size > l.fileSize {
		return nil, false
	}

	frame := make([]byte, frameHeaderSize+size)
	if _, err := l.file.ReadAt(frame, l.position); err != nil {
		return nil, false
	}

	checksum := int32(binary.BigEndian.Uint32(frame[frameCheckOffset:]))
	if calChecksum(0, frame[frameHeaderSize:]) != checksum {
		return nil, false
	}

	l.position += int64(len(frame))

	return frame, true
}

func (l *Logger) Rewind() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.position = fileHeaderSize
}

// Next returns the payload of the next record.
func (l *Logger) Next() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	frame, ok := l.nextFrame()
	if !ok {
		return nil, false
	}

	return frame[frameHeaderSize:], true
}

// Truncate cuts the file to x bytes.
func (l *Logger) Truncate(x int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.truncate(x)
}

func (l *Logger) truncate(x int64) error {
	if err := l.file.Truncate(x); err != nil {
		return errors.Wrapf(err, "truncate log to %d", x)
	}

	l.fileSize = x
	if l.position > x {
		l.position = x
	}

	return nil
}

// Size reports the current length of the log file in bytes.
func (l *Logger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.fileSize
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
