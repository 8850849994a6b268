package disk

import (
	"io"
	"os"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

// Manager reads and writes whole pages of a single heap file. Every access
// to the file goes through one mutex.
type Manager struct {
	mu   sync.Mutex
	file afero.File
}

func Create(fs afero.Fs, path string) (*Manager, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.Wrap(common.ErrFileExists, path)
		}

		return nil, errors.Wrapf(err, "create heap file %s", path)
	}

	return &Manager{file: f}, nil
}

func Open(fs afero.Fs, path string) (*Manager, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat heap file %s", path)
	}

	if !exists {
		return nil, errors.Wrap(common.ErrFileNotExists, path)
	}

	f, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open heap file %s", path)
	}

	return &Manager{file: f}, nil
}

func pageOffset(pageNo common.PageNo) int64 {
	return int64(pageNo-1) * page.PageSize
}

// ReadPage returns a fresh copy of the page. Bytes past the end of the file
// read as zeroes.
func (m *Manager) ReadPage(pageNo common.PageNo) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, page.PageSize)

	_, err := m.file.ReadAt(data, pageOffset(pageNo))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, errors.Wrapf(err, "read page %d", pageNo)
	}

	return data, nil
}

// WritePage writes and syncs the page.
func (m *Manager) WritePage(pageNo common.PageNo, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.WriteAt(data, pageOffset(pageNo)); err != nil {
		return errors.Wrapf(err, "write page %d", pageNo)
	}

	if err := m.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync page %d", pageNo)
	}

	return nil
}

// Truncate shrinks the file to pageCount pages.
func (m *Manager) Truncate(pageCount common.PageNo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.file.Truncate(int64(pageCount) * page.PageSize); err != nil {
		return errors.Wrapf(err, "truncate heap file to %d pages", pageCount)
	}

	return nil
}

// PageCount reports the number of whole pages in the file.
func (m *Manager) PageCount() (common.PageNo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat heap file")
	}

	return common.PageNo(info.Size() / page.PageSize), nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return multierr.Append(m.file.Sync(), m.file.Close())
}
