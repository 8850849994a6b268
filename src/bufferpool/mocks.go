package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/llifei/db2023/src/pkg/common"
)

type MockDiskManager struct {
	mock.Mock
}

var (
	_ DiskManager = &MockDiskManager{}
)

func (m *MockDiskManager) ReadPage(pageNo common.PageNo) ([]byte, error) {
	args := m.Called(pageNo)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDiskManager) WritePage(pageNo common.PageNo, data []byte) error {
	args := m.Called(pageNo, data)
	return args.Error(0)
}

func (m *MockDiskManager) Truncate(pageCount common.PageNo) error {
	args := m.Called(pageCount)
	return args.Error(0)
}

func (m *MockDiskManager) PageCount() (common.PageNo, error) {
	args := m.Called()
	return args.Get(0).(common.PageNo), args.Error(1)
}

func (m *MockDiskManager) Close() error {
	args := m.Called()
	return args.Error(0)
}
