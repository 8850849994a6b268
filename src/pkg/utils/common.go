package utils

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

const (
	KB int64 = 1 << 10
	MB int64 = 1 << 20
	GB int64 = 1 << 30
)

var ErrInvalidMemory = errors.New("invalid memory size")

// ParseMemory parses sizes such as "512KB", "64MB" or "1GB". A bare number is
// taken as bytes.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, errors.Wrap(ErrInvalidMemory, "empty")
	}

	unit := int64(1)
	for suffix, mul := range map[string]int64{"KB": KB, "MB": MB, "GB": GB} {
		if strings.HasSuffix(s, suffix) {
			unit = mul
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(ErrInvalidMemory, "%q", s)
	}

	return n * unit, nil
}
