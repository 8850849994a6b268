package engine

const (
	LedgerSuffix = ".xid"
	HeapSuffix   = ".db"
	LogSuffix    = ".log"
)

func GetLedgerFilePath(path string) string {
	return path + LedgerSuffix
}

func GetHeapFilePath(path string) string {
	return path + HeapSuffix
}

func GetLogFilePath(path string) string {
	return path + LogSuffix
}
