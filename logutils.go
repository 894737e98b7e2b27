package hotrod

import (
	"strconv"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// keyField logs a key as its xxh3 fingerprint. Keys may hold user data.
func keyField(key []byte) zap.Field {
	if key == nil {
		return zap.Skip()
	}
	return zap.String("keyHash", strconv.FormatUint(xxh3.Hash(key), 16))
}
