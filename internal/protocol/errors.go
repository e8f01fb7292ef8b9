package protocol

import (
	"errors"

	"github.com/nullframe/rollback/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// the same shape as the teacher's internal/server errors.go.
var (
	ErrNotRunning      = errors.New("protocol: not running")
	ErrSendFailed      = errors.New("protocol: send failed")
	ErrCompressOverflow = errors.New("protocol: compressor overflow")
)

// mapErrToMetric maps a wrapped sentinel error to a stable metrics label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrSendFailed):
		return metrics.ErrSocketSend
	case errors.Is(err, ErrCompressOverflow):
		return metrics.ErrCompression
	default:
		return "other"
	}
}
