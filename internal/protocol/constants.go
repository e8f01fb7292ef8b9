package protocol

import "time"

// Configurable constants (spec.md §6.4 defaults).
const (
	// MaxPredictionFrames bounds how far a session may advance ahead of the
	// lowest confirmed frame before AdvanceFrame refuses to emit requests.
	MaxPredictionFrames = 8
	// FrameDelayDefault is the local input delay a session applies unless
	// overridden per player via SetFrameDelay.
	FrameDelayDefault = 2
	// NumSyncPackets caps handshake attempts before SynchronizationFailed.
	NumSyncPackets = 5
	// SequenceWindow bounds how far a sequence number may have advanced
	// before a packet is treated as stale and dropped.
	SequenceWindow = 32768

	SyncRetryInterval     = 200 * time.Millisecond
	KeepAliveInterval     = 200 * time.Millisecond
	QualityReportInterval = 1000 * time.Millisecond
	DisconnectNotifyStart = 750 * time.Millisecond
	DisconnectTimeout     = 5000 * time.Millisecond
)
