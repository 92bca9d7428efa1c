package consts

import "time"

// Endpoint of the command channel
const (
	// DefaultHost is the loopback address the command server binds to
	DefaultHost = "127.0.0.1"
	// DefaultPort is the fixed port the Promethean client connects to
	DefaultPort = 1317
)

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize128KB is the maximum payload read from the socket at once
	BufferSize128KB = 128 * 1024
	// ReadBufferSize is the per-read cap of the command protocol
	ReadBufferSize = BufferSize128KB
	// QueueCapacity bounds each of the inbound/outbound channel queues
	QueueCapacity = 64
)

// Protocol tokens
const (
	// VacateToken asks a running server to release its listening port
	VacateToken = "promethean_vacate_socket"
	// VacateAck is written back to the vacating client before the listener closes
	VacateAck = "vacated"
	// ResponseNone is the explicit empty result
	ResponseNone = "None"
	// ResponseError signals that the handler failed on the host side
	ResponseError = "ERROR"
	// InternalServerErrorCommand is injected by the server process when it cannot start
	InternalServerErrorCommand = "internal_server_error"
	// CheckpointLabelPrefix prefixes undo checkpoint labels
	CheckpointLabelPrefix = "Promethean AI: "
)

// Timeouts for various operations
const (
	// VacateTimeout is the first vacate handshake window
	VacateTimeout = 1 * time.Second
	// VacateRetryTimeout is the second, shorter vacate handshake window
	VacateRetryTimeout = 500 * time.Millisecond
	// BindRetryWindow is how long the server keeps retrying a busy port
	BindRetryWindow = VacateTimeout + VacateRetryTimeout
	// BindRetryInterval is the pause between two bind attempts
	BindRetryInterval = 50 * time.Millisecond
	// PollInterval is the host poller timer interval
	PollInterval = 10 * time.Millisecond
	// StartupDelay defers the automatic server start after host start-up
	StartupDelay = 5 * time.Second
	// Timeout2Seconds is a 2 second timeout
	Timeout2Seconds = 2 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
)

// Scene conventions
const (
	// UnitsMultiplier converts host units to Promethean units (centimetres)
	UnitsMultiplier = 100.0
	// KillSuffix marks objects flagged by the kill command
	KillSuffix = "__kill__"
	// NoParent is reported for objects without a parent
	NoParent = "no_parent"
)
