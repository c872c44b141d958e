// Package common holds constants shared by the passage tools.
package common

import "time"

const (
	// AppName is shown in the console header and the status API.
	AppName = "passage"

	// Version of the listener.
	Version = "0.4.0"

	// DefaultMaxLogs is the number of transactions kept for display when
	// MaxLogs is unset.
	DefaultMaxLogs = 20

	// DefaultRetryDelay is the wait between relay connection attempts.
	DefaultRetryDelay = 5 * time.Second

	// DefaultDrainTimeout bounds how long shutdown waits for in-flight
	// requests before cancelling them.
	DefaultDrainTimeout = 10 * time.Second

	// DefaultRequestTimeout bounds a single request to the local target.
	DefaultRequestTimeout = 100 * time.Second

	// DefaultRelayURL is the rendezvous endpoint used when neither the config
	// nor the environment provide one.
	DefaultRelayURL = "ws://localhost:7780/$listen"

	// DefaultRendezvousAddress is the listen address of relayd.
	DefaultRendezvousAddress = ":7780"

	// ListenPath is the websocket path listeners register on.
	ListenPath = "/$listen"

	// PreviewLength is the number of body bytes shown in a log row.
	PreviewLength = 40

	// CaptureLength is the number of body bytes captured per record.
	CaptureLength = 4096

	// CopyBufferSize is the buffer used when relaying response bodies.
	CopyBufferSize = 32 * 1024
)

// Environment variables that override config file values.
const (
	EnvMaxLogs  = "PASSAGE_MAX_LOGS"
	EnvVerbose  = "PASSAGE_VERBOSE"
	EnvRelayURL = "PASSAGE_RELAY_URL"
)
