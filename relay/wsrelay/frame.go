// Package wsrelay implements relay.Opener over a websocket control channel to
// a rendezvous server.
package wsrelay

import (
	"net/http"
)

// Frame types exchanged on the control channel. A listener sends register
// first and waits for accepted or rejected. Each relayed request arrives as
// one request frame and is answered by a head frame, zero or more data frames,
// and an end frame carrying the same ID.
const (
	FrameRegister = "register"
	FrameAccepted = "accepted"
	FrameRejected = "rejected"
	FrameStatus   = "status"
	FrameRequest  = "request"
	FrameHead     = "head"
	FrameData     = "data"
	FrameEnd      = "end"
)

// Values of Frame.State in status frames.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Frame is a single JSON message on the control channel.
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// register
	Connection string `json:"connection,omitempty"`
	PolicyName string `json:"policyName,omitempty"`
	PolicyKey  string `json:"policyKey,omitempty"`

	// request
	Method     string      `json:"method,omitempty"`
	URL        string      `json:"url,omitempty"`
	Header     http.Header `json:"header,omitempty"`
	RemoteAddr string      `json:"remoteAddr,omitempty"`

	// request and data
	Body []byte `json:"body,omitempty"`

	// head
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`

	// status
	State string `json:"state,omitempty"`

	// rejected
	Error string `json:"error,omitempty"`
}
