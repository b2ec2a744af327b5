package apilog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golden-vcr/openapi-go/rmq"
)

// Queue is the fanout exchange that API call events are published to for live
// consumers. Events sent while no consumer is bound are lost.
var Queue = rmq.QueueDeclaration{
	Name: "openapi-calls",
	Type: rmq.QueueTypeFanout,
}

// ArchiveQueue is the durable work queue that API call events are published to for
// persistence. Each event is delivered to exactly one archiving consumer.
var ArchiveQueue = rmq.QueueDeclaration{
	Name: "openapi-call-archive",
	Type: rmq.QueueTypeWork,
}

// Outcome summarizes how the gateway handled a call
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Event describes a single call to the gateway. AppId, Nonce and SignedAt are taken
// from the request's signature headers and may be empty if those headers were missing.
type Event struct {
	RequestId  string    `json:"requestId,omitempty"`
	AppId      string    `json:"appId,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Outcome    Outcome   `json:"outcome"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Nonce      string    `json:"nonce,omitempty"`
	SignedAt   int64     `json:"signedAt,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
	ElapsedMs  float64   `json:"elapsedMs"`
}

// OutcomeForStatus classifies an HTTP status code
func OutcomeForStatus(status int) Outcome {
	switch {
	case status >= 500:
		return OutcomeFailed
	case status >= 400:
		return OutcomeRejected
	}
	return OutcomeAccepted
}

// ParseEvent decodes the body of a message consumed from Queue
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode API call event: %w", err)
	}
	if ev.Method == "" || ev.Path == "" {
		return nil, fmt.Errorf("API call event is missing method or path")
	}
	return &ev, nil
}
