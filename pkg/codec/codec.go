// Package codec encodes and decodes the payloads sentinel writes to the
// coordination store: lifecycle state nodes, inbound command messages, and
// discovery endpoints. All wire formats are JSON.
package codec

import "encoding/json"

// State is one value of a worker's lifecycle.
type State string

const (
	StateStarting   State = "STARTING"
	StateRunning    State = "RUNNING"
	StateStopping   State = "STOPPING"
	StateTerminated State = "TERMINATED"
	StateFailed     State = "FAILED"
)

// StackFrame is one frame of a failure's stack trace.
type StackFrame struct {
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	FileName   string `json:"fileName"`
	LineNumber int    `json:"lineNumber"`
}

// Failure describes the error attached to a FAILED StateNode.
type Failure struct {
	Message    string       `json:"message"`
	StackTrace []StackFrame `json:"stackTrace,omitempty"`
}

// StateNode is the payload written to a run's /state path on every
// lifecycle transition.
type StateNode struct {
	State State    `json:"state"`
	Error *Failure `json:"error,omitempty"`
}

// EncodeStateNode marshals a StateNode to its wire form.
func EncodeStateNode(n StateNode) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeStateNode unmarshals a StateNode. A malformed payload returns
// nil: callers decide how to treat the absence of a valid node per the
// policy stated at each call site.
func DecodeStateNode(data []byte) *StateNode {
	var n StateNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	return &n
}

// MessageType distinguishes built-in control messages from user payloads.
type MessageType string

const (
	MessageSystem MessageType = "SYSTEM"
	MessageUser   MessageType = "USER"
)

// CommandStop is the only mandated built-in SYSTEM command.
const CommandStop = "stop"

// Message is the payload of one node under a run's /messages path.
//
// Payload round-trips through JSON as a base64 string, which is
// encoding/json's default behaviour for []byte, so no custom marshalling
// is needed.
type Message struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command,omitempty"`
	Payload []byte      `json:"payload,omitempty"`
}

// EncodeMessage marshals a Message to its wire form.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage unmarshals a Message, returning nil on a malformed payload.
func DecodeMessage(data []byte) *Message {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}

// IsStop reports whether m is the mandated SYSTEM/STOP command.
func (m Message) IsStop() bool {
	return m.Type == MessageSystem && m.Command == CommandStop
}

// Discoverable is a service-name plus network endpoint tuple advertised via
// the discovery registry.
type Discoverable struct {
	Service  string `json:"service"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// EncodeDiscoverable marshals a Discoverable to its wire form.
func EncodeDiscoverable(d Discoverable) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDiscoverable unmarshals a Discoverable, returning nil on a
// malformed payload.
func DecodeDiscoverable(data []byte) *Discoverable {
	var d Discoverable
	if err := json.Unmarshal(data, &d); err != nil {
		return nil
	}
	return &d
}

// liveNode is the envelope written as an ephemeral live node's content: the
// caller-supplied JSON value wrapped under a "data" field.
type liveNode struct {
	Data interface{} `json:"data"`
}

// EncodeLiveNode wraps an arbitrary caller-supplied value as live-node
// content.
func EncodeLiveNode(data interface{}) ([]byte, error) {
	return json.Marshal(liveNode{Data: data})
}

// DecodeLiveNode unwraps live-node content back to the caller-supplied
// value, returning nil on a malformed payload.
func DecodeLiveNode(raw []byte) interface{} {
	var n liveNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return n.Data
}
