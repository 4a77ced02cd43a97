package signaling

import "encoding/json"

// Message types for signaling protocol.
const (
	TypeRegister         = "register"
	TypeRegistered       = "registered"
	TypeListHosts        = "list-hosts"
	TypeHosts            = "hosts"
	TypeHostsUpdated     = "hosts-updated"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice-candidate"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeError            = "error"
	TypeHostDisconnected = "host-disconnected"

	// Chunked file transfer side channel. The controller offers, the host
	// accepts with a resume point, chunks follow, and finish asks the host
	// to verify and answer with a result.
	TypeTransferOffer  = "transfer-offer"
	TypeTransferAccept = "transfer-accept"
	TypeTransferChunk  = "transfer-chunk"
	TypeTransferFinish = "transfer-finish"
	TypeTransferResult = "transfer-result"
)

// ClientType distinguishes host from controller.
const (
	ClientTypeHost       = "host"
	ClientTypeController = "controller"
)

// Message is the envelope for all signaling messages.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	From       string          `json:"from,omitempty"`
	Target     string          `json:"target,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	List       []HostInfo      `json:"list,omitempty"`
	HostID     string          `json:"hostId,omitempty"`
	Msg        string          `json:"message,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// TransferReply is the payload of transfer-accept and transfer-result.
type TransferReply struct {
	TransferID   string `json:"transferId"`
	ResumeOffset int64  `json:"resumeOffset,omitempty"`
	ResumeChunk  int    `json:"resumeChunk,omitempty"`
	Path         string `json:"path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// TransferFinish is the payload of transfer-finish.
type TransferFinish struct {
	TransferID string `json:"transferId"`
}

// HostInfo describes a host in the host list.
type HostInfo struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}
