// Package event defines the duplex wire surface: every frame is a JSON
// envelope {"event": name, "data": payload} in both directions.
package event

import "encoding/json"

// Client -> core event names.
const (
	SendMessage       = "sendMessage"
	Typing            = "typing"
	StoppedTyping     = "stoppedTyping"
	CallRequest       = "callRequest"
	CallAccepted      = "callAccepted"
	CallRejected      = "callRejected"
	CallEnded         = "callEnded"
	Offer             = "offer"
	Answer            = "answer"
	IceCandidate      = "ice-candidate"
	GetRecentMessages = "getRecentMessages"
)

// Core -> client event names.
const (
	WebRTCConfig   = "webrtc-config"
	UserOnline     = "userOnline"
	UserOffline    = "userOffline"
	Message        = "message"
	IncomingCall   = "incomingCall"
	CallFailed     = "callFailed"
	RecentMessages = "recentMessages"
)

// Envelope is the raw frame read off the socket; Data stays opaque
// until the handler for the named event decodes it.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outgoing frame before marshaling.
type Event struct {
	Name string
	Data any
}

type SendMessagePayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	Type        string `json:"type,omitempty"`
}

type TypingPayload struct {
	RecipientID string `json:"recipientId"`
}

type SenderPayload struct {
	SenderID string `json:"senderId"`
}

type MessagePayload struct {
	SenderID string `json:"senderId"`
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type CallRequestPayload struct {
	ToUserID string          `json:"toUserId"`
	CallType string          `json:"callType,omitempty"`
	Offer    json.RawMessage `json:"offer,omitempty"`
	CallID   string          `json:"callId"`
}

type IncomingCallPayload struct {
	FromUserID   string          `json:"fromUserId"`
	FromUsername string          `json:"fromUsername,omitempty"`
	CallType     string          `json:"callType,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	CallID       string          `json:"callId"`
}

type CallFailedPayload struct {
	ToUserID string `json:"toUserId"`
	Reason   string `json:"reason"`
}

// CallAnswerPayload carries accept/reject/end transitions. Answer is
// present on callAccepted only.
type CallAnswerPayload struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// SignalPayload is relayed untouched for offer / answer / ice-candidate.
type SignalPayload struct {
	RecipientID string          `json:"recipientId"`
	Payload     json.RawMessage `json:"payload"`
}

// SignalRelayPayload is what the recipient sees: the original payload
// stamped with the sender's identity.
type SignalRelayPayload struct {
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

type GetRecentMessagesPayload struct {
	OtherUserID string `json:"otherUserId"`
}

type UserPresencePayload struct {
	UserID string `json:"userId"`
}

type WebRTCConfigPayload struct {
	IceServers []IceServer `json:"iceServers"`
}

type IceServer struct {
	URLs string `json:"urls"`
}
