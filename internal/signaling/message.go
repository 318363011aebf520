package signaling

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates every message exchanged over the signaling socket.
// The set is closed: anything outside it is rejected at the boundary.
type Kind string

const (
	// Client to server.
	KindSubscribe   Kind = "subscribe"
	KindOpenRoom    Kind = "open-room"
	KindRequestJoin Kind = "request-join"
	KindAdmit       Kind = "admit"
	KindReject      Kind = "reject"
	KindEndMeeting  Kind = "end-meeting"
	KindPing        Kind = "ping"

	// Relayed between peers in both directions. Payloads are opaque to the
	// server and forwarded byte-for-byte.
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"

	// Server to client.
	KindAttached            Kind = "attached"
	KindJoinRequested       Kind = "join-requested"
	KindAdmitted            Kind = "admitted"
	KindJoinRejected        Kind = "join-rejected"
	KindReadyForNegotiation Kind = "ready-for-negotiation"
	KindMeetingEnded        Kind = "meeting-ended"
	KindPeerLeft            Kind = "peer-left"
	KindNotification        Kind = "notification"
	KindError               Kind = "error"
)

// Envelope is the single frame shape on the wire. Room addresses a room,
// To/From address connections, Data carries the kind-specific payload.
type Envelope struct {
	Type Kind            `json:"type"`
	To   string          `json:"to,omitempty"`
	From string          `json:"from,omitempty"`
	Room string          `json:"room_id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type AttachedData struct {
	ConnID string `json:"conn_id"`
	Role   string `json:"role"`
}

type RequestJoinData struct {
	DisplayName string `json:"display_name"`
}

type JoinRequestedData struct {
	DisplayName string `json:"display_name"`
	RequesterID string `json:"requester_id"`
}

type ReadyData struct {
	RequesterID string `json:"requester_id"`
}

type NotificationData struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorData struct {
	Error string `json:"error"`
}

var clientKinds = map[Kind]struct{}{
	KindSubscribe:    {},
	KindOpenRoom:     {},
	KindRequestJoin:  {},
	KindAdmit:        {},
	KindReject:       {},
	KindEndMeeting:   {},
	KindPing:         {},
	KindOffer:        {},
	KindAnswer:       {},
	KindICECandidate: {},
}

// IsRelay reports whether the kind is forwarded verbatim between peers.
func (k Kind) IsRelay() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// DecodeClient parses one inbound frame. Malformed JSON and kinds a client
// may not send are both errors; the caller surfaces them instead of
// dropping the frame silently.
func DecodeClient(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if _, ok := clientKinds[env.Type]; !ok {
		return Envelope{}, fmt.Errorf("unknown message type %q", env.Type)
	}
	return env, nil
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func encode(env Envelope) []byte {
	b, _ := json.Marshal(env)
	return b
}
