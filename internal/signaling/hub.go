package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/arogya-labs/teleconsult/internal/models"
)

const (
	sweepInterval     = 5 * time.Minute
	collaboratorGrace = 5 * time.Second
)

// AppointmentStore is the persistence collaborator. Updates are best-effort
// from the hub's perspective: a failure is logged and never rolls back a
// signaling-level transition.
type AppointmentStore interface {
	SetMeetingStatus(ctx context.Context, appointmentID string, status models.MeetingStatus) error
}

// JoinNotifier alerts a doctor out-of-band when a patient asks to join a
// room the doctor has no live connection to. May be nil.
type JoinNotifier interface {
	JoinRequested(appointmentID, displayName string)
}

// delivery is one outbound frame, built under the hub lock and sent after
// it is released. A nil payload closes the connection instead.
type delivery struct {
	sender  Sender
	payload []byte
}

// Hub owns the connection registry and the room table. A single mutex
// serializes every state mutation, so each inbound message is handled to
// completion before the next; outbound frames go through non-blocking
// per-connection send queues.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *RoomTable

	appointments AppointmentStore
	notifier     JoinNotifier

	logger *slog.Logger
	nowFn  func() time.Time
	done   chan struct{}
}

func NewHub(appointments AppointmentStore, notifier JoinNotifier, roomTTL time.Duration, logger *slog.Logger) *Hub {
	h := &Hub{
		registry:     NewRegistry(),
		rooms:        NewRoomTable(roomTTL),
		appointments: appointments,
		notifier:     notifier,
		logger:       logger,
		nowFn:        time.Now,
		done:         make(chan struct{}),
	}
	if roomTTL > 0 {
		go h.sweepLoop()
	}
	return h
}

func (h *Hub) Close() {
	close(h.done)
}

// Attach registers a new transport session and tells the client its
// connection id.
func (h *Hub) Attach(sender Sender, role models.Role, userID string) (string, error) {
	h.mu.Lock()
	conn, err := h.registry.Attach(sender, role, userID)
	h.mu.Unlock()
	if err != nil {
		return "", err
	}

	h.logger.Debug("connection attached", "conn_id", conn.ID, "role", role, "user_id", userID)
	h.deliver([]delivery{{sender, encode(Envelope{
		Type: KindAttached,
		Data: mustMarshal(AttachedData{ConnID: conn.ID, Role: string(role)}),
	})}})
	return conn.ID, nil
}

// Detach tears down a transport session: membership and pending entries are
// removed, remaining room members get peer-left, and a room whose meeting
// had gone live is ended once both seats are empty. Calling it again for
// the same id is a no-op.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	conn, ok := h.registry.Detach(connID)
	if !ok {
		h.mu.Unlock()
		return
	}
	roomID := conn.RoomID
	out := h.vacateLocked(conn, h.nowFn())
	h.mu.Unlock()

	h.logger.Debug("connection detached", "conn_id", connID, "room_id", roomID)
	h.deliver(out)
}

// vacateLocked releases every room reference the connection holds: pending
// entries are dropped, a held member seat is freed with peer-left to whoever
// remains, and a live room whose seats are now both empty is ended.
func (h *Hub) vacateLocked(conn *Connection, now time.Time) []delivery {
	if conn.PendingRoomID != "" && conn.PendingRoomID != conn.RoomID {
		h.rooms.Leave(conn.PendingRoomID, conn.ID, now)
		conn.PendingRoomID = ""
	}
	if conn.RoomID == "" {
		return nil
	}
	roomID := conn.RoomID
	conn.RoomID = ""

	var out []delivery
	remaining, emptied := h.rooms.Leave(roomID, conn.ID, now)
	msg := encode(Envelope{Type: KindPeerLeft, Room: roomID, From: conn.ID})
	for _, id := range remaining {
		if member, ok := h.registry.Get(id); ok {
			out = append(out, delivery{member.sender, msg})
		}
	}
	if emptied {
		if room, ok := h.rooms.Get(roomID, now); ok && room.Activated {
			out = append(out, h.finalizeRoomLocked(room)...)
			h.setMeetingStatus(room.ID, models.MeetingEnded)
		}
	}
	return out
}

// HandleMessage decodes and dispatches one inbound frame. Malformed frames
// are rejected with an error envelope rather than dropped.
func (h *Hub) HandleMessage(connID string, payload []byte) {
	env, err := DecodeClient(payload)
	if err != nil {
		h.mu.Lock()
		conn, ok := h.registry.Get(connID)
		h.mu.Unlock()
		if ok {
			h.deliver([]delivery{errorDelivery(conn, err.Error())})
		}
		return
	}
	if env.Type == KindPing {
		// Keepalives count as room activity.
		h.mu.Lock()
		if conn, ok := h.registry.Get(connID); ok && conn.RoomID != "" {
			h.rooms.Touch(conn.RoomID, h.nowFn())
		}
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	conn, ok := h.registry.Get(connID)
	if !ok {
		h.mu.Unlock()
		return
	}

	// SDP and candidate payloads may carry addresses; log sizes only.
	h.logger.Debug("signaling recv",
		"conn_id", connID, "type", env.Type, "room_id", env.Room, "to", env.To, "data_bytes", len(env.Data))

	var out []delivery
	switch env.Type {
	case KindSubscribe:
		h.registry.Subscribe(connID)
	case KindOpenRoom:
		out = h.openRoomLocked(conn, env)
	case KindRequestJoin:
		out = h.requestJoinLocked(conn, env)
	case KindAdmit:
		out = h.admitLocked(conn, env)
	case KindReject:
		out = h.rejectLocked(conn, env)
	case KindEndMeeting:
		out = h.endMeetingLocked(conn, env)
	default:
		if env.Type.IsRelay() {
			out = h.relayLocked(conn, env)
		}
	}
	h.mu.Unlock()

	h.deliver(out)
}

// NotifyUser delivers an out-of-band event to every subscribed connection
// of a user. Used by the HTTP side (appointment booked and the like).
func (h *Hub) NotifyUser(userID, event string, payload any) {
	msg := encode(Envelope{
		Type: KindNotification,
		Data: mustMarshal(NotificationData{Event: event, Payload: mustMarshal(payload)}),
	})

	h.mu.Lock()
	conns := h.registry.UserConns(userID)
	out := make([]delivery, 0, len(conns))
	for _, conn := range conns {
		out = append(out, delivery{conn.sender, msg})
	}
	h.mu.Unlock()

	h.deliver(out)
}

func (h *Hub) openRoomLocked(conn *Connection, env Envelope) []delivery {
	if conn.Role != models.RoleDoctor {
		return []delivery{errorDelivery(conn, "only doctors can open rooms")}
	}
	if env.Room == "" {
		return []delivery{errorDelivery(conn, "room_id is required")}
	}

	now := h.nowFn()

	// A connection seated elsewhere gives that seat up first, so the other
	// room's member hears peer-left instead of waiting on a ghost.
	var out []delivery
	if conn.RoomID != "" && conn.RoomID != env.Room {
		out = h.vacateLocked(conn, now)
	}

	room, replaced := h.rooms.Open(env.Room, conn.ID, now)
	conn.RoomID = env.Room

	if replaced != "" {
		if old, ok := h.registry.Get(replaced); ok {
			old.RoomID = ""
			out = append(out, delivery{old.sender, nil})
		}
	}

	// The appointment goes live from the moment the doctor is in the room.
	h.setMeetingStatus(room.ID, models.MeetingActive)

	// Requests that arrived before (or across) the doctor's connection are
	// announced now, in arrival order.
	for _, req := range room.Pending() {
		out = append(out, delivery{conn.sender, encode(Envelope{
			Type: KindJoinRequested,
			Room: room.ID,
			Data: mustMarshal(JoinRequestedData{DisplayName: req.DisplayName, RequesterID: req.ConnID}),
		})})
	}

	h.logger.Info("room opened", "room_id", room.ID, "conn_id", conn.ID, "replaced", replaced != "", "pending", len(room.Pending()))
	return out
}

func (h *Hub) requestJoinLocked(conn *Connection, env Envelope) []delivery {
	if conn.Role != models.RolePatient {
		return []delivery{errorDelivery(conn, "only patients can request to join")}
	}
	if env.Room == "" {
		return []delivery{errorDelivery(conn, "room_id is required")}
	}
	var data RequestJoinData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return []delivery{errorDelivery(conn, "malformed request-join payload")}
		}
	}

	doctorID := h.rooms.RequestJoin(env.Room, conn.ID, data.DisplayName, h.nowFn())
	conn.PendingRoomID = env.Room

	if doctorID == "" {
		h.logger.Debug("join request stored, no doctor present", "room_id", env.Room, "conn_id", conn.ID)
		if h.notifier != nil {
			go h.notifier.JoinRequested(env.Room, data.DisplayName)
		}
		return nil
	}

	doctor, ok := h.registry.Get(doctorID)
	if !ok {
		return nil
	}
	return []delivery{{doctor.sender, encode(Envelope{
		Type: KindJoinRequested,
		Room: env.Room,
		Data: mustMarshal(JoinRequestedData{DisplayName: data.DisplayName, RequesterID: conn.ID}),
	})}}
}

func (h *Hub) admitLocked(conn *Connection, env Envelope) []delivery {
	if env.Room == "" || env.To == "" {
		return []delivery{errorDelivery(conn, "room_id and to are required")}
	}

	requester, attached := h.registry.Get(env.To)
	if !attached {
		// The waiting patient is gone; drop the stale request as well.
		_ = h.rooms.Reject(env.Room, conn.ID, env.To, h.nowFn())
		return []delivery{errorDelivery(conn, "requester is no longer connected")}
	}

	room, err := h.rooms.Admit(env.Room, conn.ID, env.To, h.nowFn())
	if err != nil {
		return []delivery{errorDelivery(conn, err.Error())}
	}

	requester.RoomID = room.ID
	requester.PendingRoomID = ""

	h.logger.Info("patient admitted", "room_id", room.ID, "doctor_conn", conn.ID, "patient_conn", requester.ID)
	return []delivery{
		{requester.sender, encode(Envelope{Type: KindAdmitted, Room: room.ID})},
		{conn.sender, encode(Envelope{
			Type: KindReadyForNegotiation,
			Room: room.ID,
			Data: mustMarshal(ReadyData{RequesterID: requester.ID}),
		})},
	}
}

func (h *Hub) rejectLocked(conn *Connection, env Envelope) []delivery {
	if env.Room == "" || env.To == "" {
		return []delivery{errorDelivery(conn, "room_id and to are required")}
	}
	if err := h.rooms.Reject(env.Room, conn.ID, env.To, h.nowFn()); err != nil {
		return []delivery{errorDelivery(conn, err.Error())}
	}

	requester, ok := h.registry.Get(env.To)
	if !ok {
		return nil
	}
	requester.PendingRoomID = ""
	return []delivery{{requester.sender, encode(Envelope{Type: KindJoinRejected, Room: env.Room})}}
}

// relayLocked forwards an opaque offer/answer/candidate payload to the
// destination connection with the sender annotated. Unknown destinations
// are dropped: signaling is best-effort and the peer's own WebRTC timeout
// surfaces a negotiation that never completes.
func (h *Hub) relayLocked(conn *Connection, env Envelope) []delivery {
	if env.To == "" {
		return []delivery{errorDelivery(conn, "destination is required")}
	}
	// An active negotiation keeps the room alive.
	if conn.RoomID != "" {
		h.rooms.Touch(conn.RoomID, h.nowFn())
	}
	target, ok := h.registry.Get(env.To)
	if !ok {
		h.logger.Debug("relay target not attached", "type", env.Type, "from", conn.ID, "to", env.To)
		return nil
	}
	return []delivery{{target.sender, encode(Envelope{
		Type: env.Type,
		From: conn.ID,
		Data: env.Data,
	})}}
}

func (h *Hub) endMeetingLocked(conn *Connection, env Envelope) []delivery {
	if env.Room == "" {
		return []delivery{errorDelivery(conn, "room_id is required")}
	}
	room, ok := h.rooms.Get(env.Room, h.nowFn())
	if !ok {
		return []delivery{errorDelivery(conn, ErrRoomNotFound.Error())}
	}
	if conn.ID != room.DoctorID && conn.ID != room.PatientID {
		return []delivery{errorDelivery(conn, ErrNotMember.Error())}
	}

	out := h.finalizeRoomLocked(room)
	h.setMeetingStatus(room.ID, models.MeetingEnded)
	h.logger.Info("meeting ended", "room_id", room.ID, "conn_id", conn.ID)
	return out
}

// finalizeRoomLocked notifies the members, unlinks every connection that
// references the room, and removes the record.
func (h *Hub) finalizeRoomLocked(room *Room) []delivery {
	msg := encode(Envelope{Type: KindMeetingEnded, Room: room.ID})
	var out []delivery
	for _, id := range room.Members() {
		if member, ok := h.registry.Get(id); ok {
			out = append(out, delivery{member.sender, msg})
			member.RoomID = ""
		}
	}
	for _, req := range room.Pending() {
		if pending, ok := h.registry.Get(req.ConnID); ok {
			pending.PendingRoomID = ""
		}
	}
	h.rooms.Remove(room.ID)
	return out
}

// setMeetingStatus runs the collaborator update without blocking signaling.
func (h *Hub) setMeetingStatus(roomID string, status models.MeetingStatus) {
	if h.appointments == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorGrace)
		defer cancel()
		if err := h.appointments.SetMeetingStatus(ctx, roomID, status); err != nil {
			h.logger.Error("meeting status update failed", "room_id", roomID, "status", status, "error", err)
		}
	}()
}

func (h *Hub) deliver(out []delivery) {
	for _, d := range out {
		if d.payload == nil {
			d.sender.Close()
			continue
		}
		if !d.sender.TrySend(d.payload) {
			d.sender.Close()
		}
	}
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.ExpireRooms(h.nowFn())
		case <-h.done:
			return
		}
	}
}

// ExpireRooms finalizes every room whose TTL has lapsed. An expired room
// behaves like an explicitly ended one, except the collaborator is only
// told "ended" when the meeting had actually gone live.
func (h *Hub) ExpireRooms(now time.Time) {
	h.mu.Lock()
	var out []delivery
	for _, room := range h.rooms.Expired(now) {
		out = append(out, h.finalizeRoomLocked(room)...)
		if room.Activated {
			h.setMeetingStatus(room.ID, models.MeetingEnded)
		}
		h.logger.Info("room expired", "room_id", room.ID, "activated", room.Activated)
	}
	h.mu.Unlock()
	h.deliver(out)
}

func errorDelivery(conn *Connection, msg string) delivery {
	return delivery{conn.sender, encode(Envelope{
		Type: KindError,
		Data: mustMarshal(ErrorData{Error: msg}),
	})}
}
