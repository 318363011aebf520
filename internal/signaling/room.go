package signaling

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomNotOpen  = errors.New("room has not been opened by a doctor")
	ErrRoomFull     = errors.New("room already has two members")
	ErrNotRequested = errors.New("no pending join request for connection")
	ErrNotMember    = errors.New("connection is not a room member")
)

// JoinRequest is one waiting patient. Requests keep arrival order so the
// doctor sees them in the order patients asked.
type JoinRequest struct {
	ConnID      string
	DisplayName string
}

// Room is the rendezvous point for one appointment. At most one doctor and
// one patient hold the member seats; further patients wait in pending.
type Room struct {
	ID        string
	Opened    bool
	DoctorID  string
	PatientID string
	pending   []JoinRequest

	// Activated records that both seats were filled at some point, which is
	// what "the meeting went live" means at the signaling level.
	Activated bool

	ExpiresAt time.Time
}

func (r *Room) Members() []string {
	members := make([]string, 0, 2)
	if r.DoctorID != "" {
		members = append(members, r.DoctorID)
	}
	if r.PatientID != "" {
		members = append(members, r.PatientID)
	}
	return members
}

func (r *Room) Pending() []JoinRequest {
	out := make([]JoinRequest, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Room) pendingIndex(connID string) int {
	for i, req := range r.pending {
		if req.ConnID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) removePending(connID string) bool {
	i := r.pendingIndex(connID)
	if i < 0 {
		return false
	}
	r.pending = append(r.pending[:i], r.pending[i+1:]...)
	return true
}

// RoomTable owns every room record. All room creation and mutation goes
// through it so the capacity and admission invariants hold everywhere.
// Not safe for concurrent use; the hub serializes access.
type RoomTable struct {
	rooms map[string]*Room
	ttl   time.Duration
}

func NewRoomTable(ttl time.Duration) *RoomTable {
	return &RoomTable{
		rooms: make(map[string]*Room),
		ttl:   ttl,
	}
}

// Get returns a live room. Rooms past their TTL are reported as absent;
// the hub finalizes them through Expired.
func (t *RoomTable) Get(roomID string, now time.Time) (*Room, bool) {
	room, ok := t.rooms[roomID]
	if !ok {
		return nil, false
	}
	if t.expired(room, now) {
		return nil, false
	}
	return room, true
}

func (t *RoomTable) getOrCreate(roomID string, now time.Time) *Room {
	if room, ok := t.Get(roomID, now); ok {
		return room
	}
	room := &Room{ID: roomID}
	t.rooms[roomID] = room
	t.touch(room, now)
	return room
}

// Touch refreshes the TTL of a live room. Relay traffic and keepalives
// count as activity just like admission-protocol operations.
func (t *RoomTable) Touch(roomID string, now time.Time) {
	if room, ok := t.Get(roomID, now); ok {
		t.touch(room, now)
	}
}

func (t *RoomTable) touch(room *Room, now time.Time) {
	if t.ttl > 0 {
		room.ExpiresAt = now.Add(t.ttl)
	}
}

func (t *RoomTable) expired(room *Room, now time.Time) bool {
	return !room.ExpiresAt.IsZero() && now.After(room.ExpiresAt)
}

// Open marks the room opened with doctorConnID in the doctor seat. A second
// open from a different connection replaces the previous doctor connection
// (the reconnect case); the replaced id is returned so the hub can unlink
// it. Pending requests survive the swap.
func (t *RoomTable) Open(roomID, doctorConnID string, now time.Time) (room *Room, replaced string) {
	room = t.getOrCreate(roomID, now)
	if room.DoctorID != "" && room.DoctorID != doctorConnID {
		replaced = room.DoctorID
	}
	room.Opened = true
	room.DoctorID = doctorConnID
	t.touch(room, now)
	return room, replaced
}

// RequestJoin queues a patient connection. The request is stored even when
// no doctor has opened the room yet and announced once one does. A repeat
// request from the same connection updates the display name in place.
// Returns the doctor connection id to notify, or "" if none is present.
func (t *RoomTable) RequestJoin(roomID, connID, displayName string, now time.Time) (doctorConnID string) {
	room := t.getOrCreate(roomID, now)
	if i := room.pendingIndex(connID); i >= 0 {
		room.pending[i].DisplayName = displayName
	} else {
		room.pending = append(room.pending, JoinRequest{ConnID: connID, DisplayName: displayName})
	}
	t.touch(room, now)
	return room.DoctorID
}

// Admit moves a waiting patient into the patient seat. Every precondition
// failure is an explicit error so the doctor's client can surface it; on
// error nothing is mutated.
func (t *RoomTable) Admit(roomID, doctorConnID, requesterID string, now time.Time) (*Room, error) {
	room, ok := t.Get(roomID, now)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.Opened || room.DoctorID == "" {
		return nil, ErrRoomNotOpen
	}
	if room.DoctorID != doctorConnID {
		return nil, ErrNotMember
	}
	if room.pendingIndex(requesterID) < 0 {
		return nil, ErrNotRequested
	}
	if room.PatientID != "" {
		return nil, ErrRoomFull
	}

	room.removePending(requesterID)
	room.PatientID = requesterID
	room.Activated = true
	t.touch(room, now)
	return room, nil
}

// Reject drops a pending request without admitting it.
func (t *RoomTable) Reject(roomID, doctorConnID, requesterID string, now time.Time) error {
	room, ok := t.Get(roomID, now)
	if !ok {
		return ErrRoomNotFound
	}
	if room.DoctorID != doctorConnID {
		return ErrNotMember
	}
	if !room.removePending(requesterID) {
		return ErrNotRequested
	}
	t.touch(room, now)
	return nil
}

// Leave removes the connection from the member seats and the pending queue.
// It returns the remaining member ids for notification and whether the room
// is now empty of members.
func (t *RoomTable) Leave(roomID, connID string, now time.Time) (remaining []string, emptied bool) {
	room, ok := t.rooms[roomID]
	if !ok {
		return nil, false
	}
	switch connID {
	case room.DoctorID:
		room.DoctorID = ""
	case room.PatientID:
		room.PatientID = ""
	default:
		room.removePending(connID)
		return room.Members(), false
	}
	t.touch(room, now)
	remaining = room.Members()
	return remaining, len(remaining) == 0
}

// Remove deletes the room record outright.
func (t *RoomTable) Remove(roomID string) {
	delete(t.rooms, roomID)
}

// Expired collects rooms past their TTL so the hub can finalize them.
func (t *RoomTable) Expired(now time.Time) []*Room {
	var out []*Room
	for _, room := range t.rooms {
		if t.expired(room, now) {
			out = append(out, room)
		}
	}
	return out
}
