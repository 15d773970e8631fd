package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hsg8-commits/ripple/pkg/errors"
)

type delivered struct {
	Event   string
	Payload interface{}
}

type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []delivered
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Deliver(event string, payload interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, delivered{Event: event, Payload: payload})
	return true
}

func (c *fakeConn) received(event string) []delivered {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []delivered
	for _, d := range c.events {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

type fakeUserStore struct {
	mu       sync.Mutex
	users    map[string]*User
	statuses map[string]string
}

func newFakeUserStore(users ...*User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*User), statuses: make(map[string]string)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) SetUserStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	if u, ok := s.users[id]; ok {
		u.Status = status
	}
	return nil
}

func (s *fakeUserStore) BlockedIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return append([]string(nil), u.Blocked...), nil
}

func (s *fakeUserStore) BlockUser(_ context.Context, userID, targetID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	for _, id := range u.Blocked {
		if id == targetID {
			return append([]string(nil), u.Blocked...), nil
		}
	}
	u.Blocked = append(u.Blocked, targetID)
	return append([]string(nil), u.Blocked...), nil
}

func (s *fakeUserStore) UnblockUser(_ context.Context, userID, targetID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	kept := u.Blocked[:0]
	for _, id := range u.Blocked {
		if id != targetID {
			kept = append(kept, id)
		}
	}
	u.Blocked = kept
	return append([]string(nil), u.Blocked...), nil
}

func (s *fakeUserStore) UsersByIDs(_ context.Context, ids []string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newFakeRoomStore(rooms ...*Room) *fakeRoomStore {
	s := &fakeRoomStore{rooms: make(map[string]*Room)}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *fakeRoomStore) GetRoom(_ context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return r, nil
}

func (s *fakeRoomStore) AddParticipant(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrNotFound
	}
	for _, p := range r.Participants {
		if p == userID {
			return nil
		}
	}
	r.Participants = append(r.Participants, userID)
	return nil
}

func (s *fakeRoomStore) SetLastMessage(_ context.Context, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrNotFound
	}
	r.LastMessageID = messageID
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[string]*Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*Message)}
}

func (s *fakeMessageStore) CreateMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.TempID != "" {
		for _, existing := range s.messages {
			if existing.RoomID == m.RoomID && existing.TempID == m.TempID {
				return errors.Persistence(errors.New("duplicate temp id"))
			}
		}
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *fakeMessageStore) MessageByTempID(_ context.Context, roomID, tempID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.RoomID == roomID && m.TempID == tempID {
			return m, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (s *fakeMessageStore) MessageByID(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return m, nil
}

func (s *fakeMessageStore) AppendReply(_ context.Context, targetID, replyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[targetID]
	if !ok {
		return errors.ErrNotFound
	}
	m.Replies = append(m.Replies, replyID)
	return nil
}

func (s *fakeMessageStore) MarkSeen(_ context.Context, id, userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return errors.ErrNotFound
	}
	for _, u := range m.SeenBy {
		if u == userID {
			return nil
		}
	}
	m.SeenBy = append(m.SeenBy, userID)
	return nil
}

func (s *fakeMessageStore) SetBody(_ context.Context, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return errors.ErrNotFound
	}
	m.Body = body
	m.IsEdited = true
	return nil
}

func (s *fakeMessageStore) HideFor(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return errors.ErrNotFound
	}
	m.HideFor = append(m.HideFor, userID)
	return nil
}

func (s *fakeMessageStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return errors.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *fakeMessageStore) SetPinned(_ context.Context, id string, pinnedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return errors.ErrNotFound
	}
	m.PinnedAt = pinnedAt
	return nil
}

func (s *fakeMessageStore) LastMessages(_ context.Context, roomID string, n int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *fakeMessageStore) LatestVisible(_ context.Context, roomID, viewerID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Message
	for _, m := range s.messages {
		if m.RoomID != roomID {
			continue
		}
		hidden := false
		for _, u := range m.HideFor {
			if u == viewerID {
				hidden = true
				break
			}
		}
		if hidden {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, errors.ErrNotFound
	}
	return latest, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeCallStore struct {
	mu    sync.Mutex
	calls map[string]*CallRecord
}

func newFakeCallStore() *fakeCallStore {
	return &fakeCallStore{calls: make(map[string]*CallRecord)}
}

func (s *fakeCallStore) CreateCall(_ context.Context, c *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.calls[c.ID] = &cp
	return nil
}

func (s *fakeCallStore) CallByID(_ context.Context, id string) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return c, nil
}

func (s *fakeCallStore) Advance(_ context.Context, id string, to CallStatus, endTime *time.Time, duration int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok || c.Status.Terminal() {
		return false, nil
	}
	c.Status = to
	if endTime != nil {
		c.EndTime = endTime
	}
	if duration > c.Duration {
		c.Duration = duration
	}
	return true, nil
}

func (s *fakeCallStore) LatestCallerLeg(_ context.Context, roomID, callerID string, in []CallStatus) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *CallRecord
	for _, c := range s.calls {
		if c.RoomID != roomID || c.CallerID != callerID || c.Direction != DirectionOutgoing {
			continue
		}
		match := false
		for _, st := range in {
			if c.Status == st {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if latest == nil || c.StartTime.After(latest.StartTime) {
			latest = c
		}
	}
	if latest == nil {
		return nil, errors.ErrNotFound
	}
	return latest, nil
}

func (s *fakeCallStore) CloseRoomLegs(_ context.Context, roomID string, from []CallStatus, to CallStatus, endTime time.Time, duration int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.RoomID != roomID {
			continue
		}
		for _, st := range from {
			if c.Status == st {
				c.Status = to
				c.EndTime = &endTime
				if duration > c.Duration {
					c.Duration = duration
				}
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeCallStore) CallsForUser(_ context.Context, userID string, limit, offset int) ([]*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*CallRecord
	for _, c := range s.calls {
		if (c.Direction == DirectionOutgoing && c.CallerID == userID) ||
			(c.Direction == DirectionIncoming && c.ReceiverID == userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeCallStore) CallsForRoom(_ context.Context, roomID string, limit int) ([]*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*CallRecord
	for _, c := range s.calls {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeCallStore) FailStale(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if !c.Status.Terminal() && c.StartTime.Before(olderThan) {
			c.Status = CallFailed
			n++
		}
	}
	return n, nil
}

func (s *fakeCallStore) byDirection(roomID, direction string) []*CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*CallRecord
	for _, c := range s.calls {
		if c.RoomID == roomID && c.Direction == direction {
			out = append(out, c)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []string
}

func (n *fakeNotifier) MessageCreated(_ context.Context, userID string, _ *Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, userID)
}

func (n *fakeNotifier) pushed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.pushes...)
}
