package ws

import (
	"context"
	"sync"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type presenceWrite struct {
	UserID int64
	Online bool
}

// memStore is an in-memory Store for end-to-end tests.
type memStore struct {
	mu            sync.Mutex
	users         map[int64]models.User
	messages      []models.Message
	presence      map[int64]models.Presence
	writes        []presenceWrite
	failSetOnline error
	lastCreated   time.Time
}

func newMemStore(users ...models.User) *memStore {
	s := &memStore{users: make(map[int64]models.User), presence: make(map[int64]models.Presence)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) CreateMessage(_ context.Context, senderID, receiverID int64, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = now
	msg := models.Message{
		ID:         int64(len(s.messages) + 1),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) MarkRead(_ context.Context, senderID, receiverID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetUser(_ context.Context, userID int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) GetOrCreatePresence(_ context.Context, userID int64) (models.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	if !ok {
		p = models.Presence{UserID: userID}
		s.presence[userID] = p
	}
	return p, nil
}

func (s *memStore) SetOnline(_ context.Context, userID int64, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetOnline != nil {
		return s.failSetOnline
	}
	s.presence[userID] = models.Presence{UserID: userID, IsOnline: online, LastActivity: at}
	s.writes = append(s.writes, presenceWrite{UserID: userID, Online: online})
	return nil
}

func (s *memStore) presenceWrites() []presenceWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presenceWrite(nil), s.writes...)
}

func (s *memStore) unread(senderID, receiverID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n
}
