// Package memory 基于内存的 store.Store 实现，用于开发环境和测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hongjun500/lanchat/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	nextID   int64
	byName   map[string]*store.User
	byID     map[int64]*store.User
	messages []store.Message
	files    []store.FileRecord
	closed   bool
}

func New() *Store {
	return &Store{
		byName: make(map[string]*store.User),
		byID:   make(map[int64]*store.User),
	}
}

func (s *Store) AuthenticateUser(_ context.Context, username, password string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[username]
	if !ok || u.Password != password {
		return 0, store.ErrInvalidCredentials
	}
	return u.ID, nil
}

func (s *Store) AddUser(_ context.Context, username, password string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[username]; exists {
		return 0, store.ErrUserExists
	}
	s.nextID++
	u := &store.User{ID: s.nextID, Username: username, Password: password}
	s.byName[username] = u
	s.byID[u.ID] = u
	return u.ID, nil
}

func (s *Store) GetUsername(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return u.Username, nil
}

func (s *Store) GetUserID(_ context.Context, username string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[username]
	if !ok {
		return 0, store.ErrNotFound
	}
	return u.ID, nil
}

func (s *Store) StoreMessage(_ context.Context, senderID, receiverID int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Store) StoreFile(_ context.Context, rec store.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.files = append(s.files, rec)
	return nil
}

func (s *Store) GetContacts(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for name, u := range s.byName {
		if u.ID != userID {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Messages 返回已存消息的副本
func (s *Store) Messages() []store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Message(nil), s.messages...)
}

// Files 返回已存文件记录的副本
func (s *Store) Files() []store.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.FileRecord(nil), s.files...)
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
