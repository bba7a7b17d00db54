package transport

import (
	"sync"
	"sync/atomic"
)

// SessionManager 跟踪所有打开的会话，包括尚未登录的
type SessionManager struct {
	sync.Map // key: id string, value: *Session
	count    int64
}

// NewSessionManager 创建会话管理器
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Add 注册会话
func (sm *SessionManager) Add(s *Session) {
	if s == nil {
		return
	}
	if _, loaded := sm.LoadOrStore(s.ID(), s); !loaded {
		atomic.AddInt64(&sm.count, 1)
	}
}

// Remove 移除会话，重复调用无副作用
func (sm *SessionManager) Remove(id string) {
	if _, loaded := sm.LoadAndDelete(id); loaded {
		atomic.AddInt64(&sm.count, -1)
	}
}

// Count 获取当前会话数量
func (sm *SessionManager) Count() int64 {
	return atomic.LoadInt64(&sm.count)
}

// Get 获取会话
func (sm *SessionManager) Get(id string) (*Session, bool) {
	v, ok := sm.Load(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// GetAll 获取所有会话的快照
func (sm *SessionManager) GetAll() []*Session {
	all := make([]*Session, 0)
	sm.Range(func(_, value any) bool {
		if s, ok := value.(*Session); ok {
			all = append(all, s)
		}
		return true
	})
	return all
}

// CloseAll 关闭所有会话，返回关闭的数量
func (sm *SessionManager) CloseAll() int {
	all := sm.GetAll()
	for _, s := range all {
		_ = s.Close()
	}
	return len(all)
}
