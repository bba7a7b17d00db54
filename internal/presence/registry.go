// Package presence 维护在线用户到其会话的映射，是"谁在线"的唯一来源。
package presence

import "sync"

// Session 注册表引用（不拥有）的会话
type Session interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// Registry user_id -> Session，每个 user_id 至多一条
// 所有读写都在同一把互斥锁下进行，内部 map 不对外暴露。
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]Session
	owners   map[string]int64 // session id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]Session),
		owners:   make(map[string]int64),
	}
}

// Register 插入或替换 userID 的会话，返回被替换的旧会话（没有则为 nil）
// 同一会话换账号登录时，它在旧账号下的条目一并移除。
func (r *Registry) Register(userID int64, s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[s.ID()]; ok && owner != userID {
		delete(r.sessions, owner)
	}
	prev := r.sessions[userID]
	r.sessions[userID] = s
	r.owners[s.ID()] = userID
	if prev == nil || prev == s {
		return nil
	}
	delete(r.owners, prev.ID())
	return prev
}

// Unregister 移除值为 s 的条目；不存在时什么也不做。返回是否真正移除
func (r *Registry) Unregister(s Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.owners[s.ID()]
	if !ok || r.sessions[userID] != s {
		return false
	}
	delete(r.owners, s.ID())
	delete(r.sessions, userID)
	return true
}

// Lookup 返回 userID 当前在线的会话
func (r *Registry) Lookup(userID int64) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Len 在线用户数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll 清空注册表并关闭其中每个会话
// 会话的 Close 可能回调 Unregister，所以在锁外关闭。
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[int64]Session)
	r.owners = make(map[string]int64)
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return len(all)
}
