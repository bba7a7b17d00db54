package chat

import (
	"sync"

	"github.com/hongjun500/lanchat/internal/protocol"
)

// State 会话状态
type State int

const (
	StateConnecting State = iota
	StateUnauthenticated
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Identity 已认证会话所代表的账号
type Identity struct {
	UserID   int64
	Username string
}

// requiresAuth 只有已认证会话才能发送的类型
var requiresAuth = map[protocol.MessageType]bool{
	protocol.MsgMessage:     true,
	protocol.MsgFile:        true,
	protocol.MsgContactList: true,
}

// Machine 单个会话的状态机
// Connecting -> Unauthenticated -> Authenticated(user) -> Closed，Closed 为终态
type Machine struct {
	mu    sync.RWMutex
	state State
	id    Identity
}

func NewMachine() *Machine {
	return &Machine{state: StateConnecting}
}

// Start reader 循环开始时调用
func (m *Machine) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnecting {
		return false
	}
	m.state = StateUnauthenticated
	return true
}

// Authenticate 进入 Authenticated；已认证时切换账号，返回之前的身份
func (m *Machine) Authenticate(id Identity) (prev Identity, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateUnauthenticated:
	case StateAuthenticated:
		prev = m.id
	default:
		return Identity{}, false
	}
	m.state = StateAuthenticated
	m.id = id
	return prev, true
}

// Close 只有第一次调用返回 true
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return false
	}
	m.state = StateClosed
	return true
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity 未认证时 ok 为 false；关闭后仍保留最后的身份，便于清理
func (m *Machine) Identity() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id, m.id.UserID != 0
}

// Allows 当前状态是否允许处理 t 类型的信封
func (m *Machine) Allows(t protocol.MessageType) bool {
	switch m.State() {
	case StateUnauthenticated:
		return !requiresAuth[t]
	case StateAuthenticated:
		return true
	}
	return false
}
