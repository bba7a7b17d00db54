package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/chat"
	"github.com/hongjun500/lanchat/internal/observe"
)

// Gateway 传输层与业务层的桥梁，负责处理会话事件和消息分发
type Gateway interface {
	OnSessionOpen(s *Session)
	OnEnvelope(ctx context.Context, s *Session, req *chat.Request)
	// OnSessionClose 每个会话恰好调用一次；err 为 nil 表示正常结束
	OnSessionClose(s *Session, err error)
}

// ChatGateway 把会话事件接到 chat.Router，并维护会话管理器
type ChatGateway struct {
	router   *chat.Router
	sessions *SessionManager
	log      *zap.Logger
}

func NewChatGateway(router *chat.Router, sessions *SessionManager, log *zap.Logger) *ChatGateway {
	return &ChatGateway{router: router, sessions: sessions, log: log}
}

func (g *ChatGateway) OnSessionOpen(s *Session) {
	g.sessions.Add(s)
	observe.IncConnection()
	observe.AddSession(1)
	g.log.Info("session_open", zap.String("session", s.ID()), zap.String("remote", s.RemoteAddr()))
}

func (g *ChatGateway) OnEnvelope(ctx context.Context, s *Session, req *chat.Request) {
	g.router.Dispatch(ctx, s, req)
}

func (g *ChatGateway) OnSessionClose(s *Session, err error) {
	g.router.Leave(s)
	g.sessions.Remove(s.ID())
	observe.AddSession(-1)
	fields := []zap.Field{zap.String("session", s.ID()), zap.String("remote", s.RemoteAddr())}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	g.log.Info("session_close", fields...)
}
