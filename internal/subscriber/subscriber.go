// Package subscriber 消费事件流：按事件类型分发给订阅者，默认订阅者写审计日志并计数
package subscriber

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/bus/redisstream"
	"github.com/hongjun500/lanchat/internal/observe"
)

type Func func(ctx context.Context, m *redisstream.Message) error

type Set struct {
	mu   sync.RWMutex
	subs map[string][]Func
}

func NewSet() *Set {
	return &Set{subs: make(map[string][]Func)}
}

func (s *Set) Subscribe(typ string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[typ] = append(s.subs[typ], fn)
}

// Handle 作为 redisstream.Handler 使用；任一订阅者出错即返回，消息不 ack，闲置后由 Consume 重新认领
func (s *Set) Handle(ctx context.Context, m *redisstream.Message) error {
	s.mu.RLock()
	fns := s.subs[m.Type]
	s.mu.RUnlock()
	if len(fns) == 0 {
		observe.IncBusEvent("unknown")
		return nil
	}
	observe.IncBusEvent(m.Type)
	for _, fn := range fns {
		if err := fn(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAll 注册内置订阅者
func RegisterAll(s *Set, log *zap.Logger) {
	registerMessage(s, log)
	registerFile(s, log)
}

func registerMessage(s *Set, log *zap.Logger) {
	s.Subscribe(redisstream.TypeMessageStored, func(_ context.Context, m *redisstream.Message) error {
		log.Info("audit_message",
			zap.Time("when", m.When),
			zap.String("from", m.From),
			zap.String("to", m.To),
			zap.Int("len", len(m.Text)),
			zap.Bool("delivered", m.Delivered))
		return nil
	})
}

func registerFile(s *Set, log *zap.Logger) {
	s.Subscribe(redisstream.TypeFileStored, func(_ context.Context, m *redisstream.Message) error {
		log.Info("audit_file",
			zap.Time("when", m.When),
			zap.String("from", m.From),
			zap.String("to", m.To),
			zap.String("file", m.Filename),
			zap.Int64("size", m.Size),
			zap.String("sha256", m.Checksum),
			zap.Bool("delivered", m.Delivered))
		return nil
	})
}
