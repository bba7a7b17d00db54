package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/chat"
)

// Server TCP 监听器：每个连接一个读 goroutine 加一个写 goroutine
type Server struct {
	addr     string
	opt      Options
	gw       Gateway
	sessions *SessionManager
	router   *chat.Router
	closers  []io.Closer
	log      *zap.Logger

	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

func NewServer(addr string, router *chat.Router, opt Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	sessions := NewSessionManager()
	return &Server{
		addr:     addr,
		opt:      opt.withDefaults(),
		gw:       NewChatGateway(router, sessions, log),
		sessions: sessions,
		router:   router,
		log:      log,
		closing:  make(chan struct{}),
	}
}

// CloseOnShutdown 注册在所有会话结束后关闭的资源（如存储网关）
func (s *Server) CloseOnShutdown(c io.Closer) {
	s.closers = append(s.closers, c)
}

func (s *Server) Sessions() *SessionManager { return s.sessions }

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.shutdown()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上接受连接，直到 ctx 取消或 ln 被关闭；返回前完成关停
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("tcp_listen", zap.String("addr", ln.Addr().String()))
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()
	defer s.shutdown()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("tcp_accept_error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	sess := newSession(conn, s.opt, s.log)
	sess.onClose = s.gw.OnSessionClose
	s.gw.OnSessionOpen(sess)
	go sess.writeLoop()
	// 关停开始后才登记的会话由这里关闭
	select {
	case <-s.closing:
		_ = sess.Close()
	default:
	}
	sess.serve(ctx, s.gw)
	<-sess.writerDone
}

// shutdown 关闭所有会话并等待其 goroutine 退出，最后关闭注册的资源
func (s *Server) shutdown() {
	s.once.Do(func() {
		close(s.closing)
		online := s.router.CloseAll()
		total := s.sessions.CloseAll()
		s.wg.Wait()
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				s.log.Warn("shutdown_close_error", zap.Error(err))
			}
		}
		s.log.Info("tcp_shutdown", zap.Int("online", online), zap.Int("sessions", total))
	})
}
