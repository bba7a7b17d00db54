package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/chat"
	"github.com/hongjun500/lanchat/internal/observe"
	"github.com/hongjun500/lanchat/internal/protocol"
)

// Session 一条 TCP 连接
// 读循环独占 reader；所有写都经发送队列由唯一的 writer goroutine 完成。
type Session struct {
	id     string
	remote string
	conn   net.Conn
	r      *bufio.Reader
	m      *chat.Machine
	opt    Options
	log    *zap.Logger

	out        chan []byte
	done       chan struct{}
	writerDone chan struct{}

	closeOnce sync.Once
	onClose   func(s *Session, err error)
}

func newSession(conn net.Conn, opt Options, log *zap.Logger) *Session {
	id := uuid.New().String()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		id:         id,
		remote:     remote,
		conn:       conn,
		r:          bufio.NewReader(conn),
		m:          chat.NewMachine(),
		opt:        opt,
		log:        log.With(zap.String("session", id)),
		out:        make(chan []byte, opt.OutBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) RemoteAddr() string     { return s.remote }
func (s *Session) Machine() *chat.Machine { return s.m }
func (s *Session) Done() <-chan struct{}  { return s.done }

// Send 非阻塞入队，队列满时丢弃该帧
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- frame:
		return nil
	default:
		observe.IncDropped()
		s.log.Warn("session_backpressure_drop", zap.Int("bytes", len(frame)))
		return ErrBackpressure
	}
}

// Close 幂等；writer 发完已入队的帧后关闭连接
func (s *Session) Close() error {
	s.closeWith(nil)
	return nil
}

func (s *Session) closeWith(err error) {
	s.closeOnce.Do(func() {
		s.m.Close()
		close(s.done)
		if s.onClose != nil {
			s.onClose(s, err)
		}
	})
}

func (s *Session) write(frame []byte) error {
	if s.opt.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opt.WriteTimeout))
	}
	_, err := s.conn.Write(frame)
	return err
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer func() { _ = s.conn.Close() }()
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				s.log.Warn("session_write_error", zap.Error(err))
				s.closeWith(&protocol.TransportFault{Op: "write", Err: err})
				return
			}
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain 关闭前把队列里剩下的帧写出去
func (s *Session) drain() {
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// serve 读循环，返回时会话已关闭
func (s *Session) serve(ctx context.Context, gw Gateway) {
	defer func() {
		if rec := recover(); rec != nil {
			observe.IncFault("panic")
			s.log.Error("session_panic", zap.Any("panic", rec), zap.Stack("stack"))
			s.closeWith(fmt.Errorf("panic: %v", rec))
			return
		}
		s.Close()
	}()
	if !s.m.Start() {
		return
	}
	for {
		req, err := s.next()
		if err != nil {
			if s.closed() || errors.Is(err, protocol.ErrConnClosed) {
				return
			}
			if protocol.IsRecoverable(err) {
				observe.IncFault("protocol")
				s.log.Warn("session_bad_envelope", zap.Error(err))
				continue
			}
			s.fail(err)
			return
		}
		gw.OnEnvelope(ctx, s, req)
	}
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) fail(err error) {
	var tf *protocol.TransportFault
	switch {
	case errors.Is(err, protocol.ErrIncompleteTransfer):
		observe.IncFault("transfer")
	case errors.As(err, &tf):
		observe.IncFault("transport")
	default:
		observe.IncFault("protocol")
	}
	s.log.Warn("session_fault", zap.Error(err))
	s.closeWith(err)
}

// next 等待并读取下一个完整请求
// 空闲超时只用于等待首字节；信封本身须在 FrameTimeout 内读完，之后的文件字节不设超时。
func (s *Session) next() (*chat.Request, error) {
	for {
		if s.opt.IdleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opt.IdleTimeout))
		}
		_, err := s.r.Peek(1)
		if err == nil {
			break
		}
		if protocol.IsTimeout(err) {
			if s.closed() {
				return nil, protocol.ErrConnClosed
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, protocol.ErrConnClosed
		}
		return nil, &protocol.TransportFault{Op: "read", Err: err}
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opt.FrameTimeout))
	env, err := protocol.DecodeLimit(s.r, s.opt.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	_ = s.conn.SetReadDeadline(time.Time{})
	req := &chat.Request{Envelope: env}
	// FILE 的原始字节无论是否通过鉴权都要读掉，保持流对齐
	if env.Type == protocol.MsgFile {
		meta, err := protocol.ParseFileMeta(env)
		if err != nil {
			return nil, err
		}
		body, err := protocol.ReadFileBody(s.r, meta.FileSize, s.opt.MaxFileSize)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	return req, nil
}
