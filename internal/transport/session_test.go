package transport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/chat"
	"github.com/hongjun500/lanchat/internal/protocol"
)

type panicGateway struct {
	closes atomic.Int32
}

func (g *panicGateway) OnSessionOpen(*Session) {}
func (g *panicGateway) OnEnvelope(context.Context, *Session, *chat.Request) {
	panic("handler bug")
}
func (g *panicGateway) OnSessionClose(*Session, error) { g.closes.Add(1) }

func TestSendBackpressure(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	s := newSession(srv, Options{OutBuffer: 1}.withDefaults(), zap.NewNop())

	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send([]byte("b")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	_ = s.Close()
	if err := s.Send([]byte("c")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	s := newSession(srv, Options{}.withDefaults(), zap.NewNop())
	frame := protocol.NewSuccess("bye")
	_ = s.Send(frame)
	_ = s.Close()
	go s.writeLoop()

	env, err := protocol.Decode(cli)
	if err != nil {
		t.Fatalf("queued frame lost on close: %v", err)
	}
	if env.Type != protocol.MsgSuccess {
		t.Fatalf("got %s", env.Type)
	}
	if _, err := protocol.Decode(cli); !errors.Is(err, protocol.ErrConnClosed) {
		t.Fatalf("expected connection closed after drain, got %v", err)
	}
}

func TestPanicClosesOnce(t *testing.T) {
	srv, cli := net.Pipe()
	defer cli.Close()
	gw := &panicGateway{}
	s := newSession(srv, Options{}.withDefaults(), zap.NewNop())
	s.onClose = gw.OnSessionClose
	go s.writeLoop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.serve(context.Background(), gw)
	}()
	if _, err := cli.Write(protocol.NewRegister("alice", "pw")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after panic")
	}
	_ = s.Close()
	if gw.closes.Load() != 1 {
		t.Fatalf("close callback ran %d times", gw.closes.Load())
	}
	if s.Machine().State() != chat.StateClosed {
		t.Fatalf("state %v", s.Machine().State())
	}
}

func TestSessionManager(t *testing.T) {
	sm := NewSessionManager()
	a, b := net.Pipe()
	defer b.Close()
	s := newSession(a, Options{}.withDefaults(), zap.NewNop())

	sm.Add(s)
	sm.Add(s)
	if sm.Count() != 1 {
		t.Fatalf("count %d", sm.Count())
	}
	if got, ok := sm.Get(s.ID()); !ok || got != s {
		t.Fatal("get")
	}
	if n := sm.CloseAll(); n != 1 || s.Machine().State() != chat.StateClosed {
		t.Fatalf("close all: %d", n)
	}
	sm.Remove(s.ID())
	sm.Remove(s.ID())
	if sm.Count() != 0 {
		t.Fatalf("count after remove %d", sm.Count())
	}
}

func TestOptionsClampToProtocolLimit(t *testing.T) {
	opt := Options{MaxFrameSize: 3 << 20, MaxFileSize: 3 << 20}.withDefaults()
	if opt.MaxFrameSize != protocol.MaxFileSize || opt.MaxFileSize != protocol.MaxFileSize {
		t.Fatalf("limits not clamped: %d %d", opt.MaxFrameSize, opt.MaxFileSize)
	}
	opt = Options{MaxFrameSize: 1024, MaxFileSize: 512}.withDefaults()
	if opt.MaxFrameSize != 1024 || opt.MaxFileSize != 512 {
		t.Fatalf("smaller limits changed: %d %d", opt.MaxFrameSize, opt.MaxFileSize)
	}
}
