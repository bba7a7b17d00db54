package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/bus/redisstream"
	"github.com/hongjun500/lanchat/internal/filestore"
	"github.com/hongjun500/lanchat/internal/observe"
	"github.com/hongjun500/lanchat/internal/presence"
	"github.com/hongjun500/lanchat/internal/protocol"
	"github.com/hongjun500/lanchat/internal/store"
)

// 返回给客户端的提示文案
const (
	msgNotAuthenticated  = "Not authenticated"
	msgInvalidLogin      = "Invalid username or password"
	msgUserExists        = "Username already exists"
	msgCredentialsNeeded = "Username and password are required"
	msgInvalidMessage    = "Invalid message data"
	msgInvalidFile       = "Invalid file data"
	msgUnknownType       = "Unknown message type"
	msgInternal          = "Internal server error"
	msgDisplaced         = "Logged in from another connection"
)

const publishTimeout = 2 * time.Second

// Peer 路由器眼中的会话
type Peer interface {
	presence.Session
	Machine() *Machine
	RemoteAddr() string
}

// Request 一个待处理的信封；FILE 的原始字节已由会话读完放在 Body
type Request struct {
	Envelope *protocol.Envelope
	Body     []byte
}

// Publisher 存储成功后的事件出口，可为空
type Publisher interface {
	Publish(ctx context.Context, m *redisstream.Message) error
}

type Handler func(ctx context.Context, p Peer, req *Request)

type Deps struct {
	Store     store.Store
	Files     *filestore.Store
	Registry  *presence.Registry
	Publisher Publisher
	Logger    *zap.Logger
}

// Router 按信封类型分发
type Router struct {
	store    store.Store
	files    *filestore.Store
	registry *presence.Registry
	pub      Publisher
	log      *zap.Logger
	handlers map[protocol.MessageType]Handler
}

func NewRouter(d Deps) *Router {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		store:    d.Store,
		files:    d.Files,
		registry: d.Registry,
		pub:      d.Publisher,
		log:      log,
	}
	r.handlers = map[protocol.MessageType]Handler{
		protocol.MsgLogin:       r.handleLogin,
		protocol.MsgRegister:    r.handleRegister,
		protocol.MsgMessage:     r.handleMessage,
		protocol.MsgFile:        r.handleFile,
		protocol.MsgContactList: r.handleContacts,
	}
	return r
}

// CloseAll 关停时关闭所有在线会话，在线人数归零
func (r *Router) CloseAll() int {
	n := r.registry.CloseAll()
	observe.SetOnline(0)
	return n
}

// Dispatch 处理一个信封；所有回复都经 p.Send 进入会话的发送队列
func (r *Router) Dispatch(ctx context.Context, p Peer, req *Request) {
	t := req.Envelope.Type
	if t.Known() {
		observe.IncEnvelope(string(t))
	} else {
		observe.IncEnvelope("unknown")
	}

	h, ok := r.handlers[t]
	if !ok {
		r.reply(p, protocol.NewError(msgUnknownType))
		return
	}
	m := p.Machine()
	if !m.Allows(t) {
		if m.State() == StateClosed {
			return
		}
		r.reply(p, protocol.NewError(msgNotAuthenticated))
		return
	}
	h(ctx, p, req)
}

// Leave 会话关闭时调用，只移除属于该会话的在线条目
func (r *Router) Leave(p Peer) {
	if r.registry.Unregister(p) {
		observe.SetOnline(r.registry.Len())
		if id, ok := p.Machine().Identity(); ok {
			r.log.Info("user_offline", zap.String("session", p.ID()), zap.String("user", id.Username))
		}
	}
}

func (r *Router) reply(p presence.Session, frame []byte) {
	if err := p.Send(frame); err != nil {
		r.log.Debug("reply_dropped", zap.String("session", p.ID()), zap.Error(err))
	}
}

func (r *Router) internal(p Peer, op string, err error) {
	r.log.Error("router_internal_error",
		zap.String("session", p.ID()), zap.String("op", op), zap.Error(err))
	r.reply(p, protocol.NewError(msgInternal))
}

func (r *Router) handleLogin(ctx context.Context, p Peer, req *Request) {
	var c protocol.Credentials
	if err := req.Envelope.Bind(&c); err != nil || c.Username == "" {
		observe.IncAuth("fail")
		r.reply(p, protocol.NewError(msgInvalidLogin))
		return
	}
	userID, err := r.store.AuthenticateUser(ctx, c.Username, c.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		observe.IncAuth("fail")
		r.log.Info("login_failed", zap.String("session", p.ID()), zap.String("user", c.Username))
		r.reply(p, protocol.NewError(msgInvalidLogin))
		return
	}
	if err != nil {
		r.internal(p, "authenticate", err)
		return
	}

	m := p.Machine()
	prev, ok := m.Authenticate(Identity{UserID: userID, Username: c.Username})
	if !ok {
		return
	}
	displaced := r.registry.Register(userID, p)
	// 注册与关闭并发时，关闭一方的 Leave 可能已经执行过
	if m.State() == StateClosed {
		r.registry.Unregister(p)
	}
	if displaced != nil {
		observe.IncAuth("displaced")
		r.log.Info("session_displaced",
			zap.String("user", c.Username), zap.String("old", displaced.ID()), zap.String("new", p.ID()))
		_ = displaced.Send(protocol.NewError(msgDisplaced))
		_ = displaced.Close()
	}
	observe.IncAuth("ok")
	observe.SetOnline(r.registry.Len())
	r.log.Info("login_ok",
		zap.String("session", p.ID()), zap.String("user", c.Username),
		zap.String("previous", prev.Username), zap.String("remote", p.RemoteAddr()))
	r.reply(p, protocol.NewSuccess(fmt.Sprintf("User %s logged in", c.Username)))
}

func (r *Router) handleRegister(ctx context.Context, p Peer, req *Request) {
	var c protocol.Credentials
	if err := req.Envelope.Bind(&c); err != nil || c.Username == "" || c.Password == "" {
		r.reply(p, protocol.NewError(msgCredentialsNeeded))
		return
	}
	_, err := r.store.AddUser(ctx, c.Username, c.Password)
	if errors.Is(err, store.ErrUserExists) {
		r.reply(p, protocol.NewError(msgUserExists))
		return
	}
	if err != nil {
		r.internal(p, "add_user", err)
		return
	}
	r.log.Info("user_registered", zap.String("session", p.ID()), zap.String("user", c.Username))
	r.reply(p, protocol.NewSuccess(fmt.Sprintf("User %s registered", c.Username)))
}

// resolve 把接收方用户名解析为 id；未知用户已回复错误时 ok 为 false
func (r *Router) resolve(ctx context.Context, p Peer, receiver string) (int64, bool) {
	rid, err := r.store.GetUserID(ctx, receiver)
	if errors.Is(err, store.ErrNotFound) {
		observe.IncMessage("rejected")
		r.reply(p, protocol.NewError(fmt.Sprintf("User %s not found", receiver)))
		return 0, false
	}
	if err != nil {
		r.internal(p, "get_user_id", err)
		return 0, false
	}
	return rid, true
}

// deliver 接收方在线则入队，返回是否投递
func (r *Router) deliver(receiverID int64, frame []byte) bool {
	target, ok := r.registry.Lookup(receiverID)
	if !ok {
		observe.IncMessage("offline")
		return false
	}
	if err := target.Send(frame); err != nil {
		observe.IncMessage("offline")
		return false
	}
	observe.IncMessage("delivered")
	return true
}

func (r *Router) handleMessage(ctx context.Context, p Peer, req *Request) {
	sender, _ := p.Machine().Identity()
	var msg protocol.TextPayload
	if err := req.Envelope.Bind(&msg); err != nil || msg.Receiver == "" {
		r.reply(p, protocol.NewError(msgInvalidMessage))
		return
	}
	rid, ok := r.resolve(ctx, p, msg.Receiver)
	if !ok {
		return
	}
	if err := r.store.StoreMessage(ctx, sender.UserID, rid, msg.Content); err != nil {
		r.internal(p, "store_message", err)
		return
	}
	delivered := r.deliver(rid, protocol.NewText(sender.Username, msg.Receiver, msg.Content))
	r.log.Debug("message_routed",
		zap.String("from", sender.Username), zap.String("to", msg.Receiver), zap.Bool("delivered", delivered))
	r.publish(ctx, &redisstream.Message{
		Type:      redisstream.TypeMessageStored,
		When:      time.Now(),
		From:      sender.Username,
		To:        msg.Receiver,
		Text:      msg.Content,
		Delivered: delivered,
	})
}

func (r *Router) handleFile(ctx context.Context, p Peer, req *Request) {
	sender, _ := p.Machine().Identity()
	var meta protocol.FilePayload
	if err := req.Envelope.Bind(&meta); err != nil {
		r.reply(p, protocol.NewError(msgInvalidFile))
		return
	}
	name := filepath.Base(meta.Filename)
	if meta.Filename == "" || name == "." || name == string(filepath.Separator) || meta.Receiver == "" {
		r.reply(p, protocol.NewError(msgInvalidFile))
		return
	}
	rid, ok := r.resolve(ctx, p, meta.Receiver)
	if !ok {
		return
	}
	observe.AddFileBytes(len(req.Body))

	saved, err := r.files.Save(bytes.NewReader(req.Body), name, sender.Username)
	if err != nil {
		r.internal(p, "save_file", err)
		return
	}
	rec := store.FileRecord{
		SenderID:   sender.UserID,
		ReceiverID: rid,
		Filename:   name,
		StoredName: saved.StoredName,
		Size:       saved.Size,
		Checksum:   saved.Checksum,
	}
	if err := r.store.StoreFile(ctx, rec); err != nil {
		r.internal(p, "store_file", err)
		return
	}

	delivered := false
	forward, err := protocol.NewFileForward(sender.Username, meta.Receiver, name, req.Body)
	if err != nil {
		r.log.Warn("file_forward_encode", zap.String("file", name), zap.Error(err))
	} else {
		delivered = r.deliver(rid, forward)
	}
	r.log.Info("file_routed",
		zap.String("from", sender.Username), zap.String("to", meta.Receiver),
		zap.String("file", name), zap.Int64("size", saved.Size), zap.Bool("delivered", delivered))
	r.reply(p, protocol.NewSuccess(fmt.Sprintf("File %s sent to %s", name, meta.Receiver)))
	r.publish(ctx, &redisstream.Message{
		Type:      redisstream.TypeFileStored,
		When:      time.Now(),
		From:      sender.Username,
		To:        meta.Receiver,
		Filename:  name,
		Size:      saved.Size,
		Checksum:  saved.Checksum,
		Delivered: delivered,
	})
}

func (r *Router) handleContacts(ctx context.Context, p Peer, _ *Request) {
	id, _ := p.Machine().Identity()
	contacts, err := r.store.GetContacts(ctx, id.UserID)
	if err != nil {
		r.internal(p, "get_contacts", err)
		return
	}
	r.reply(p, protocol.NewContactList(contacts))
}

func (r *Router) publish(ctx context.Context, m *redisstream.Message) {
	if r.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.pub.Publish(ctx, m); err != nil {
		r.log.Warn("event_publish_failed", zap.String("type", m.Type), zap.Error(err))
	}
}
