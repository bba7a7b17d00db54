// Package client 聊天协议的 Go 客户端
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hongjun500/lanchat/internal/protocol"
)

// DefaultTimeout 登录/注册这类同步请求等待响应的时间
const DefaultTimeout = 5 * time.Second

// ServerError 服务端返回的 ERROR
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server: " + e.Message }

// Incoming 从服务端收到的一个信封；FILE 的原始字节在 Body
type Incoming struct {
	Envelope *protocol.Envelope
	Body     []byte
}

func (in *Incoming) Type() protocol.MessageType { return in.Envelope.Type }

// Status 解析 ERROR / SUCCESS 的提示文案
func (in *Incoming) Status() string {
	var st protocol.StatusPayload
	_ = in.Envelope.Bind(&st)
	return st.Message
}

// connReader 让 bufio.Reader 也能设置读超时
type connReader struct {
	*bufio.Reader
	conn net.Conn
}

func (c connReader) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

type Client struct {
	conn    net.Conn
	r       connReader
	wmu     sync.Mutex
	Timeout time.Duration
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

func New(conn net.Conn) *Client {
	return &Client{
		conn:    conn,
		r:       connReader{Reader: bufio.NewReader(conn), conn: conn},
		Timeout: DefaultTimeout,
	}
}

func (c *Client) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// roundTrip 发送请求并同步等待 SUCCESS 或 ERROR
func (c *Client) roundTrip(frame []byte) (string, error) {
	if err := c.write(frame); err != nil {
		return "", err
	}
	env, err := protocol.DecodeTimeout(c.r, c.Timeout)
	if err != nil {
		return "", err
	}
	in := &Incoming{Envelope: env}
	switch env.Type {
	case protocol.MsgSuccess:
		return in.Status(), nil
	case protocol.MsgError:
		return "", &ServerError{Message: in.Status()}
	}
	return "", fmt.Errorf("unexpected %s reply", env.Type)
}

// Register 注册账号，不会自动登录
func (c *Client) Register(username, password string) (string, error) {
	return c.roundTrip(protocol.NewRegister(username, password))
}

// Login 登录；必须在开始 Receive 循环之前调用
func (c *Client) Login(username, password string) (string, error) {
	return c.roundTrip(protocol.NewLogin(username, password))
}

func (c *Client) SendMessage(receiver, content string) error {
	return c.write(protocol.NewText("", receiver, content))
}

func (c *Client) SendFileData(receiver, filename string, data []byte) error {
	frame, err := protocol.EncodeFile(filepath.Base(filename), data, receiver)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendFile 读取本地文件并发送，超过大小上限时不发送任何字节
func (c *Client) SendFile(receiver, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > protocol.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes", protocol.ErrFileTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.SendFileData(receiver, path, data)
}

func (c *Client) RequestContacts() error {
	return c.write(protocol.NewContactListRequest())
}

// Receive 阻塞读取下一个信封，连接正常结束时返回 protocol.ErrConnClosed
func (c *Client) Receive() (*Incoming, error) {
	env, err := protocol.Decode(c.r)
	if err != nil {
		return nil, err
	}
	in := &Incoming{Envelope: env}
	if env.Type == protocol.MsgFile {
		meta, err := protocol.ParseFileMeta(env)
		if err != nil {
			return nil, err
		}
		if in.Body, err = protocol.ReadFileBody(c.r, meta.FileSize, protocol.MaxFileSize); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// ReceiveTimeout 同 Receive，但最多等待 d
func (c *Client) ReceiveTimeout(d time.Duration) (*Incoming, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, err
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	return c.Receive()
}

func (c *Client) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// SaveReceived 把收到的文件存到 dir/received_<name>，返回路径
func SaveReceived(dir string, in *Incoming) (string, error) {
	meta, err := protocol.ParseFileMeta(in.Envelope)
	if err != nil {
		return "", err
	}
	name := filepath.Base(meta.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.New("file has no name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "received_"+name)
	if err := os.WriteFile(path, in.Body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
