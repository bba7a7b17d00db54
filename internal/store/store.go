// Package store 定义持久化网关：账号、消息历史、文件记录与联系人。
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 用户不存在
	ErrNotFound = errors.New("store: not found")
	// ErrUserExists 用户名已被注册
	ErrUserExists = errors.New("store: username already exists")
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)

// User 账号，密码按不透明字符串比较
type User struct {
	ID       int64
	Username string
	Password string
}

// Message 一条已持久化的文本消息
type Message struct {
	SenderID   int64
	ReceiverID int64
	Content    string
	CreatedAt  time.Time
}

// FileRecord 一次文件传输的记录；StoredName 指向文件区里的实际文件
type FileRecord struct {
	SenderID   int64
	ReceiverID int64
	Filename   string
	StoredName string
	Size       int64
	Checksum   string
	CreatedAt  time.Time
}

// Store 持久化网关
type Store interface {
	// AuthenticateUser 校验凭据，失败返回 ErrInvalidCredentials
	AuthenticateUser(ctx context.Context, username, password string) (int64, error)
	// AddUser 创建账号，重名返回 ErrUserExists
	AddUser(ctx context.Context, username, password string) (int64, error)
	GetUsername(ctx context.Context, userID int64) (string, error)
	GetUserID(ctx context.Context, username string) (int64, error)
	StoreMessage(ctx context.Context, senderID, receiverID int64, content string) error
	StoreFile(ctx context.Context, rec FileRecord) error
	// GetContacts 返回除自己之外的所有用户名，按字典序
	GetContacts(ctx context.Context, userID int64) ([]string, error)
	Close() error
}
