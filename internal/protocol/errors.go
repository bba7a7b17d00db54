package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrConnClosed 对端在帧边界上正常关闭连接，不是故障
	ErrConnClosed = errors.New("connection closed by peer")
	// ErrIncompleteTransfer 文件原始字节未读满就遇到 EOF，连接必须中止
	ErrIncompleteTransfer = errors.New("incomplete file data received")
	// ErrFileTooLarge 文件超过 MaxFileSize，在写出任何字节之前返回
	ErrFileTooLarge = errors.New("file size exceeds 2MB limit")
	// ErrNotFile DecodeFile 读到的信封不是 FILE
	ErrNotFile = errors.New("envelope is not a FILE")
)

// 协议故障码
const (
	CodeShortHeader   = 1001
	CodeBadLength     = 1002
	CodeFrameTooLarge = 1003
	CodeTruncated     = 1004
	CodeMalformed     = 1005
	CodeMissingType   = 1006
	CodeInvalidUTF8   = 1007
	CodeBadFileSize   = 1008
	CodeBadFileHeader = 1009
)

// ProtocolFault 字节流内容不符合协议
// Recoverable 为 true 表示帧边界仍然完整，读循环可以继续。
type ProtocolFault struct {
	code        int
	msg         string
	context     string
	recoverable bool
	err         error
}

func (e *ProtocolFault) Error() string {
	if e.context != "" {
		return fmt.Sprintf("Error %d: %s (context: %s)", e.code, e.msg, e.context)
	}
	return fmt.Sprintf("Error %d: %s", e.code, e.msg)
}

func (e *ProtocolFault) Unwrap() error     { return e.err }
func (e *ProtocolFault) Code() int         { return e.code }
func (e *ProtocolFault) Recoverable() bool { return e.recoverable }

func newFault(code int, msg, context string, err error) *ProtocolFault {
	return &ProtocolFault{code: code, msg: msg, context: context, err: err}
}

func newRecoverableFault(code int, msg, context string, err error) *ProtocolFault {
	f := newFault(code, msg, context, err)
	f.recoverable = true
	return f
}

// TransportFault 底层连接读写失败（重置、超时等）
type TransportFault struct {
	Op  string
	Err error
}

func (e *TransportFault) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportFault) Unwrap() error { return e.Err }

// Timeout 是否为读写超时
func (e *TransportFault) Timeout() bool { return IsTimeout(e.Err) }

// IsTimeout 判断 err 是否由 deadline 到期引起
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRecoverable 判断解码错误之后读循环是否可以继续
func IsRecoverable(err error) bool {
	var pf *ProtocolFault
	return errors.As(err, &pf) && pf.Recoverable()
}
