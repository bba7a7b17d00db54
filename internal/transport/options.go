package transport

import (
	"time"

	"github.com/hongjun500/lanchat/internal/protocol"
)

// Options 会话与监听器的参数
type Options struct {
	OutBuffer    int           // 每个会话发送队列长度
	IdleTimeout  time.Duration // 等待下一帧首字节的读超时，到期只是继续等待；0 表示不设
	FrameTimeout time.Duration // 首字节到达后读完整个信封的时限，到期关闭会话；FILE 原始字节不受限
	WriteTimeout time.Duration // 单次写超时；0 表示不设
	MaxFrameSize int           // 单帧上限（字节），不超过 protocol.MaxFileSize
	MaxFileSize  int64         // FILE 原始字节上限，不超过 protocol.MaxFileSize
}

func (o Options) withDefaults() Options {
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = 30 * time.Second
	}
	// 转发与客户端解码都以 protocol.MaxFileSize 为上限
	if o.MaxFrameSize <= 0 || o.MaxFrameSize > protocol.MaxFileSize {
		o.MaxFrameSize = protocol.MaxFileSize
	}
	if o.MaxFileSize <= 0 || o.MaxFileSize > protocol.MaxFileSize {
		o.MaxFileSize = protocol.MaxFileSize
	}
	return o
}
