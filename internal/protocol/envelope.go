package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType 信封类型（即线上协议里的 type 字段）
type MessageType string

const (
	MsgLogin       MessageType = "LOGIN"
	MsgRegister    MessageType = "REGISTER"
	MsgMessage     MessageType = "MESSAGE"
	MsgFile        MessageType = "FILE"
	MsgContactList MessageType = "CONTACT_LIST"
	MsgError       MessageType = "ERROR"
	MsgSuccess     MessageType = "SUCCESS"
)

// MaxFileSize 单个文件允许的最大字节数（2MB），同时也是默认的最大帧长度
const MaxFileSize = 2048 * 1024

// Known 判断是否为协议定义的七种类型之一
func (t MessageType) Known() bool {
	switch t {
	case MsgLogin, MsgRegister, MsgMessage, MsgFile, MsgContactList, MsgError, MsgSuccess:
		return true
	}
	return false
}

// Envelope 一帧承载一个信封：{type, data}
// 解码后不可变，Data 保留原始 JSON，按需 Bind 到具体负载结构。
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Bind 将 data 解码到 v
func (e *Envelope) Bind(v any) error {
	if e == nil {
		return fmt.Errorf("envelope is nil")
	}
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("bind %s data: %w", e.Type, err)
	}
	return nil
}
