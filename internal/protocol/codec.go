package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// Encode 序列化 {type, data} 并加上长度前缀
// 这里不限制大小，调用方需要自行检查。
func Encode(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", t, err)
	}
	payload, err := json.Marshal(&Envelope{Type: t, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", t, err)
	}
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload), nil
}

// Decode 从 r 读取一个帧并解析为 Envelope，帧长度上限为 MaxFileSize
func Decode(r io.Reader) (*Envelope, error) {
	return DecodeLimit(r, MaxFileSize)
}

// DecodeLimit 同 Decode，maxSize<=0 表示不限制
func DecodeLimit(r io.Reader, maxSize int) (*Envelope, error) {
	raw, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	return Unmarshal(raw)
}

// Unmarshal 解析帧内容；失败时帧边界仍然完整，返回可恢复的 *ProtocolFault
func Unmarshal(raw []byte) (*Envelope, error) {
	if !utf8.Valid(raw) {
		return nil, newRecoverableFault(CodeInvalidUTF8, "payload is not utf-8", "", nil)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("{")) {
		return nil, newRecoverableFault(CodeMalformed, "payload not object", "", nil)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newRecoverableFault(CodeMalformed, "malformed payload", err.Error(), err)
	}
	if env.Type == "" {
		return nil, newRecoverableFault(CodeMissingType, "missing field: type", "", nil)
	}
	return &env, nil
}

type readDeadliner interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// DecodeTimeout 只对这一次读取设置超时，返回前恢复为不超时
// 用于登录这类同步的请求/响应交换。
func DecodeTimeout(r readDeadliner, d time.Duration) (*Envelope, error) {
	if d > 0 {
		if err := r.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, &TransportFault{Op: "set deadline", Err: err}
		}
		defer func() { _ = r.SetReadDeadline(time.Time{}) }()
	}
	return Decode(r)
}

// EncodeFile 编码 FILE 信封并在其后追加原始文件字节
// 超过 MaxFileSize 时不产生任何输出。
func EncodeFile(filename string, data []byte, receiver string) ([]byte, error) {
	return EncodeFilePayload(FilePayload{Filename: filename, Receiver: receiver}, data)
}

// EncodeFilePayload 同 EncodeFile，可携带 sender 等完整元数据；FileSize 总是取 len(data)
func EncodeFilePayload(meta FilePayload, data []byte) ([]byte, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}
	meta.FileSize = int64(len(data))
	frame, err := Encode(MsgFile, meta)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(frame)+len(data))
	out = append(out, frame...)
	return append(out, data...), nil
}

// DecodeFile 读取一个 FILE 信封及其后的原始字节
func DecodeFile(r io.Reader) (string, []byte, error) {
	env, err := Decode(r)
	if err != nil {
		return "", nil, err
	}
	if env.Type != MsgFile {
		return "", nil, ErrNotFile
	}
	meta, err := ParseFileMeta(env)
	if err != nil {
		return "", nil, err
	}
	data, err := ReadFileBody(r, meta.FileSize, MaxFileSize)
	if err != nil {
		return "", nil, err
	}
	return meta.Filename, data, nil
}

// ParseFileMeta 解析 FILE 信封的元数据；失败时无法确定后续字节数，故为不可恢复错误
func ParseFileMeta(env *Envelope) (FilePayload, error) {
	var meta FilePayload
	if err := env.Bind(&meta); err != nil {
		return FilePayload{}, newFault(CodeBadFileHeader, "bad file metadata", err.Error(), err)
	}
	return meta, nil
}

// ReadFileBody 读取恰好 size 字节的原始文件数据
// 未读满就遇到 EOF 返回 ErrIncompleteTransfer。
func ReadFileBody(r io.Reader, size, maxSize int64) ([]byte, error) {
	if size < 0 || (maxSize > 0 && size > maxSize) {
		return nil, newFault(CodeBadFileSize, "invalid file size", fmt.Sprint(size), nil)
	}
	data := make([]byte, size)
	if n, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteTransfer, n, size)
		}
		return nil, &TransportFault{Op: "read file", Err: err}
	}
	return data, nil
}
