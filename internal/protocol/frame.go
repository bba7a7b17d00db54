package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"strconv"
)

// HeaderSize 帧头长度：4 字节大端无符号整数
const HeaderSize = 4

// AppendFrame 把 payload 加上长度前缀追加到 dst
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame 写入一个帧，头和内容一次写出
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload))
	return err
}

// ReadFrame 读取一个帧
// 在帧边界上读到 EOF 返回 ErrConnClosed；帧头或内容不完整返回 *ProtocolFault；
// 其余读错误包装为 *TransportFault。
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [HeaderSize]byte
	// 使用 io.ReadFull 确保读取完整的 4 字节长度
	if n, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case n == 0 && errors.Is(err, io.EOF):
			return nil, ErrConnClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, newFault(CodeShortHeader, "short frame header", strconv.Itoa(n)+" bytes", err)
		default:
			return nil, &TransportFault{Op: "read header", Err: err}
		}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, newFault(CodeBadLength, "zero length frame", "", nil)
	}
	if maxSize > 0 && uint64(length) > uint64(maxSize) {
		return nil, newFault(CodeFrameTooLarge, "frame too large", strconv.FormatUint(uint64(length), 10), nil)
	}

	buf := make([]byte, length)
	if n, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, newFault(CodeTruncated, "truncated frame payload",
				strconv.Itoa(n)+"/"+strconv.FormatUint(uint64(length), 10), io.ErrUnexpectedEOF)
		}
		return nil, &TransportFault{Op: "read payload", Err: err}
	}
	return buf, nil
}
