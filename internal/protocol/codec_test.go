package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		typ   MessageType
		data  any
		fresh func() any
	}{
		{"login", MsgLogin, &Credentials{Username: "alice", Password: "pw"}, func() any { return &Credentials{} }},
		{"register", MsgRegister, &Credentials{Username: "bob", Password: "秘密"}, func() any { return &Credentials{} }},
		{"message", MsgMessage, &TextPayload{Sender: "alice", Receiver: "bob", Content: "hi \"there\"\n"}, func() any { return &TextPayload{} }},
		{"file", MsgFile, &FilePayload{Filename: "a.txt", FileSize: 3, Receiver: "bob"}, func() any { return &FilePayload{} }},
		{"contacts", MsgContactList, &ContactListPayload{Contacts: []string{"alice", "bob"}}, func() any { return &ContactListPayload{} }},
		{"error", MsgError, &StatusPayload{Message: "Not authenticated"}, func() any { return &StatusPayload{} }},
		{"success", MsgSuccess, &StatusPayload{Message: "ok"}, func() any { return &StatusPayload{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.typ, tt.data)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got := int(binary.BigEndian.Uint32(frame[:HeaderSize])); got != len(frame)-HeaderSize {
				t.Fatalf("length prefix %d, payload %d", got, len(frame)-HeaderSize)
			}

			env, err := Decode(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Type != tt.typ {
				t.Fatalf("type: got %s, want %s", env.Type, tt.typ)
			}
			want, _ := json.Marshal(tt.data)
			if !bytes.Equal(env.Data, want) {
				t.Fatalf("data: got %s, want %s", env.Data, want)
			}
			got := tt.fresh()
			if err := env.Bind(got); err != nil {
				t.Fatalf("bind: %v", err)
			}
			if !reflect.DeepEqual(got, tt.data) {
				t.Fatalf("payload mismatch: got %+v, want %+v", got, tt.data)
			}
		})
	}
}

func header(n uint32) []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func TestDecodeFramingRobustness(t *testing.T) {
	valid := NewSuccess("ok")

	tests := []struct {
		name        string
		input       []byte
		closed      bool
		code        int
		recoverable bool
	}{
		{"empty stream", nil, true, 0, false},
		{"one header byte", []byte{0}, false, CodeShortHeader, false},
		{"two header bytes", []byte{0, 0}, false, CodeShortHeader, false},
		{"three header bytes", []byte{0, 0, 1}, false, CodeShortHeader, false},
		{"truncated payload", append(header(10), []byte(`{"ty`)...), false, CodeTruncated, false},
		{"header only", header(10), false, CodeTruncated, false},
		{"zero length", header(0), false, CodeBadLength, false},
		{"malformed json", append(header(4), []byte(`{bad`)...), false, CodeMalformed, true},
		{"not an object", append(header(3), []byte(`[1]`)...), false, CodeMalformed, true},
		{"missing type", append(header(11), []byte(`{"data":{}}`)...), false, CodeMissingType, true},
		{"invalid utf8", append(header(2), 0xff, 0xfe), false, CodeInvalidUTF8, true},
		{"truncated valid frame", valid[:len(valid)-1], false, CodeTruncated, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode(bytes.NewReader(tt.input))
			if env != nil {
				t.Fatalf("expected nil envelope, got %+v", env)
			}
			if tt.closed {
				if !errors.Is(err, ErrConnClosed) {
					t.Fatalf("expected ErrConnClosed, got %v", err)
				}
				return
			}
			var pf *ProtocolFault
			if !errors.As(err, &pf) {
				t.Fatalf("expected *ProtocolFault, got %T %v", err, err)
			}
			if pf.Code() != tt.code {
				t.Fatalf("code: got %d, want %d (%v)", pf.Code(), tt.code, err)
			}
			if pf.Recoverable() != tt.recoverable {
				t.Fatalf("recoverable: got %v, want %v", pf.Recoverable(), tt.recoverable)
			}

			// a fresh stream is unaffected
			env, err = Decode(bytes.NewReader(valid))
			if err != nil || env.Type != MsgSuccess {
				t.Fatalf("fresh stream decode: %v %+v", err, env)
			}
		})
	}
}

func TestDecodeLimitRejectsOversizedFrame(t *testing.T) {
	input := append(header(17), bytes.Repeat([]byte("x"), 17)...)
	_, err := DecodeLimit(bytes.NewReader(input), 16)
	var pf *ProtocolFault
	if !errors.As(err, &pf) || pf.Code() != CodeFrameTooLarge {
		t.Fatalf("expected frame too large, got %v", err)
	}
}

func TestDecodeSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(NewLogin("alice", "pw"))
	buf.Write(NewContactListRequest())
	buf.Write(NewError("nope"))

	want := []MessageType{MsgLogin, MsgContactList, MsgError}
	for _, w := range want {
		env, err := Decode(&buf)
		if err != nil {
			t.Fatalf("decode %s: %v", w, err)
		}
		if env.Type != w {
			t.Fatalf("got %s, want %s", env.Type, w)
		}
	}
	if _, err := Decode(&buf); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed at end of stream, got %v", err)
	}
}

func TestDecodeTimeoutRestoresDeadline(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	_, err := DecodeTimeout(c2, 20*time.Millisecond)
	var tf *TransportFault
	if !errors.As(err, &tf) || !tf.Timeout() {
		t.Fatalf("expected timeout transport fault, got %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = c1.Write(NewSuccess("late"))
	}()
	env, err := Decode(c2)
	if err != nil {
		t.Fatalf("decode after timeout: %v", err)
	}
	var st StatusPayload
	if err := env.Bind(&st); err != nil || st.Message != "late" {
		t.Fatalf("unexpected payload %+v, err %v", st, err)
	}
}

func TestEncodeFileSizeGate(t *testing.T) {
	out, err := EncodeFile("big.bin", make([]byte, MaxFileSize+1), "bob")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no bytes, got %d", len(out))
	}

	data := bytes.Repeat([]byte{0xab}, MaxFileSize)
	out, err = EncodeFile("max.bin", data, "bob")
	if err != nil {
		t.Fatalf("encode max size: %v", err)
	}
	name, got, err := DecodeFile(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if name != "max.bin" || !bytes.Equal(got, data) {
		t.Fatalf("file mismatch: name=%s len=%d", name, len(got))
	}
}

func TestDecodeFileMetadata(t *testing.T) {
	out, err := NewFileForward("alice", "bob", "note.txt", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	r := bytes.NewReader(out)
	env, err := Decode(r)
	if err != nil {
		t.Fatal(err)
	}
	var meta FilePayload
	if err := env.Bind(&meta); err != nil {
		t.Fatal(err)
	}
	want := FilePayload{Filename: "note.txt", FileSize: 5, Receiver: "bob", Sender: "alice"}
	if meta != want {
		t.Fatalf("got %+v, want %+v", meta, want)
	}
	body, err := ReadFileBody(r, meta.FileSize, MaxFileSize)
	if err != nil || string(body) != "hello" {
		t.Fatalf("body %q, err %v", body, err)
	}
}

func TestDecodeFileIncompleteTransfer(t *testing.T) {
	out, err := EncodeFile("a.bin", bytes.Repeat([]byte("z"), 100), "")
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = DecodeFile(bytes.NewReader(out[:len(out)-50]))
	if !errors.Is(err, ErrIncompleteTransfer) {
		t.Fatalf("expected ErrIncompleteTransfer, got %v", err)
	}

	// 元数据之后没有任何字节
	frameOnly := out[:len(out)-100]
	_, _, err = DecodeFile(bytes.NewReader(frameOnly))
	if !errors.Is(err, ErrIncompleteTransfer) {
		t.Fatalf("expected ErrIncompleteTransfer for empty body, got %v", err)
	}
}

func TestDecodeFileRejectsOtherTypes(t *testing.T) {
	name, data, err := DecodeFile(bytes.NewReader(NewText("a", "b", "c")))
	if !errors.Is(err, ErrNotFile) || name != "" || data != nil {
		t.Fatalf("expected ErrNotFile and empty result, got %q %v %v", name, data, err)
	}
}

func TestReadFileBodyRejectsBadSize(t *testing.T) {
	for _, size := range []int64{-1, MaxFileSize + 1} {
		_, err := ReadFileBody(bytes.NewReader(nil), size, MaxFileSize)
		var pf *ProtocolFault
		if !errors.As(err, &pf) || pf.Code() != CodeBadFileSize {
			t.Fatalf("size %d: expected bad file size fault, got %v", size, err)
		}
	}
	body, err := ReadFileBody(bytes.NewReader(nil), 0, MaxFileSize)
	if err != nil || len(body) != 0 {
		t.Fatalf("empty file: %v %v", body, err)
	}
}

func TestContactListEncodesEmptyArray(t *testing.T) {
	env, err := Decode(bytes.NewReader(NewContactList(nil)))
	if err != nil {
		t.Fatal(err)
	}
	if string(env.Data) != `{"contacts":[]}` {
		t.Fatalf("got %s", env.Data)
	}
}
