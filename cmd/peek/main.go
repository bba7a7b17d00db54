package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/hongjun500/lanchat/client"
	"github.com/hongjun500/lanchat/internal/protocol"
)

// peek 以某个账号登录后打印收到的每一帧，调试协议用
func main() {
	var (
		addr = flag.String("addr", "localhost:12345", "server address")
		user = flag.String("user", "", "login as this user (empty: stay unauthenticated)")
		pass = flag.String("pass", "", "password for -user")
		max  = flag.Int("max", protocol.MaxFileSize, "max frame size in bytes")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", *addr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if *user != "" {
		if _, err := conn.Write(protocol.NewLogin(*user, *pass)); err != nil {
			fmt.Fprintf(os.Stderr, "send login: %v\n", err)
			os.Exit(1)
		}
	}

	r := bufio.NewReader(conn)
	for {
		env, err := protocol.DecodeLimit(r, *max)
		if err != nil {
			if errors.Is(err, protocol.ErrConnClosed) {
				return
			}
			fmt.Fprintf(os.Stderr, "decode envelope error: %v\n", err)
			if protocol.IsRecoverable(err) {
				continue
			}
			os.Exit(1)
		}

		fmt.Printf("Envelope:\n")
		fmt.Printf("  type: %s\n", env.Type)
		if len(env.Data) == 0 {
			fmt.Printf("  data: <empty>\n")
		} else {
			fmt.Printf("  data: %s\n", env.Data)
		}
		if env.Type != protocol.MsgFile {
			continue
		}
		meta, err := protocol.ParseFileMeta(env)
		if err != nil {
			fmt.Fprintf(os.Stderr, "file header: %v\n", err)
			os.Exit(1)
		}
		body, err := protocol.ReadFileBody(r, meta.FileSize, int64(*max))
		if err != nil {
			fmt.Fprintf(os.Stderr, "file body: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  body: %d bytes\n", len(body))
	}
}
