package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hongjun500/lanchat/client"
	"github.com/hongjun500/lanchat/internal/command"
	"github.com/hongjun500/lanchat/internal/protocol"
)

func main() {
	var (
		addr = flag.String("addr", "127.0.0.1:12345", "server address")
		dir  = flag.String("dir", "received_files", "where received files are saved")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	c, err := client.Dial(ctx, *addr)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Println("connected:", *addr, "(/help 查看命令)")

	reg := command.NewRegistry()
	if err := command.RegisterBuiltins(reg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		out  = &syncWriter{w: os.Stdout}
		once sync.Once
		gone = make(chan struct{})
	)
	cctx := &command.Context{Client: c, Out: out, Me: &command.Identity{}}
	// 登录成功后才开始异步接收，之前的请求走同步应答
	cctx.OnLogin = func() {
		once.Do(func() { go receive(c, out, *dir, gone) })
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-gone:
			fmt.Fprintln(out, "[系统] 连接已断开")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handled, err := reg.Execute(line, cctx)
			switch {
			case errors.Is(err, command.ErrQuit):
				return
			case err != nil:
				fmt.Fprintln(out, "[错误]", err)
			case !handled && line != "":
				fmt.Fprintln(out, "[系统] 以 / 开头输入命令，/help 查看帮助")
			}
		}
	}
}

func receive(c *client.Client, out *syncWriter, dir string, gone chan<- struct{}) {
	defer close(gone)
	for {
		in, err := c.Receive()
		if err != nil {
			if !errors.Is(err, protocol.ErrConnClosed) {
				fmt.Fprintln(out, "[错误]", err)
			}
			return
		}
		if in.Type() == protocol.MsgFile {
			path, err := client.SaveReceived(dir, in)
			if err != nil {
				fmt.Fprintln(out, "[错误] save file:", err)
				continue
			}
			meta, _ := protocol.ParseFileMeta(in.Envelope)
			fmt.Fprintf(out, "[文件] %s 发来 %s (%d bytes) -> %s %s\n",
				meta.Sender, meta.Filename, len(in.Body), path, time.Now().Format("15:04:05"))
			continue
		}
		fmt.Fprintln(out, command.Describe(in))
	}
}

// syncWriter 输入循环和接收循环共用 stdout
type syncWriter struct {
	mu sync.Mutex
	w  *os.File
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
