package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hongjun500/lanchat/client"
	"github.com/hongjun500/lanchat/internal/protocol"
)

// RegisterBuiltins 注册内置命令
func RegisterBuiltins(r *Registry) error {
	cmds := []*Command{
		{
			Name: "help",
			Help: "查看帮助",
			Handler: func(ctx *Context) error {
				for _, c := range r.List() {
					line := "/" + c.Name
					if c.Usage != "" {
						line += " " + c.Usage
					}
					line += " - " + c.Help
					if len(c.Aliases) > 0 {
						line += " (别名: " + strings.Join(c.Aliases, ", ") + ")"
					}
					ctx.Printf("%s", line)
				}
				return nil
			},
		},
		{
			Name:    "register",
			Usage:   "<username> <password>",
			Help:    "注册账号",
			MinArgs: 2,
			Handler: func(ctx *Context) error {
				if loggedIn(ctx) {
					return errors.New("already logged in")
				}
				msg, err := ctx.Client.Register(ctx.Args[0], ctx.Args[1])
				if err != nil {
					return err
				}
				ctx.Printf("[系统] %s", msg)
				return nil
			},
		},
		{
			Name:    "login",
			Usage:   "<username> <password>",
			Help:    "登录",
			MinArgs: 2,
			Handler: func(ctx *Context) error {
				if loggedIn(ctx) {
					return errors.New("already logged in")
				}
				msg, err := ctx.Client.Login(ctx.Args[0], ctx.Args[1])
				if err != nil {
					return err
				}
				ctx.Me.Name = ctx.Args[0]
				ctx.Printf("[系统] %s", msg)
				if ctx.OnLogin != nil {
					ctx.OnLogin()
				}
				return nil
			},
		},
		{
			Name:      "msg",
			Aliases:   []string{"m"},
			Usage:     "<to> <text>",
			Help:      "发送私信",
			NeedLogin: true,
			MinArgs:   2,
			Handler: func(ctx *Context) error {
				return ctx.Client.SendMessage(ctx.Args[0], rest(ctx.Raw, 2))
			},
		},
		{
			Name:      "file",
			Aliases:   []string{"sendfile"},
			Usage:     "<to> <path>",
			Help:      "发送文件（最大 2MB）",
			NeedLogin: true,
			MinArgs:   2,
			Handler: func(ctx *Context) error {
				return ctx.Client.SendFile(ctx.Args[0], rest(ctx.Raw, 2))
			},
		},
		{
			Name:      "contacts",
			Aliases:   []string{"who"},
			Help:      "查看联系人",
			NeedLogin: true,
			Handler: func(ctx *Context) error {
				return ctx.Client.RequestContacts()
			},
		},
		{
			Name:    "quit",
			Aliases: []string{"exit"},
			Help:    "退出",
			Handler: func(ctx *Context) error {
				ctx.Printf("再见！")
				return ErrQuit
			},
		},
	}
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func loggedIn(ctx *Context) bool { return ctx.Me != nil && ctx.Me.Name != "" }

// rest 去掉前 n 个字段后的原文，保留内部空白
func rest(raw string, n int) string {
	s := raw
	for i := 0; i < n; i++ {
		s = strings.TrimLeft(s, " \t")
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = s[idx:]
	}
	return strings.TrimSpace(s)
}

// Describe 把服务端推送格式化成一行输出
func Describe(in *client.Incoming) string {
	switch in.Type() {
	case protocol.MsgMessage:
		var m protocol.TextPayload
		_ = in.Envelope.Bind(&m)
		return fmt.Sprintf("[%s] %s", m.Sender, m.Content)
	case protocol.MsgContactList:
		var c protocol.ContactListPayload
		_ = in.Envelope.Bind(&c)
		if len(c.Contacts) == 0 {
			return "[联系人] (无)"
		}
		return "[联系人] " + strings.Join(c.Contacts, ", ")
	case protocol.MsgSuccess:
		return "[系统] " + in.Status()
	case protocol.MsgError:
		return "[错误] " + in.Status()
	}
	return fmt.Sprintf("[%s] %s", in.Type(), in.Envelope.Data)
}
