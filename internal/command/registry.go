// Package command 交互式客户端的斜杠命令
package command

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hongjun500/lanchat/client"
)

var (
	// ErrQuit 由 /quit 返回，主循环据此退出
	ErrQuit = errors.New("quit")
	// ErrNotLoggedIn 命令需要先登录
	ErrNotLoggedIn = errors.New("please /login first")
)

// Identity 当前终端登录的账号，空表示未登录
type Identity struct {
	Name string
}

type Context struct {
	Client *client.Client
	Out    io.Writer
	Me     *Identity
	// OnLogin 登录成功后回调，用于启动接收循环
	OnLogin func()
	Args    []string
	Raw     string
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format+"\n", args...)
}

type HandlerFunc func(ctx *Context) error

type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
	// NeedLogin 未登录时拒绝执行，与服务端的状态门禁一致
	NeedLogin bool
	// MinArgs 最少参数个数，不足时返回用法
	MinArgs int
	Handler HandlerFunc
}

type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Command
	list   []*Command
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Command),
		list:   make([]*Command, 0),
	}
}

func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return errors.New("command is nil")
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return errors.New("command name is empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("command name must not contain '/':%s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	r.byName[name] = cmd
	for _, item := range cmd.Aliases {
		alias := strings.ToLower(strings.TrimSpace(item))
		if alias == "" {
			continue
		}
		if _, exists := r.byName[alias]; exists {
			return fmt.Errorf("command alias %s already registered", alias)
		}
		r.byName[alias] = cmd
	}
	r.list = append(r.list, cmd)
	return nil
}

func (r *Registry) Get(name string) (*Command, bool) {
	k := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[k]
	return cmd, ok
}

func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.list))
	copy(out, r.list)
	return out
}

// Execute 解析并执行一行输入；不以 / 开头时 handled 为 false
func (r *Registry) Execute(raw string, ctx *Context) (handled bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return false, nil
	}
	parts := strings.Fields(raw)
	cmdName := strings.TrimPrefix(parts[0], "/")
	cmd, ok := r.Get(cmdName)
	if !ok {
		return true, fmt.Errorf("command %s not found, try /help", cmdName)
	}
	if cmd.NeedLogin && (ctx.Me == nil || ctx.Me.Name == "") {
		return true, ErrNotLoggedIn
	}
	if len(parts)-1 < cmd.MinArgs {
		return true, fmt.Errorf("usage: /%s %s", cmd.Name, cmd.Usage)
	}
	ctx.Args = parts[1:]
	ctx.Raw = raw
	return true, cmd.Handler(ctx)
}
