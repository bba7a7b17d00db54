// Package redisstream 把已持久化的聊天事件追加到 Redis stream，供下游消费者订阅。
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TypeMessageStored = "message.stored"
	TypeFileStored    = "file.stored"
)

// DefaultClaimIdle 待确认消息闲置超过该时长后由消费者重新认领
const DefaultClaimIdle = 30 * time.Second

type Bus struct {
	cli       *redis.Client
	stream    string
	group     string
	claimIdle time.Duration
}

// Message stream 中的一条事件
type Message struct {
	Type     string    `json:"type"`
	When     time.Time `json:"when"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Text     string    `json:"text,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Checksum string    `json:"checksum,omitempty"`
	// Delivered 接收方当时是否在线
	Delivered bool `json:"delivered"`
}

func New(addr string, db int, stream, group string) *Bus {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Bus{cli: cli, stream: stream, group: group, claimIdle: DefaultClaimIdle}
}

// SetClaimIdle 调整重新认领的闲置阈值，需在 Consume 之前调用
func (b *Bus) SetClaimIdle(d time.Duration) {
	if d > 0 {
		b.claimIdle = d
	}
}

func (b *Bus) Ping(ctx context.Context) error {
	return b.cli.Ping(ctx).Err()
}

// EnsureGroup 创建 stream 和消费组，已存在不算错误
func (b *Bus) EnsureGroup(ctx context.Context) error {
	err := b.cli.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", b.group, err)
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, m *Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.cli.XAdd(ctx, &redis.XAddArgs{Stream: b.stream, Values: map[string]any{"data": payload}}).Err()
}

type Handler func(ctx context.Context, m *Message) error

// Consume 阻塞读取消费组并回调 handler，ctx 取消后返回。
// handler 出错的消息不 ack，留在 pending 列表里，闲置超过 claimIdle 后被重新认领再投递。
func (b *Bus) Consume(ctx context.Context, consumer string, handler Handler) error {
	var lastClaim time.Time
	for {
		if time.Since(lastClaim) >= b.claimIdle {
			lastClaim = time.Now()
			if err := b.reclaim(ctx, consumer, handler); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		res, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    100,
			Block:    time.Second,
		}).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			// 连接抖动：稍后重试
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		for _, str := range res {
			b.dispatch(ctx, str.Messages, handler)
		}
	}
}

// reclaim 把闲置过久的 pending 消息认领到当前消费者并重新处理
func (b *Bus) reclaim(ctx context.Context, consumer string, handler Handler) error {
	start := "0-0"
	for {
		msgs, next, err := b.cli.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.stream,
			Group:    b.group,
			Consumer: consumer,
			MinIdle:  b.claimIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return err
		}
		b.dispatch(ctx, msgs, handler)
		if next == "0-0" || next == "" {
			return nil
		}
		start = next
	}
}

// dispatch 无法解析的消息直接 ack，避免反复认领
func (b *Bus) dispatch(ctx context.Context, msgs []redis.XMessage, handler Handler) {
	for _, xmsg := range msgs {
		raw, _ := xmsg.Values["data"].(string)
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			if err := handler(ctx, &m); err != nil {
				continue
			}
		}
		_ = b.cli.XAck(ctx, b.stream, b.group, xmsg.ID).Err()
	}
}

func (b *Bus) Close() error {
	return b.cli.Close()
}
