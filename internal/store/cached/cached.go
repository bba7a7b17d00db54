// Package cached 在 store.Store 外包一层 LRU，缓存用户名与 id 的双向映射。
// 账号创建后不会被修改或删除，所以缓存条目永不失效；未命中的结果不缓存。
package cached

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hongjun500/lanchat/internal/store"
)

type Store struct {
	store.Store
	ids   *lru.Cache[string, int64]
	names *lru.Cache[int64, string]
}

// New 包装 next；size<=0 时直接返回 next
func New(next store.Store, size int) (store.Store, error) {
	if size <= 0 {
		return next, nil
	}
	ids, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("create id cache: %w", err)
	}
	names, err := lru.New[int64, string](size)
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	return &Store{Store: next, ids: ids, names: names}, nil
}

func (s *Store) remember(id int64, name string) {
	s.ids.Add(name, id)
	s.names.Add(id, name)
}

func (s *Store) AuthenticateUser(ctx context.Context, username, password string) (int64, error) {
	id, err := s.Store.AuthenticateUser(ctx, username, password)
	if err != nil {
		return 0, err
	}
	s.remember(id, username)
	return id, nil
}

func (s *Store) AddUser(ctx context.Context, username, password string) (int64, error) {
	id, err := s.Store.AddUser(ctx, username, password)
	if err != nil {
		return 0, err
	}
	s.remember(id, username)
	return id, nil
}

func (s *Store) GetUsername(ctx context.Context, userID int64) (string, error) {
	if name, ok := s.names.Get(userID); ok {
		return name, nil
	}
	name, err := s.Store.GetUsername(ctx, userID)
	if err != nil {
		return "", err
	}
	s.remember(userID, name)
	return name, nil
}

func (s *Store) GetUserID(ctx context.Context, username string) (int64, error) {
	if id, ok := s.ids.Get(username); ok {
		return id, nil
	}
	id, err := s.Store.GetUserID(ctx, username)
	if err != nil {
		return 0, err
	}
	s.remember(id, username)
	return id, nil
}
