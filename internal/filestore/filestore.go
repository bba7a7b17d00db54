// Package filestore 服务端文件区：接收到的文件原子落盘并计算 SHA-256。
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	maxNameLen = 50
	maxUserLen = 20
)

type Store struct {
	dir string
}

// SaveResult 一次落盘的结果
type SaveResult struct {
	// StoredName 文件区内的相对名
	StoredName string
	// Path 磁盘上的完整路径
	Path     string
	Size     int64
	Checksum string
}

// New 打开文件区目录，不存在则创建
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create files dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save 写临时文件、fsync 后 rename；任何失败都会清理临时文件。
// 同名文件不会互相覆盖。
func (s *Store) Save(r io.Reader, filename, sender string) (*SaveResult, error) {
	stored := storageName(filename, sender, time.Now())
	full := filepath.Join(s.dir, stored)
	tmp := full + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(step string, err error) (*SaveResult, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%s %s: %w", step, stored, err)
	}

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("close %s: %w", stored, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("rename %s: %w", stored, err)
	}

	return &SaveResult{
		StoredName: stored,
		Path:       full,
		Size:       n,
		Checksum:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Open 按 StoredName 打开已保存的文件，调用方负责关闭
func (s *Store) Open(stored string) (*os.File, error) {
	if stored != filepath.Base(stored) {
		return nil, fmt.Errorf("invalid stored name %q", stored)
	}
	return os.Open(filepath.Join(s.dir, stored))
}

// storageName 格式 {name}_{sender}_{yyyymmddhhmmss}_{uuid8}{ext}
func storageName(filename, sender string, now time.Time) string {
	base := filepath.Base(filename)
	ext := sanitize(filepath.Ext(base), true)
	name := truncate(sanitize(strings.TrimSuffix(base, filepath.Ext(base)), false), maxNameLen)
	user := truncate(sanitize(sender, false), maxUserLen)
	if name == "" {
		name = "file"
	}
	if user == "" {
		user = "anon"
	}
	return fmt.Sprintf("%s_%s_%s_%s%s", name, user,
		now.UTC().Format("20060102150405"), uuid.NewString()[:8], ext)
}

// sanitize 只保留字母数字和 -_，ext 模式额外保留前导的点
func sanitize(s string, ext bool) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case ext && i == 0 && r == '.':
			b.WriteRune(r)
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if ext && b.Len() <= 1 {
		return ""
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
