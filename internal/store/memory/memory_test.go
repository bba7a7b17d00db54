package memory

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hongjun500/lanchat/internal/store"
)

func TestAddAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.AddUser(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddUser(ctx, "alice", "other"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("duplicate: expected ErrUserExists, got %v", err)
	}

	got, err := s.AuthenticateUser(ctx, "alice", "pw")
	if err != nil || got != id {
		t.Fatalf("authenticate: got %d %v", got, err)
	}
	if _, err := s.AuthenticateUser(ctx, "alice", "bad"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("bad password: %v", err)
	}
	if _, err := s.AuthenticateUser(ctx, "nobody", "pw"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.AddUser(ctx, "bob", "pw")

	if name, err := s.GetUsername(ctx, id); err != nil || name != "bob" {
		t.Fatalf("username: %q %v", name, err)
	}
	if got, err := s.GetUserID(ctx, "bob"); err != nil || got != id {
		t.Fatalf("user id: %d %v", got, err)
	}
	if _, err := s.GetUserID(ctx, "carol"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetUsername(ctx, 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContactsExcludeSelf(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := s.AddUser(ctx, name, "pw"); err != nil {
			t.Fatal(err)
		}
	}
	aliceID, _ := s.GetUserID(ctx, "alice")
	got, err := s.GetContacts(ctx, aliceID)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"bob", "carol"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("contacts: got %v, want %v", got, want)
	}
}

func TestStoreHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.StoreMessage(ctx, 1, 2, "hi")
	_ = s.StoreFile(ctx, store.FileRecord{SenderID: 1, ReceiverID: 2, Filename: "a.txt"})

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hi" || msgs[0].CreatedAt.IsZero() {
		t.Fatalf("messages: %+v", msgs)
	}
	files := s.Files()
	if len(files) != 1 || files[0].Filename != "a.txt" || files[0].CreatedAt.IsZero() {
		t.Fatalf("files: %+v", files)
	}
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	s := New()
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddUser(ctx, "dup", "pw"); err == nil {
				ok.Add(1)
			} else if !errors.Is(err, store.ErrUserExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 {
		t.Fatalf("expected exactly one successful registration, got %d", ok.Load())
	}
}
