package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
)

// memKV 是测试用的内存键值存储，可以注入写入失败。
type memKV struct {
	mu       sync.Mutex
	data     map[string]string
	failSet  bool
	setCalls int
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type staticUsers struct {
	user *model.User
}

func (s staticUsers) CurrentUser() (*model.User, bool) {
	return s.user, s.user != nil
}

var testUser = &model.User{UID: "u1", Name: "Selam"}

// streamCall 记录一次补全调用。
type streamCall struct {
	history []model.Turn
	mode    model.Mode
}

// fakeClient 是可控的补全客户端。gate 非空时，回答要等到 gate 关闭后才返回。
type fakeClient struct {
	mu      sync.Mutex
	reply   string
	chunks  []string
	err     error
	gate    chan struct{}
	started chan struct{}
	calls   []streamCall
}

func (f *fakeClient) Complete(ctx context.Context, history []model.Turn, m model.Mode) (string, error) {
	var out string
	err := f.Stream(ctx, history, m, func(s string) error { out += s; return nil })
	return out, err
}

func (f *fakeClient) Stream(_ context.Context, history []model.Turn, m model.Mode, onChunk func(string) error) error {
	f.mu.Lock()
	f.calls = append(f.calls, streamCall{history: history, mode: m})
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return f.err
	}
	if len(f.chunks) > 0 {
		for _, c := range f.chunks {
			if err := onChunk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if f.reply == "" {
		return nil
	}
	return onChunk(f.reply)
}

func (f *fakeClient) lastCall(t *testing.T) streamCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newBoltStore(t *testing.T) (ConversationService, repository.KVStore) {
	t.Helper()
	kv, err := repository.NewBoltKVStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewConversationService(repository.NewConversationRepository(kv)), kv
}

func newRepo(kv repository.KVStore) repository.ConversationRepository {
	return repository.NewConversationRepository(kv)
}
