package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
)

func TestConversationService_CreatePrependsNewest(t *testing.T) {
	ctx := context.Background()
	store, _ := newBoltStore(t)

	a, err := store.Create(ctx, "A", "")
	require.NoError(t, err)
	b, err := store.Create(ctx, "B", model.ModeReasoning)
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, list[0].History)
	assert.Equal(t, model.ModeReasoning, list[0].Mode)
}

func TestConversationService_UniqueIDsWithinSameMillisecond(t *testing.T) {
	ctx := context.Background()
	fixed := time.UnixMilli(1_700_000_000_000)
	store := newConversationService(repository.NewConversationRepository(newMemKV()), func() time.Time { return fixed })

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		c, err := store.Create(ctx, "x", "")
		require.NoError(t, err)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestConversationService_AppendTurn(t *testing.T) {
	ctx := context.Background()
	store, _ := newBoltStore(t)
	a, _ := store.Create(ctx, "New Chat", "")
	b, _ := store.Create(ctx, "other", "")

	turn := model.TextTurn(model.RoleUser, "hello")
	require.NoError(t, store.AppendTurn(ctx, a.ID, turn, "hello title", model.ModeSearch))

	got, ok := store.Get(a.ID)
	require.True(t, ok)
	require.Len(t, got.History, 1)
	assert.Equal(t, turn, got.History[0])
	assert.Equal(t, "hello title", got.Title)
	assert.Equal(t, model.ModeSearch, got.Mode)

	// 第二条消息不再修改标题
	reply := model.TextTurn(model.RoleModel, "hi")
	require.NoError(t, store.AppendTurn(ctx, a.ID, reply, "ignored", ""))
	got, _ = store.Get(a.ID)
	require.Len(t, got.History, 2)
	assert.Equal(t, reply, got.History[1])
	assert.Equal(t, "hello title", got.Title)
	assert.Equal(t, model.ModeSearch, got.Mode)

	other, _ := store.Get(b.ID)
	assert.Empty(t, other.History)
	assert.Equal(t, "other", other.Title)
}

func TestConversationService_AppendUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewConversationService(repository.NewConversationRepository(kv))
	_, _ = store.Create(ctx, "a", "")
	before := kv.setCalls

	require.NoError(t, store.AppendTurn(ctx, "does-not-exist", model.TextTurn(model.RoleUser, "x"), "t", ""))
	assert.Equal(t, before, kv.setCalls)
	assert.Len(t, store.List(), 1)
}

func TestConversationService_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	store, _ := newBoltStore(t)
	a, _ := store.Create(ctx, "a", "")
	require.NoError(t, store.AppendTurn(ctx, a.ID, model.TextTurn(model.RoleUser, "original"), "", ""))

	got, _ := store.Get(a.ID)
	got.History[0].Parts[0].Text = "mutated"
	got.Title = "mutated"

	again, _ := store.Get(a.ID)
	assert.Equal(t, "original", again.History[0].Text())
	assert.Equal(t, "a", again.Title)
}

func TestConversationService_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	repo := repository.NewConversationRepository(kv)
	store := NewConversationService(repo)

	a, _ := store.Create(ctx, "a", "")
	require.NoError(t, store.AppendTurn(ctx, a.ID, model.TextTurn(model.RoleUser, "q"), "q", model.ModeSearch))
	b, _ := store.Create(ctx, "b", "")

	reloaded := NewConversationService(repo)
	res := reloaded.Load(ctx)
	assert.Equal(t, repository.LoadOK, res.Status)
	assert.Equal(t, store.List(), reloaded.List())

	// 重新加载后新建的 id 仍然唯一
	c, _ := reloaded.Create(ctx, "c", "")
	assert.NotEqual(t, a.ID, c.ID)
	assert.NotEqual(t, b.ID, c.ID)
}

func TestConversationService_DeleteLastRemovesPersistedEntry(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewConversationService(repository.NewConversationRepository(kv))

	a, _ := store.Create(ctx, "a", "")
	require.True(t, kv.has(repository.ChatStorageKey))

	require.NoError(t, store.Delete(ctx, a.ID))
	assert.Empty(t, store.List())
	assert.False(t, kv.has(repository.ChatStorageKey))
}

func TestConversationService_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewConversationService(repository.NewConversationRepository(kv))

	_, _ = store.Create(ctx, "a", "")
	_, _ = store.Create(ctx, "b", "")
	require.True(t, kv.has(repository.ChatStorageKey))

	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, store.List())
	assert.False(t, kv.has(repository.ChatStorageKey))

	reloaded := NewConversationService(repository.NewConversationRepository(kv))
	res := reloaded.Load(ctx)
	assert.Equal(t, repository.LoadEmpty, res.Status)
}

func TestConversationService_LoadCorruptFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	kv.data[repository.ChatStorageKey] = "][" // 无法解析
	store := NewConversationService(repository.NewConversationRepository(kv))

	res := store.Load(ctx)
	assert.Equal(t, repository.LoadCorrupt, res.Status)
	assert.Empty(t, store.List())

	empty := NewConversationService(repository.NewConversationRepository(newMemKV()))
	assert.Equal(t, repository.LoadEmpty, empty.Load(ctx).Status)
}

func TestConversationService_WriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	kv.failSet = true
	store := NewConversationService(repository.NewConversationRepository(kv))

	c, err := store.Create(ctx, "a", "")
	assert.Error(t, err)
	// 内存状态仍然有效，下一次成功写入会带上完整集合
	assert.NotEmpty(t, c.ID)
	assert.Len(t, store.List(), 1)
}
