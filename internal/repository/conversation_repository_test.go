package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
)

func newTestKV(t *testing.T) KVStore {
	t.Helper()
	kv, err := NewBoltKVStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestBoltKVStore(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v"))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, kv.Delete(ctx, "k"))
	require.NoError(t, kv.Delete(ctx, "k"), "deleting a missing key is not an error")
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversationRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestKV(t))

	convs := []model.Conversation{
		{ID: "1", Title: "old", CreatedAt: 1000, History: []model.Turn{model.TextTurn(model.RoleUser, "hi")}},
		{ID: "3", Title: "newest", CreatedAt: 3000, Mode: model.ModeReasoning, History: []model.Turn{
			{Role: model.RoleUser, Parts: []model.Part{
				{InlineData: &model.InlineData{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
				{Text: "what is this"},
			}},
			model.TextTurn(model.RoleModel, "a picture"),
		}},
		{ID: "2", Title: "middle", CreatedAt: 2000, History: []model.Turn{}},
	}
	require.NoError(t, repo.SaveAll(ctx, convs))

	res := repo.LoadAll(ctx)
	require.Equal(t, LoadOK, res.Status)
	require.NoError(t, res.Err)
	require.Len(t, res.Conversations, 3)

	assert.Equal(t, []string{"3", "2", "1"}, []string{res.Conversations[0].ID, res.Conversations[1].ID, res.Conversations[2].ID})
	assert.Equal(t, convs[1], res.Conversations[0])
	assert.Equal(t, convs[2], res.Conversations[1])
	assert.Equal(t, convs[0], res.Conversations[2])
}

func TestConversationRepository_EmptyRemovesKey(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	repo := NewConversationRepository(kv)

	require.NoError(t, repo.SaveAll(ctx, []model.Conversation{{ID: "1", CreatedAt: 1}}))
	_, ok, err := kv.Get(ctx, ChatStorageKey)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.SaveAll(ctx, nil))
	_, ok, err = kv.Get(ctx, ChatStorageKey)
	require.NoError(t, err)
	assert.False(t, ok, "no empty-object artifact should remain")

	assert.Equal(t, LoadEmpty, repo.LoadAll(ctx).Status)
}

func TestConversationRepository_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	repo := NewConversationRepository(kv)

	require.NoError(t, kv.Set(ctx, ChatStorageKey, "{not json"))
	res := repo.LoadAll(ctx)
	assert.Equal(t, LoadCorrupt, res.Status)
	assert.Error(t, res.Err)
	assert.Empty(t, res.Conversations)
}

func TestConversationRepository_FillsMissingID(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	repo := NewConversationRepository(kv)

	require.NoError(t, kv.Set(ctx, ChatStorageKey, `{"42":{"title":"t","createdAt":5}}`))
	res := repo.LoadAll(ctx)
	require.Equal(t, LoadOK, res.Status)
	require.Len(t, res.Conversations, 1)
	assert.Equal(t, "42", res.Conversations[0].ID)
	assert.NotNil(t, res.Conversations[0].History)
}

func TestFlagRepository(t *testing.T) {
	ctx := context.Background()
	flags := NewFlagRepository(newTestKV(t))

	set, err := flags.IsSet(ctx, OnboardingViewedKey)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, flags.Set(ctx, OnboardingViewedKey))
	set, err = flags.IsSet(ctx, OnboardingViewedKey)
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, flags.SetString(ctx, ThemeKey, "neodark"))
	theme, err := flags.GetString(ctx, ThemeKey)
	require.NoError(t, err)
	assert.Equal(t, "neodark", theme)
}
