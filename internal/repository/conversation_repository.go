package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"mu-assistant-go/internal/model"
)

// ChatStorageKey 是对话集合在键值存储中的键。
const ChatStorageKey = "mu_ai_chats"

// LoadStatus 描述一次加载的结果类型。
type LoadStatus string

const (
	LoadOK          LoadStatus = "ok"
	LoadEmpty       LoadStatus = "empty"       // 从未保存过
	LoadCorrupt     LoadStatus = "corrupt"     // 数据无法解析，按空处理
	LoadUnavailable LoadStatus = "unavailable" // 后端读取失败，按空处理
)

// LoadResult 是 LoadAll 的返回值。Conversations 已按 CreatedAt 倒序排列。
// Status 为 corrupt 或 unavailable 时 Err 记录原因，Conversations 为空。
type LoadResult struct {
	Conversations []model.Conversation
	Status        LoadStatus
	Err           error
}

// ConversationRepository 定义了对话集合的持久化操作。整个集合作为一个值读写。
type ConversationRepository interface {
	LoadAll(ctx context.Context) LoadResult
	SaveAll(ctx context.Context, conversations []model.Conversation) error
}

type kvConversationRepository struct {
	kv KVStore
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(kv KVStore) ConversationRepository {
	return &kvConversationRepository{kv: kv}
}

// LoadAll 读取以 id 为键的对话映射，并按创建时间倒序重建列表。
func (r *kvConversationRepository) LoadAll(ctx context.Context) LoadResult {
	raw, ok, err := r.kv.Get(ctx, ChatStorageKey)
	if err != nil {
		return LoadResult{Status: LoadUnavailable, Err: err}
	}
	if !ok || raw == "" {
		return LoadResult{Status: LoadEmpty}
	}

	var stored map[string]model.Conversation
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return LoadResult{Status: LoadCorrupt, Err: fmt.Errorf("failed to unmarshal conversations: %w", err)}
	}
	if len(stored) == 0 {
		return LoadResult{Status: LoadEmpty}
	}

	conversations := make([]model.Conversation, 0, len(stored))
	for id, c := range stored {
		if c.ID == "" {
			c.ID = id
		}
		if c.History == nil {
			c.History = []model.Turn{}
		}
		conversations = append(conversations, c)
	}
	SortNewestFirst(conversations)
	return LoadResult{Conversations: conversations, Status: LoadOK}
}

// SaveAll 将完整集合序列化为以 id 为键的映射；集合为空时直接删除该键。
func (r *kvConversationRepository) SaveAll(ctx context.Context, conversations []model.Conversation) error {
	if len(conversations) == 0 {
		return r.kv.Delete(ctx, ChatStorageKey)
	}
	byID := make(map[string]model.Conversation, len(conversations))
	for _, c := range conversations {
		byID[c.ID] = c
	}
	data, err := json.Marshal(byID)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return r.kv.Set(ctx, ChatStorageKey, string(data))
}

// SortNewestFirst 按 CreatedAt 倒序排列，时间相同时按 id 倒序保证结果稳定。
func SortNewestFirst(conversations []model.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt != conversations[j].CreatedAt {
			return conversations[i].CreatedAt > conversations[j].CreatedAt
		}
		return conversations[i].ID > conversations[j].ID
	})
}
