// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/pkg/log"
)

// ConversationService 是对话集合的唯一持有者。
// 每次变更都是对内存列表的一次原子变换，随后同步写回持久化存储。
type ConversationService interface {
	// Load 从持久化存储重建内存列表。数据损坏时按空集合处理，不返回错误。
	Load(ctx context.Context) repository.LoadResult
	// List 按创建时间倒序返回所有对话的副本。
	List() []model.Conversation
	Get(id string) (model.Conversation, bool)
	Create(ctx context.Context, title string, mode model.Mode) (model.Conversation, error)
	// AppendTurn 向指定对话追加一条消息。对话不存在时什么也不做。
	// 若追加前历史为空且 titleIfFirst 非空，则用它设置标题；mode 非空时记录为该对话最近使用的模式。
	AppendTurn(ctx context.Context, id string, turn model.Turn, titleIfFirst string, mode model.Mode) error
	Delete(ctx context.Context, id string) error
	// Clear 清空全部对话，并删除持久化存储中的对话集合。
	Clear(ctx context.Context) error
}

type conversationService struct {
	mu            sync.Mutex
	repo          repository.ConversationRepository
	conversations []model.Conversation
	lastID        int64
	now           func() time.Time
}

// NewConversationService 创建一个新的 ConversationService，初始为空，需调用 Load 读取已保存的数据。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return newConversationService(repo, time.Now)
}

func newConversationService(repo repository.ConversationRepository, now func() time.Time) *conversationService {
	return &conversationService{
		repo:          repo,
		conversations: []model.Conversation{},
		now:           now,
	}
}

func (s *conversationService) Load(ctx context.Context) repository.LoadResult {
	res := s.repo.LoadAll(ctx)
	switch res.Status {
	case repository.LoadCorrupt:
		log.Warnw("本地对话数据无法解析，按空集合处理", "error", res.Err)
	case repository.LoadUnavailable:
		log.Warnw("读取本地对话数据失败，按空集合处理", "error", res.Err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make([]model.Conversation, 0, len(res.Conversations))
	for _, c := range res.Conversations {
		s.conversations = append(s.conversations, c.Clone())
		if n, err := strconv.ParseInt(c.ID, 10, 64); err == nil && n > s.lastID {
			s.lastID = n
		}
	}
	return res
}

func (s *conversationService) List() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *conversationService) Get(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return model.Conversation{}, false
}

func (s *conversationService) Create(ctx context.Context, title string, mode model.Mode) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	id := now
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	conv := model.Conversation{
		ID:        strconv.FormatInt(id, 10),
		Title:     title,
		History:   []model.Turn{},
		CreatedAt: now,
		Mode:      mode,
	}
	// 新对话插入到最前面，保持倒序
	s.conversations = append([]model.Conversation{conv}, s.conversations...)
	return conv.Clone(), s.saveLocked(ctx)
}

func (s *conversationService) AppendTurn(ctx context.Context, id string, turn model.Turn, titleIfFirst string, mode model.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		log.Warnf("追加消息时对话不存在，已忽略: id=%s", id)
		return nil
	}
	c := &s.conversations[i]
	if len(c.History) == 0 && titleIfFirst != "" {
		c.Title = titleIfFirst
	}
	if mode != "" {
		c.Mode = mode
	}
	c.History = append(c.History, turn.Clone())
	return s.saveLocked(ctx)
}

func (s *conversationService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
	return s.saveLocked(ctx)
}

func (s *conversationService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = []model.Conversation{}
	return s.saveLocked(ctx)
}

func (s *conversationService) indexOf(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// saveLocked 写回完整集合，调用方必须持有锁。
func (s *conversationService) saveLocked(ctx context.Context) error {
	if err := s.repo.SaveAll(ctx, s.conversations); err != nil {
		log.Error("保存对话失败", err)
		return err
	}
	return nil
}
