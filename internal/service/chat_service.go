package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/pkg/completion"
	"mu-assistant-go/pkg/log"
	"mu-assistant-go/pkg/mode"
	"mu-assistant-go/pkg/pacing"
)

// ErrorReplyText 在获取回答失败时代替模型回答写入对话。
const ErrorReplyText = "Failed to get response. Please try again."

const (
	defaultChatTitle  = "New Chat"
	fileChatTitle     = "File Analysis"
	defaultFilePrompt = "Analyze this file."
	titleMaxRunes     = 30
)

var (
	// ErrBusy 表示已有一个请求在进行中。
	ErrBusy = errors.New("a response is already in progress")
	// ErrNotSignedIn 表示当前没有登录用户。
	ErrNotSignedIn = errors.New("no signed-in user")
	// errEmptyCompletion 表示接口返回了空文本。
	errEmptyCompletion = errors.New("empty completion")
)

// ValidationError 表示提交内容在发送前被拒绝，此时不会产生任何状态变更。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// Phase 是请求在会话控制器中的阶段。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSending   Phase = "sending"
	PhaseStreaming Phase = "streaming"
	PhaseErrored   Phase = "errored"
)

// Snapshot 是提供给展示层的只读状态。
// LiveText 属于 TargetID 对应的对话，展示层只应在 TargetID == ActiveID 时显示它。
type Snapshot struct {
	ActiveID   string
	TargetID   string
	Phase      Phase
	LiveText   string
	StreamMode model.Mode
}

// InFlight 判断是否有请求正在进行。
func (s Snapshot) InFlight() bool {
	return s.Phase == PhaseSending || s.Phase == PhaseStreaming
}

// ChatService 定义了会话控制器的接口：处理用户输入、调用补全接口，并把结果合并回对话。
type ChatService interface {
	// Send 提交一条用户消息并阻塞到回答写入对话为止。
	// 补全失败不会作为错误返回，而是以固定的错误回答写入对话；只有发送前的校验失败才返回错误。
	Send(ctx context.Context, text string, attachment *model.Attachment) error
	NewChat(ctx context.Context) (model.Conversation, error)
	Select(id string) bool
	DeleteChat(ctx context.Context, id string) error
	// ClearAll 删除全部对话（包括已持久化的集合），用于退出登录。请求进行中时返回 ErrBusy。
	ClearAll(ctx context.Context) error
	// Reload 从持久化存储重新读取对话，最新的对话成为当前对话。用于切换登录用户。
	Reload(ctx context.Context) (repository.LoadResult, error)
	Conversations() []model.Conversation
	Active() (model.Conversation, bool)
	Snapshot() Snapshot
}

// ChatOptions 是会话控制器的可选配置。
type ChatOptions struct {
	Pacer    pacing.Pacer
	OnChange func(Snapshot)
}

type chatService struct {
	store    ConversationService
	client   completion.Client
	users    UserProvider
	pacer    pacing.Pacer
	onChange func(Snapshot)

	mu         sync.Mutex
	activeID   string
	targetID   string
	phase      Phase
	liveText   string
	streamMode model.Mode
}

// NewChatService 创建一个新的 ChatService。store 应已完成 Load，最新的对话成为当前对话。
func NewChatService(store ConversationService, client completion.Client, users UserProvider, opts ChatOptions) ChatService {
	s := &chatService{
		store:      store,
		client:     client,
		users:      users,
		pacer:      opts.Pacer,
		onChange:   opts.OnChange,
		phase:      PhaseIdle,
		streamMode: model.ModeSearch,
	}
	if list := store.List(); len(list) > 0 {
		s.activeID = list[0].ID
	}
	return s
}

func (s *chatService) Send(ctx context.Context, text string, attachment *model.Attachment) error {
	if _, ok := s.users.CurrentUser(); !ok {
		return ErrNotSignedIn
	}
	if err := validateMessage(text, attachment); err != nil {
		return err
	}

	detected := mode.Detect(text)

	// 目标对话在提交时绑定，之后切换当前对话不会影响回答写入的位置
	s.mu.Lock()
	if s.phase == PhaseSending || s.phase == PhaseStreaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.phase = PhaseSending
	s.streamMode = detected
	targetID, err := s.bindTargetLocked(ctx, text, detected)
	s.targetID = targetID
	s.liveText = ""
	s.mu.Unlock()
	if err != nil {
		log.Error("创建对话时持久化失败", err)
	}
	s.notify()

	userTurn := buildUserTurn(text, attachment)
	titleIfFirst := firstRunes(text, titleMaxRunes)
	if titleIfFirst == "" {
		titleIfFirst = fileChatTitle
	}
	if err := s.store.AppendTurn(ctx, targetID, userTurn, titleIfFirst, detected); err != nil {
		log.Error("追加用户消息时持久化失败", err)
	}

	// 发送给接口的记录包含刚刚追加的用户消息
	transcript := []model.Turn{userTurn}
	if conv, ok := s.store.Get(targetID); ok {
		transcript = conv.History
	}

	s.setPhase(PhaseStreaming)

	reply, err := s.stream(ctx, transcript, detected)
	finalPhase := PhaseIdle
	if err != nil {
		log.Errorw("获取回答失败",
			"conversationId", targetID,
			"mode", detected,
			"transport", completion.IsTransport(err),
			"protocol", completion.IsProtocol(err),
			"error", err,
		)
		reply = ErrorReplyText
		finalPhase = PhaseErrored
	}
	// 即使 ctx 已被取消，回答（或错误回答）也必须写入，保证用户消息不会悬空
	if err := s.store.AppendTurn(context.WithoutCancel(ctx), targetID, model.TextTurn(model.RoleModel, reply), "", ""); err != nil {
		log.Error("追加模型回答时持久化失败", err)
	}

	s.mu.Lock()
	s.phase = finalPhase
	s.liveText = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// bindTargetLocked 返回本次请求的目标对话；没有当前对话时新建一个并设为当前对话。
func (s *chatService) bindTargetLocked(ctx context.Context, text string, m model.Mode) (string, error) {
	if s.activeID != "" {
		if _, ok := s.store.Get(s.activeID); ok {
			return s.activeID, nil
		}
	}
	title := firstRunes(text, titleMaxRunes)
	if title == "" {
		title = defaultChatTitle
	}
	conv, err := s.store.Create(ctx, title, m)
	s.activeID = conv.ID
	return conv.ID, err
}

func (s *chatService) stream(ctx context.Context, transcript []model.Turn, m model.Mode) (string, error) {
	var acc strings.Builder
	onChunk := s.pacer.Wrap(ctx, func(piece string) {
		acc.WriteString(piece)
		s.mu.Lock()
		s.liveText = acc.String()
		s.mu.Unlock()
		s.notify()
	})
	if err := s.client.Stream(ctx, transcript, m, onChunk); err != nil {
		return "", err
	}
	if acc.Len() == 0 {
		return "", errEmptyCompletion
	}
	return acc.String(), nil
}

func (s *chatService) NewChat(ctx context.Context) (model.Conversation, error) {
	conv, err := s.store.Create(ctx, defaultChatTitle, "")
	s.mu.Lock()
	s.activeID = conv.ID
	s.mu.Unlock()
	s.notify()
	return conv, err
}

func (s *chatService) Select(id string) bool {
	if _, ok := s.store.Get(id); !ok {
		return false
	}
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
	s.notify()
	return true
}

// DeleteChat 删除对话。删除的是当前对话时，切换到剩余最新的一个；没有剩余则当前对话为空。
// 进行中的请求不会被取消，其回答写入时若对话已不存在则被忽略。
func (s *chatService) DeleteChat(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	s.mu.Lock()
	if s.activeID == id {
		s.activeID = ""
		if remaining := s.store.List(); len(remaining) > 0 {
			s.activeID = remaining[0].ID
		}
	}
	s.mu.Unlock()
	s.notify()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *chatService) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseSending || s.phase == PhaseStreaming {
		s.mu.Unlock()
		return ErrBusy
	}
	err := s.store.Clear(ctx)
	s.resetLocked("")
	s.mu.Unlock()
	s.notify()
	if err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

func (s *chatService) Reload(ctx context.Context) (repository.LoadResult, error) {
	s.mu.Lock()
	if s.phase == PhaseSending || s.phase == PhaseStreaming {
		s.mu.Unlock()
		return repository.LoadResult{}, ErrBusy
	}
	res := s.store.Load(ctx)
	active := ""
	if list := s.store.List(); len(list) > 0 {
		active = list[0].ID
	}
	s.resetLocked(active)
	s.mu.Unlock()
	s.notify()
	return res, nil
}

// resetLocked 切换当前对话并丢弃上一次请求留下的展示状态，调用方必须持有锁。
func (s *chatService) resetLocked(activeID string) {
	s.activeID = activeID
	s.targetID = ""
	s.liveText = ""
	s.phase = PhaseIdle
}

func (s *chatService) Conversations() []model.Conversation {
	return s.store.List()
}

func (s *chatService) Active() (model.Conversation, bool) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()
	if id == "" {
		return model.Conversation{}, false
	}
	return s.store.Get(id)
}

func (s *chatService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *chatService) snapshotLocked() Snapshot {
	return Snapshot{
		ActiveID:   s.activeID,
		TargetID:   s.targetID,
		Phase:      s.phase,
		LiveText:   s.liveText,
		StreamMode: s.streamMode,
	}
}

func (s *chatService) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.notify()
}

// notify 在锁外回调展示层，回调中可以安全地再次调用本服务。
func (s *chatService) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

func validateMessage(text string, attachment *model.Attachment) error {
	if attachment == nil {
		if strings.TrimSpace(text) == "" {
			return &ValidationError{Reason: "message is empty"}
		}
		return nil
	}
	if len(attachment.Data) == 0 {
		return &ValidationError{Reason: "attachment is empty"}
	}
	if len(attachment.Data) > model.MaxAttachmentSize {
		return &ValidationError{Reason: fmt.Sprintf("attachment %q exceeds %d MB", attachment.Name, model.MaxAttachmentSize/(1024*1024))}
	}
	if attachment.MimeType == "" {
		return &ValidationError{Reason: "attachment has no mime type"}
	}
	return nil
}

// buildUserTurn 构造用户消息：有附件时附件在前、文本在后。
func buildUserTurn(text string, attachment *model.Attachment) model.Turn {
	if attachment == nil {
		return model.TextTurn(model.RoleUser, text)
	}
	prompt := text
	if prompt == "" {
		prompt = defaultFilePrompt
	}
	return model.Turn{
		Role:  model.RoleUser,
		Parts: []model.Part{attachment.Part(), {Text: prompt}},
	}
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
