package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
	"mu-assistant-go/internal/repository"
	"mu-assistant-go/internal/service"
	"mu-assistant-go/pkg/token"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want Command
		ok   bool
	}{
		{"/new", Command{Name: CmdNew}, true},
		{"  /SWITCH 2 ", Command{Name: CmdSwitch, Arg: "2"}, true},
		{"/attach /tmp/a file.pdf", Command{Name: CmdAttach, Arg: "/tmp/a file.pdf"}, true},
		{"/q", Command{Name: CmdQuit}, true},
		{"/", Command{}, false},
		{"how do I /new", Command{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseCommand(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("lecture notes"), 0o600))
	att, err := LoadAttachment(textPath)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.Name)
	assert.Equal(t, "text/plain", att.MimeType)
	assert.Equal(t, []byte("lecture notes"), att.Data)

	pngPath := filepath.Join(dir, "pic.bin")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.NoError(t, os.WriteFile(pngPath, png, 0o600))
	att, err = LoadAttachment(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.MimeType)

	bigPath := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(bigPath, bytes.Repeat([]byte("a"), model.MaxAttachmentSize+1), 0o600))
	_, err = LoadAttachment(bigPath)
	assert.Error(t, err)

	emptyPath := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o600))
	_, err = LoadAttachment(emptyPath)
	assert.Error(t, err)

	_, err = LoadAttachment(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLivePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewLivePrinter(&buf)

	p.OnChange(service.Snapshot{ActiveID: "1", TargetID: "1", Phase: service.PhaseStreaming, StreamMode: model.ModeSearch})
	p.OnChange(service.Snapshot{ActiveID: "1", TargetID: "1", Phase: service.PhaseStreaming, LiveText: "Hel"})
	p.OnChange(service.Snapshot{ActiveID: "1", TargetID: "1", Phase: service.PhaseStreaming, LiveText: "Hello"})
	// 切换到其他对话后不再输出
	p.OnChange(service.Snapshot{ActiveID: "2", TargetID: "1", Phase: service.PhaseStreaming, LiveText: "Hello world"})
	p.OnChange(service.Snapshot{ActiveID: "2", TargetID: "1", Phase: service.PhaseIdle})

	assert.Equal(t, "\n[search] Hello\n", buf.String())
}

type echoClient struct{}

func (echoClient) Complete(_ context.Context, history []model.Turn, _ model.Mode) (string, error) {
	return "echo: " + history[len(history)-1].Text(), nil
}

func (c echoClient) Stream(ctx context.Context, history []model.Turn, m model.Mode, onChunk func(string) error) error {
	text, _ := c.Complete(ctx, history, m)
	return onChunk(text)
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer, *service.TokenUserProvider) {
	t.Helper()
	kv, err := repository.NewBoltKVStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	users := service.NewTokenUserProvider()
	app, out := newTestAppWith(t, kv, users, false)
	return app, out, users
}

func newTestAppWith(t *testing.T, kv repository.KVStore, users *service.TokenUserProvider, userScoped bool) (*App, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	store := service.NewConversationService(repository.NewConversationRepository(kv))
	store.Load(ctx)
	var out bytes.Buffer
	chat := service.NewChatService(store, echoClient{}, users, service.ChatOptions{OnChange: NewLivePrinter(&out).OnChange})
	app := NewApp(ctx, AppOptions{
		Chat:       chat,
		Onboarding: service.NewOnboardingService(repository.NewFlagRepository(kv)),
		Session:    users,
		Out:        &out,
		UserScoped: userScoped,
	})
	return app, &out
}

// userKV 按当前登录用户给键加前缀，行为与 redis/minio 后端一致。
type userKV struct {
	repository.KVStore
	users service.UserProvider
}

func (k userKV) key(key string) string {
	if u, ok := k.users.CurrentUser(); ok {
		return u.UID + ":" + key
	}
	return "anonymous:" + key
}

func (k userKV) Get(ctx context.Context, key string) (string, bool, error) {
	return k.KVStore.Get(ctx, k.key(key))
}

func (k userKV) Set(ctx context.Context, key, value string) error {
	return k.KVStore.Set(ctx, k.key(key), value)
}

func (k userKV) Delete(ctx context.Context, key string) error {
	return k.KVStore.Delete(ctx, k.key(key))
}

func signedToken(t *testing.T, premium bool) string {
	t.Helper()
	return tokenFor(t, "u1", "Selam", premium)
}

func tokenFor(t *testing.T, uid, name string, premium bool) string {
	t.Helper()
	tok, err := token.NewJWTManager("s", 1).GenerateToken(model.User{UID: uid, Name: name, IsPremium: premium})
	require.NoError(t, err)
	return tok
}

func TestApp_SendRequiresSignIn(t *testing.T) {
	ctx := context.Background()
	app, out, _ := newTestApp(t)

	assert.False(t, app.Execute(ctx, "hello"))
	assert.Contains(t, out.String(), "/signin")
	assert.Empty(t, app.chat.Conversations())
}

func TestApp_ConversationFlow(t *testing.T) {
	ctx := context.Background()
	app, out, _ := newTestApp(t)

	app.Execute(ctx, "/signin "+signedToken(t, false))
	assert.Contains(t, out.String(), "已登录为 Selam")

	app.Execute(ctx, "What is GDP?")
	assert.Contains(t, out.String(), "echo: What is GDP?")

	list := app.chat.Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, "What is GDP?", list[0].Title)
	require.Len(t, list[0].History, 2)

	app.Execute(ctx, "/new")
	require.Len(t, app.chat.Conversations(), 2)

	out.Reset()
	app.Execute(ctx, "/list")
	assert.Contains(t, out.String(), "What is GDP?")
	assert.Contains(t, out.String(), "* ")

	app.Execute(ctx, "/switch 2")
	active, ok := app.chat.Active()
	require.True(t, ok)
	assert.Equal(t, list[0].ID, active.ID)

	app.Execute(ctx, "/delete")
	require.Len(t, app.chat.Conversations(), 1)

	out.Reset()
	app.Execute(ctx, "/switch 9")
	assert.Contains(t, out.String(), "无效的序号")

	assert.True(t, app.Execute(ctx, "/quit"))
}

func TestApp_AttachAndTheme(t *testing.T) {
	ctx := context.Background()
	app, out, _ := newTestApp(t)
	app.Execute(ctx, "/signin "+signedToken(t, false))

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("chapter one"), 0o600))
	app.Execute(ctx, "/attach "+path)
	require.NotNil(t, app.pending)
	assert.True(t, strings.HasPrefix(app.prompt(), "mu [📎 doc.txt]"))

	app.Execute(ctx, "")
	assert.Nil(t, app.pending)
	active, ok := app.chat.Active()
	require.True(t, ok)
	assert.Equal(t, "File Analysis", active.Title)
	assert.Equal(t, "Analyze this file.", active.History[0].Text())

	app.Execute(ctx, "/theme neodark")
	assert.Equal(t, service.ThemeNeoDark, app.onboarding.Theme(ctx))
	out.Reset()
	app.Execute(ctx, "/theme rainbow")
	assert.Contains(t, out.String(), "无法设置主题")
	assert.Equal(t, service.ThemeNeoDark, app.onboarding.Theme(ctx))
}

func TestApp_PremiumWelcomeShownOnce(t *testing.T) {
	ctx := context.Background()
	app, out, _ := newTestApp(t)

	app.Execute(ctx, "/signin "+signedToken(t, true))
	assert.Contains(t, out.String(), "高级会员")

	out.Reset()
	app.Execute(ctx, "/signout")
	app.Execute(ctx, "/signin "+signedToken(t, true))
	assert.NotContains(t, out.String(), "欢迎成为高级会员")
}

func TestApp_SignOutClearsSharedDeviceChats(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	kv, err := repository.NewBoltKVStore(dbPath)
	require.NoError(t, err)
	users := service.NewTokenUserProvider()
	app, out := newTestAppWith(t, kv, users, false)

	app.Execute(ctx, "/signin "+tokenFor(t, "alice", "Alice", false))
	app.Execute(ctx, "private question")
	require.Len(t, app.chat.Conversations(), 1)

	app.Execute(ctx, "/signout")
	assert.Contains(t, out.String(), "已退出登录")
	assert.Empty(t, app.chat.Conversations())
	_, ok := app.chat.Active()
	assert.False(t, ok)

	app.Execute(ctx, "/signin "+tokenFor(t, "bob", "Bob", false))
	assert.Empty(t, app.chat.Conversations())

	require.NoError(t, kv.Close())
	kv, err = repository.NewBoltKVStore(dbPath)
	require.NoError(t, err)
	defer kv.Close()
	_, found, err := kv.Get(ctx, repository.ChatStorageKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApp_SwitchingAccountWithoutSignOutClearsChats(t *testing.T) {
	ctx := context.Background()
	app, _, _ := newTestApp(t)

	app.Execute(ctx, "/signin "+tokenFor(t, "alice", "Alice", false))
	app.Execute(ctx, "private question")
	require.Len(t, app.chat.Conversations(), 1)

	app.Execute(ctx, "/signin "+tokenFor(t, "bob", "Bob", false))
	assert.Empty(t, app.chat.Conversations())
}

func TestApp_UserScopedStorageFollowsSignIn(t *testing.T) {
	ctx := context.Background()
	bolt, err := repository.NewBoltKVStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	users := service.NewTokenUserProvider()
	app, _ := newTestAppWith(t, userKV{KVStore: bolt, users: users}, users, true)

	app.Execute(ctx, "/signin "+tokenFor(t, "alice", "Alice", false))
	app.Execute(ctx, "alice question")
	require.Len(t, app.chat.Conversations(), 1)

	app.Execute(ctx, "/signout")
	assert.Empty(t, app.chat.Conversations())

	app.Execute(ctx, "/signin "+tokenFor(t, "bob", "Bob", false))
	assert.Empty(t, app.chat.Conversations())
	app.Execute(ctx, "bob question")
	require.Len(t, app.chat.Conversations(), 1)
	assert.Equal(t, "bob question", app.chat.Conversations()[0].Title)

	// alice 的对话仍保存在她自己的键空间里
	app.Execute(ctx, "/signin "+tokenFor(t, "alice", "Alice", false))
	list := app.chat.Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, "alice question", list[0].Title)
	active, ok := app.chat.Active()
	require.True(t, ok)
	assert.Equal(t, list[0].ID, active.ID)
}

func TestApp_OnboardingWaitsForSignIn(t *testing.T) {
	ctx := context.Background()
	app, out, _ := newTestApp(t)

	app.greet(ctx)
	assert.NotContains(t, out.String(), "Mekelle")
	show, err := app.onboarding.ShouldShowOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, show)

	app.Execute(ctx, "/signin "+signedToken(t, false))
	assert.Contains(t, out.String(), "Mekelle")

	out.Reset()
	app.greet(ctx)
	assert.NotContains(t, out.String(), "Mekelle")
	assert.Contains(t, out.String(), "欢迎, Selam")
}
