package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bunker-go/internal/model"
	"bunker-go/internal/repository"
	"bunker-go/pkg/relay"

	"gorm.io/gorm"
)

// 本文件提供各用例共享的内存假实现。
// 仓库接口的假实现模拟追加语义与 updated_at 的单调抬升。

type fakeConversationRepo struct {
	mu       sync.Mutex
	clock    time.Time
	convs    map[string]*model.Conversation
	messages map[string][]model.Message
	seq      int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		convs:    make(map[string]*model.Conversation),
		messages: make(map[string][]model.Message),
	}
}

// tick 返回严格递增的时间戳，让排序行为确定。
func (r *fakeConversationRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

// addConv 以当前时钟登记一个会话，后登记的更"新"。
func (r *fakeConversationRepo) addConv(id, projectID, title string) *model.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	conv := &model.Conversation{ID: id, ProjectID: projectID, Title: title, CreatedAt: now, UpdatedAt: now}
	r.convs[id] = conv
	return conv
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.ID == "" {
		r.seq++
		conv.ID = fmt.Sprintf("conv-%d", r.seq)
	}
	now := r.tick()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	r.convs[conv.ID] = conv
	return nil
}

func (r *fakeConversationRepo) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *conv
	return &copied, nil
}

func (r *fakeConversationRepo) AppendMessage(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", r.seq)
	}
	msg.CreatedAt = r.tick()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	if conv, ok := r.convs[msg.ConversationID]; ok && conv.UpdatedAt.Before(msg.CreatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]model.Message, len(r.messages[conversationID]))
	copy(msgs, r.messages[conversationID])
	return msgs, nil
}

func (r *fakeConversationRepo) LastMessage(_ context.Context, conversationID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (r *fakeConversationRepo) UpdateModel(_ context.Context, conversationID, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[conversationID]; ok {
		conv.Model = modelID
	}
	return nil
}

func (r *fakeConversationRepo) MostRecent(_ context.Context, limit int) ([]model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	convs := make([]model.Conversation, 0, len(r.convs))
	for _, c := range r.convs {
		convs = append(convs, *c)
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

func (r *fakeConversationRepo) MostRecentByProject(_ context.Context, projectID string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.Conversation
	for _, c := range r.convs {
		if c.ProjectID != projectID {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

var _ repository.ConversationRepository = (*fakeConversationRepo)(nil)

type fakeProjectRepo struct {
	projects map[string]*model.Project
}

func newFakeProjectRepo(projects ...*model.Project) *fakeProjectRepo {
	r := &fakeProjectRepo{projects: make(map[string]*model.Project)}
	for _, p := range projects {
		r.projects[p.ID] = p
	}
	return r
}

func (r *fakeProjectRepo) Create(_ context.Context, project *model.Project) error {
	r.projects[project.ID] = project
	return nil
}

func (r *fakeProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

var _ repository.ProjectRepository = (*fakeProjectRepo)(nil)

type fakeLinkRepo struct {
	links map[int64]string
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[int64]string)}
}

func (r *fakeLinkRepo) LinkChannel(_ context.Context, chatID int64, projectID string) error {
	r.links[chatID] = projectID
	return nil
}

func (r *fakeLinkRepo) LinkedProject(_ context.Context, chatID int64) (string, error) {
	return r.links[chatID], nil
}

var _ repository.RelayLinkRepository = (*fakeLinkRepo)(nil)

// fakeCreds 直接实现 CredentialService，绕开 settings 表。
type fakeCreds struct {
	keys   map[string]string
	token  string
	chatID int64
	secret string
}

func (c *fakeCreds) APIKey(_ context.Context, provider string) string { return c.keys[provider] }
func (c *fakeCreds) RelayBotToken(_ context.Context) string           { return c.token }
func (c *fakeCreds) RelayChatID(_ context.Context) int64              { return c.chatID }
func (c *fakeCreds) RelayWebhookSecret(_ context.Context) string      { return c.secret }

var _ CredentialService = (*fakeCreds)(nil)

// fakeRelayClient 记录出站发送，替代真实 Bot API。
type fakeRelayClient struct {
	sentChatID int64
	sentText   []string
	sendErr    error
}

func (c *fakeRelayClient) SendMessage(_ context.Context, chatID int64, text string) (int64, error) {
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.sentChatID = chatID
	c.sentText = append(c.sentText, text)
	return int64(1000 + len(c.sentText)), nil
}

func (c *fakeRelayClient) SetWebhook(_ context.Context, url, secret string) error { return nil }
func (c *fakeRelayClient) DeleteWebhook(_ context.Context) error                  { return nil }
func (c *fakeRelayClient) GetWebhookInfo(_ context.Context) (*relay.WebhookInfo, error) {
	return &relay.WebhookInfo{}, nil
}

var _ RelayClient = (*fakeRelayClient)(nil)
