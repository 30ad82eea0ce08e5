package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bunker-go/internal/model"
	"bunker-go/pkg/bus"
	"bunker-go/pkg/relay"
)

func newTestRelayService(creds *fakeCreds, convRepo *fakeConversationRepo, linkRepo *fakeLinkRepo, client *fakeRelayClient) (*relayService, *bus.Broadcaster) {
	broadcaster := bus.New()
	s := &relayService{
		creds:            creds,
		conversationRepo: convRepo,
		linkRepo:         linkRepo,
		broadcaster:      broadcaster,
		newClient:        func(string) RelayClient { return client },
	}
	return s, broadcaster
}

func textUpdate(chatID int64, text string) *relay.Update {
	return &relay.Update{
		UpdateID: 1,
		Message: &relay.IncomingMessage{
			MessageID: 7,
			Chat:      relay.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func TestFormatOutbound(t *testing.T) {
	tests := []struct {
		name    string
		project string
		topic   string
		text    string
		want    string
	}{
		{
			name:    "带话题上下文块",
			project: "Acme",
			topic:   "Planning",
			text:    "ship it",
			want:    "[Bunker:Acme] ship it\n\n📋 Context: Topic: \"Planning\"",
		},
		{
			name:    "无话题",
			project: "Acme",
			topic:   "",
			text:    "hello",
			want:    "[Bunker:Acme] hello",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatOutbound(tt.project, tt.topic, tt.text); got != tt.want {
				t.Errorf("FormatOutbound() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendToRelay(t *testing.T) {
	t.Run("凭证与频道缺失是两类错误", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		s, _ := newTestRelayService(&fakeCreds{}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})
		if _, err := s.SendToRelay(context.Background(), "p1", "Acme", "", "hi"); err != ErrRelayTokenMissing {
			t.Fatalf("want ErrRelayTokenMissing, got %v", err)
		}

		s2, _ := newTestRelayService(&fakeCreds{token: "tok"}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})
		if _, err := s2.SendToRelay(context.Background(), "p1", "Acme", "", "hi"); err != ErrRelayChatMissing {
			t.Fatalf("want ErrRelayChatMissing, got %v", err)
		}
	})

	t.Run("发送成功后记录频道项目关联", func(t *testing.T) {
		client := &fakeRelayClient{}
		linkRepo := newFakeLinkRepo()
		s, _ := newTestRelayService(&fakeCreds{token: "tok", chatID: 99}, newFakeConversationRepo(), linkRepo, client)

		id, err := s.SendToRelay(context.Background(), "p1", "Acme", "Planning", "ship it")
		if err != nil {
			t.Fatalf("SendToRelay: %v", err)
		}
		if id == 0 {
			t.Error("want non-zero relay message id")
		}
		if got := client.sentText[0]; got != "[Bunker:Acme] ship it\n\n📋 Context: Topic: \"Planning\"" {
			t.Errorf("outbound text = %q", got)
		}
		if linkRepo.links[99] != "p1" {
			t.Errorf("channel link not recorded: %v", linkRepo.links)
		}
	})
}

func TestSetupWebhookValidation(t *testing.T) {
	t.Run("set 缺少 webhookUrl 是校验错误", func(t *testing.T) {
		s, _ := newTestRelayService(&fakeCreds{token: "tok"}, newFakeConversationRepo(), newFakeLinkRepo(), &fakeRelayClient{})
		_, err := s.SetupWebhook(context.Background(), "set", "")
		if !errors.Is(err, ErrWebhookURLMissing) {
			t.Fatalf("want ErrWebhookURLMissing, got %v", err)
		}
	})

	t.Run("未知动作是校验错误", func(t *testing.T) {
		s, _ := newTestRelayService(&fakeCreds{token: "tok"}, newFakeConversationRepo(), newFakeLinkRepo(), &fakeRelayClient{})
		_, err := s.SetupWebhook(context.Background(), "explode", "")
		if !errors.Is(err, ErrUnknownSetupAction) {
			t.Fatalf("want ErrUnknownSetupAction, got %v", err)
		}
	})

	t.Run("凭证缺失优先于动作分派", func(t *testing.T) {
		s, _ := newTestRelayService(&fakeCreds{}, newFakeConversationRepo(), newFakeLinkRepo(), &fakeRelayClient{})
		_, err := s.SetupWebhook(context.Background(), "info", "")
		if !errors.Is(err, ErrRelayTokenMissing) {
			t.Fatalf("want ErrRelayTokenMissing, got %v", err)
		}
	})
}

func TestHandleInboundUpdateFiltering(t *testing.T) {
	t.Run("密钥不匹配拒绝且零副作用", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("c1", "p1", "")
		s, broadcaster := newTestRelayService(&fakeCreds{chatID: 99, secret: "s3cret"}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

		published := 0
		defer broadcaster.SubscribeGlobal(func(bus.Event) { published++ })()

		err := s.HandleInboundUpdate(context.Background(), textUpdate(99, "reply"), "wrong")
		if err != ErrWebhookUnauthorized {
			t.Fatalf("want ErrWebhookUnauthorized, got %v", err)
		}
		if len(convRepo.messages["c1"]) != 0 {
			t.Error("unauthorized update must not persist anything")
		}
		if published != 0 {
			t.Error("unauthorized update must not broadcast")
		}
	})

	t.Run("非文本更新静默丢弃", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("c1", "p1", "")
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

		if err := s.HandleInboundUpdate(context.Background(), &relay.Update{UpdateID: 2}, ""); err != nil {
			t.Fatalf("non-text update is a no-op, got %v", err)
		}
		if len(convRepo.messages["c1"]) != 0 {
			t.Error("non-text update must not persist")
		}
	})

	t.Run("来源频道不匹配丢弃", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("c1", "p1", "")
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

		if err := s.HandleInboundUpdate(context.Background(), textUpdate(42, "reply"), ""); err != nil {
			t.Fatalf("mismatched channel is a no-op, got %v", err)
		}
		if len(convRepo.messages["c1"]) != 0 {
			t.Error("mismatched channel must not persist")
		}
	})

	t.Run("出站前缀回声抑制", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("c1", "p1", "")
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

		echoes := []string{
			"[Bunker:Acme] ship it",
			"[Bunker:Other] anything at all",
		}
		for _, text := range echoes {
			if err := s.HandleInboundUpdate(context.Background(), textUpdate(99, text), ""); err != nil {
				t.Fatalf("echo must be a no-op, got %v", err)
			}
		}
		if len(convRepo.messages["c1"]) != 0 {
			t.Error("echoed outbound message must never become an assistant message")
		}
	})

	t.Run("重放同一更新各自独立成功", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("c1", "p1", "")
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

		u := textUpdate(99, "the answer")
		for i := 0; i < 2; i++ {
			if err := s.HandleInboundUpdate(context.Background(), u, ""); err != nil {
				t.Fatalf("replay %d failed: %v", i, err)
			}
		}
		// at-least-once：不去重，允许追加两条
		if len(convRepo.messages["c1"]) != 2 {
			t.Errorf("want 2 appended replies, got %d", len(convRepo.messages["c1"]))
		}
	})
}

func TestHandleInboundUpdateResolution(t *testing.T) {
	t.Run("关联项目优先", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		convRepo.addConv("other", "p2", "")
		convRepo.addConv("linked-old", "p1", "")
		convRepo.addConv("linked-new", "p1", "")
		linkRepo := newFakeLinkRepo()
		linkRepo.links[99] = "p1"
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, linkRepo, &fakeRelayClient{})

		if err := s.HandleInboundUpdate(context.Background(), textUpdate(99, "reply"), ""); err != nil {
			t.Fatalf("HandleInboundUpdate: %v", err)
		}
		if len(convRepo.messages["linked-new"]) != 1 {
			t.Errorf("reply should land in the project's most recent conversation, messages=%v", convRepo.messages)
		}
	})

	t.Run("最近五个中第一个等待回复的会话", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		ctx := context.Background()
		// 五个会话，时间从旧到新登记；其中 c3 的最后一条是 user。
		for _, id := range []string{"c5", "c4", "c3", "c2", "c1"} {
			convRepo.addConv(id, "p-"+id, "")
		}
		// 给 c3 追加一条 user 消息，再让 c1/c2 的最后一条是 assistant。
		_ = convRepo.AppendMessage(ctx, &model.Message{ConversationID: "c3", Role: model.RoleUser, Content: "waiting"})
		_ = convRepo.AppendMessage(ctx, &model.Message{ConversationID: "c2", Role: model.RoleAssistant, Content: "done"})
		_ = convRepo.AppendMessage(ctx, &model.Message{ConversationID: "c1", Role: model.RoleAssistant, Content: "done"})

		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})
		if err := s.HandleInboundUpdate(ctx, textUpdate(99, "reply"), ""); err != nil {
			t.Fatalf("HandleInboundUpdate: %v", err)
		}
		msgs := convRepo.messages["c3"]
		if len(msgs) != 2 || msgs[1].Role != model.RoleAssistant {
			t.Errorf("reply should land in c3 (first pending-user conversation), got %v", convRepo.messages)
		}
	})

	t.Run("无等待会话时回退到全局最近", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		ctx := context.Background()
		convRepo.addConv("old", "p1", "")
		convRepo.addConv("newest", "p2", "")
		_ = convRepo.AppendMessage(ctx, &model.Message{ConversationID: "newest", Role: model.RoleAssistant, Content: "done"})

		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})
		if err := s.HandleInboundUpdate(ctx, textUpdate(99, "reply"), ""); err != nil {
			t.Fatalf("HandleInboundUpdate: %v", err)
		}
		if len(convRepo.messages["newest"]) != 2 {
			t.Errorf("reply should land in the most recently active conversation, got %v", convRepo.messages)
		}
	})

	t.Run("没有任何会话时确认并丢弃", func(t *testing.T) {
		convRepo := newFakeConversationRepo()
		s, _ := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})
		if err := s.HandleInboundUpdate(context.Background(), textUpdate(99, "reply"), ""); err != nil {
			t.Fatalf("drop with no conversations must not error, got %v", err)
		}
	})
}

func TestHandleInboundUpdatePersistAndBroadcast(t *testing.T) {
	convRepo := newFakeConversationRepo()
	conv := convRepo.addConv("c1", "p1", "")
	before := conv.UpdatedAt
	s, broadcaster := newTestRelayService(&fakeCreds{chatID: 99}, convRepo, newFakeLinkRepo(), &fakeRelayClient{})

	var got []bus.Event
	defer broadcaster.Subscribe("c1", func(ev bus.Event) { got = append(got, ev) })()

	if err := s.HandleInboundUpdate(context.Background(), textUpdate(99, "the answer"), ""); err != nil {
		t.Fatalf("HandleInboundUpdate: %v", err)
	}

	msgs := convRepo.messages["c1"]
	if len(msgs) != 1 {
		t.Fatalf("want 1 persisted reply, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleAssistant || msgs[0].Content != "the answer" {
		t.Errorf("persisted reply = %+v", msgs[0])
	}
	if !convRepo.convs["c1"].UpdatedAt.After(before) {
		t.Error("conversation updated_at must be bumped")
	}
	if len(got) != 1 || got[0].ConversationID != "c1" {
		t.Fatalf("want 1 broadcast event for c1, got %v", got)
	}
	reply, ok := got[0].Message.(*model.Message)
	if !ok || reply.Content != "the answer" {
		t.Errorf("broadcast payload = %#v", got[0].Message)
	}
	if !strings.HasPrefix(reply.ID, "msg-") {
		t.Errorf("broadcast message should carry the persisted id, got %q", reply.ID)
	}
}
