package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/config"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/intent"
	"github.com/nextlevelbuilder/frontdesk/internal/llm"
	"github.com/nextlevelbuilder/frontdesk/internal/mute"
	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) ListKeys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memKV) Close() error { return nil }

// brokenKV accepts reads but fails every write, like a full disk.
type brokenKV struct{ *memKV }

func (b *brokenKV) Put(string, []byte) error { return errors.New("disk full") }

// scriptedProvider matches a fragment of the system prompt (or of the lone
// user message) against canned responses.
type scriptedProvider struct {
	mu        sync.Mutex
	responses map[string]string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for fragment, content := range p.responses {
		if strings.Contains(req.Messages[0].Content, fragment) {
			return &llm.ChatResponse{Content: content}, nil
		}
	}
	return nil, errors.New("no scripted response")
}

func (p *scriptedProvider) set(fragment, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[fragment] = content
}

type fakeChannel struct {
	mu      sync.Mutex
	sends   []bus.OutboundMessage
	typing  []string
	sendErr error
}

func (f *fakeChannel) Name() string                    { return "fake" }
func (f *fakeChannel) Start(context.Context) error     { return nil }
func (f *fakeChannel) Stop(context.Context) error      { return nil }
func (f *fakeChannel) IsRunning() bool                 { return true }

func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, msg)
	return nil
}

func (f *fakeChannel) SendTyping(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, chatID)
	return nil
}

func (f *fakeChannel) sent() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.OutboundMessage, len(f.sends))
	copy(out, f.sends)
	return out
}

const systemPromptMarker = "Ты вежливый сотрудник управляющей компании."

var pipelinePersona = config.PersonaConfig{
	Name:         "main",
	BridgeURL:    "ws://test",
	Admin:        true,
	AdminPeer:    "admin@c.us",
	SystemPrompt: systemPromptMarker,
	Routing: config.RoutingConfig{
		General:    "general@g.us",
		Accounting: "acct@g.us",
		Admin:      "adminchat@g.us",
	},
	FallbackPhone: "+7 900 000-00-00",
}

func baseResponses() map[string]string {
	return map[string]string{
		"route resident requests":    `{"category":"none"}`,
		"enough detail":              `{"full_name":"","has_address":false,"has_issue":false,"questions":[]}`,
		"Extract the resident's":     `{"full_name":"Иван Петров","address":"Ленина 5, кв. 12","contact":"","issue":"прорвало трубу","detail":""}`,
		"asked to confirm":           `{"verdict":"confirm"}`,
		"same problem as any recent": `{"duplicate":false}`,
		"NEW, SEPARATE request":      `{"insists":false}`,
		"abandons the pending":       `{"topic_changed":false}`,
		"account number":             `{"account_question":false}`,
		systemPromptMarker:           "Здравствуйте! Чем могу помочь?",
	}
}

type testRig struct {
	p        *Pipeline
	provider *scriptedProvider
	channel  *fakeChannel
	bus      *bus.MessageBus
	log      *conversation.Log
	mutes    *mute.Registry
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	return newTestRigKV(t, newMemKV())
}

func newTestRigKV(t *testing.T, kv store.KV) *testRig {
	t.Helper()

	provider := &scriptedProvider{responses: baseResponses()}
	channel := &fakeChannel{}
	msgBus := bus.NewMessageBus()
	log := conversation.NewLog(kv)
	mutes := mute.NewRegistry(kv)

	prompts, err := config.NewPromptStore("", []config.PersonaConfig{pipelinePersona})
	if err != nil {
		t.Fatal(err)
	}

	p := New(pipelinePersona, Deps{
		Bus:        msgBus,
		Channel:    channel,
		Log:        log,
		States:     conversation.NewRegistry(),
		Mutes:      mutes,
		Classifier: intent.New(provider, "test-model"),
		Summarizer: conversation.NewSummarizer(log, provider, "test-model"),
		Prompts:    prompts,
	})
	p.runCtx = context.Background()

	return &testRig{p: p, provider: provider, channel: channel, bus: msgBus, log: log, mutes: mutes}
}

// drainOutbound collects queued outbound messages without blocking forever.
func (r *testRig) drainOutbound(t *testing.T) []bus.OutboundMessage {
	t.Helper()
	var out []bus.OutboundMessage
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		msg, ok := r.bus.SubscribeOutbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func inbound(chatID, content string) bus.InboundMessage {
	return bus.InboundMessage{ChatID: chatID, SenderID: chatID, Content: content, Kind: "text", Timestamp: time.Now()}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBatchProposesTicketAndConfirmFlowDispatches(t *testing.T) {
	r := newTestRig(t)
	r.provider.set("route resident requests", `{"category":"general"}`)
	r.provider.set("enough detail", `{"full_name":"Иван Петров","has_address":true,"has_issue":true,"questions":[]}`)

	key := "main:user@c.us"

	// Burst of three messages arrives as one batch.
	r.p.processBatch(key, []bus.InboundMessage{
		inbound("user@c.us", "здравствуйте"),
		inbound("user@c.us", "прорвало трубу на кухне"),
		inbound("user@c.us", "Иван Петров, Ленина 5 кв 12"),
	})

	replies := r.drainOutbound(t)
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0].Content, "Всё верно?") {
		t.Errorf("expected confirmation summary, got %q", replies[0].Content)
	}

	// User confirms; the ticket goes to the general staff chat.
	r.p.processBatch(key, []bus.InboundMessage{inbound("user@c.us", "да")})

	replies = r.drainOutbound(t)
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "#") {
		t.Fatalf("expected ticket id reply, got %v", replies)
	}

	staff := r.channel.sent()
	if len(staff) != 1 || staff[0].ChatID != "general@g.us" {
		t.Fatalf("staff dispatch wrong: %v", staff)
	}
	if !strings.Contains(staff[0].Content, "Иван Петров") {
		t.Errorf("staff message missing fields: %q", staff[0].Content)
	}

	// History recorded both sides.
	history, _ := r.log.History(key)
	if len(history) < 5 {
		t.Errorf("history too short: %d turns", len(history))
	}
}

func TestIncompleteRequestGetsClarifyingQuestions(t *testing.T) {
	r := newTestRig(t)
	r.provider.set("route resident requests", `{"category":"general"}`)
	r.provider.set("enough detail", `{"full_name":"","has_address":false,"has_issue":true,"questions":["Как вас зовут (фамилия и имя)?","Какой у вас адрес?"]}`)

	r.p.processBatch("main:user@c.us", []bus.InboundMessage{inbound("user@c.us", "прорвало трубу")})

	replies := r.drainOutbound(t)
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0].Content, "Как вас зовут") {
		t.Errorf("clarifying questions not relayed: %q", replies[0].Content)
	}
	if len(r.channel.sent()) != 0 {
		t.Error("incomplete request reached the staff chat")
	}
}

func TestSmallTalkGetsConversationalReply(t *testing.T) {
	r := newTestRig(t)

	r.p.processBatch("main:user@c.us", []bus.InboundMessage{inbound("user@c.us", "спасибо большое!")})

	replies := r.drainOutbound(t)
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "Здравствуйте") {
		t.Errorf("conversational reply wrong: %v", replies)
	}
}

func TestTotalLLMFailureFallsBack(t *testing.T) {
	r := newTestRig(t)
	r.provider.mu.Lock()
	r.provider.responses = map[string]string{} // every call fails
	r.provider.mu.Unlock()

	r.p.processBatch("main:user@c.us", []bus.InboundMessage{inbound("user@c.us", "помогите")})

	replies := r.drainOutbound(t)
	if len(replies) != 1 || replies[0].Content != msgFallback {
		t.Errorf("expected fallback message, got %v", replies)
	}
}

func TestStoreFailureStillReplies(t *testing.T) {
	r := newTestRigKV(t, &brokenKV{newMemKV()})

	r.p.processBatch("main:user@c.us", []bus.InboundMessage{inbound("user@c.us", "спасибо большое!")})

	replies := r.drainOutbound(t)
	if len(replies) != 1 {
		t.Fatalf("store failure left the user without a reply: %v", replies)
	}
	if !strings.Contains(replies[0].Content, "Здравствуйте") {
		t.Errorf("expected a conversational reply, got %q", replies[0].Content)
	}
}

func TestMutedConversationStaysSilentButRecords(t *testing.T) {
	r := newTestRig(t)
	key := "main:user@c.us"
	r.mutes.Mute(key, time.Hour)

	r.p.dispatch(inbound("user@c.us", "вы тут?"))

	if r.p.batcher.Pending(key) {
		t.Error("muted message was enqueued")
	}
	if replies := r.drainOutbound(t); len(replies) != 0 {
		t.Errorf("muted conversation got a reply: %v", replies)
	}
	history, _ := r.log.History(key)
	if len(history) != 1 {
		t.Errorf("muted turn not recorded: %d turns", len(history))
	}
}

func TestResetWipesConversation(t *testing.T) {
	r := newTestRig(t)
	key := "main:user@c.us"
	r.log.Append(key, conversation.NewTurn(conversation.RoleUser, "старое"))

	r.p.dispatch(inbound("user@c.us", "!reset"))

	history, _ := r.log.History(key)
	if len(history) != 0 {
		t.Error("history survived reset")
	}
	replies := r.drainOutbound(t)
	if len(replies) != 1 || replies[0].Content != msgResetDone {
		t.Errorf("reset confirmation wrong: %v", replies)
	}
}

func TestAdminCommandsBypassDebounce(t *testing.T) {
	r := newTestRig(t)

	r.p.dispatch(inbound("admin@c.us", "!mute user@c.us 1h"))
	if !r.mutes.IsMuted("main:user@c.us") {
		t.Error("!mute did not mute the target")
	}

	r.p.dispatch(inbound("admin@c.us", "!status user@c.us"))
	r.p.dispatch(inbound("admin@c.us", "!unmute user@c.us"))
	if r.mutes.IsMuted("main:user@c.us") {
		t.Error("!unmute did not lift the mute")
	}

	replies := r.drainOutbound(t)
	if len(replies) != 3 {
		t.Fatalf("expected 3 admin replies, got %d", len(replies))
	}
	for _, msg := range replies {
		if msg.ChatID != "admin@c.us" {
			t.Errorf("admin reply leaked to %s", msg.ChatID)
		}
	}
}

func TestOperatorSelfMessageCancelsBatch(t *testing.T) {
	r := newTestRig(t)
	key := "main:user@c.us"

	// Buffered input waiting for the quiet period.
	r.p.batcher.Enqueue(key, inbound("user@c.us", "прорвало трубу"))

	msg := inbound("user@c.us", "добрый день, это диспетчер, уже выезжаем")
	msg.FromSelf = true
	r.p.dispatch(msg)

	// Arbitration runs on its own goroutine and rechecks before yielding.
	waitFor(t, 2*time.Second, func() bool { return !r.p.batcher.Pending(key) })
	waitFor(t, 2*time.Second, func() bool {
		history, _ := r.log.History(key)
		return len(history) == 1 && history[0].Operator
	})
}

func TestSelfMessageDoesNotStallIntake(t *testing.T) {
	r := newTestRig(t)

	msg := inbound("user@c.us", "это диспетчер")
	msg.FromSelf = true

	start := time.Now()
	r.p.dispatch(msg)
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("dispatch blocked %v on self-message arbitration", d)
	}

	waitFor(t, 2*time.Second, func() bool {
		history, _ := r.log.History("main:user@c.us")
		return len(history) == 1 && history[0].Operator
	})
}

func TestEchoOfOwnSendIsIgnored(t *testing.T) {
	r := newTestRig(t)
	key := "main:user@c.us"

	if err := r.p.sender.Send(context.Background(), "user@c.us", "Заявка принята."); err != nil {
		t.Fatal(err)
	}

	if r.p.arbiter.HandleSelfMessage(key, "user@c.us", "Заявка принята.") {
		t.Error("own echo treated as operator intervention")
	}
	history, _ := r.log.History(key)
	if len(history) != 0 {
		t.Errorf("own echo recorded as operator turn: %v", history)
	}
}

func TestGroupMessagesAreIgnored(t *testing.T) {
	r := newTestRig(t)
	msg := inbound("general@g.us", "новая заявка в чате")
	msg.IsGroup = true

	r.p.dispatch(msg)

	if r.p.batcher.Pending("main:general@g.us") {
		t.Error("group message was enqueued")
	}
}

func TestDuplicateWithinDayIsSuppressed(t *testing.T) {
	r := newTestRig(t)
	r.provider.set("route resident requests", `{"category":"general"}`)
	r.provider.set("enough detail", `{"full_name":"Иван Петров","has_address":true,"has_issue":true,"questions":[]}`)

	key := "main:user@c.us"

	r.p.processBatch(key, []bus.InboundMessage{inbound("user@c.us", "прорвало трубу, Ленина 5 кв 12, Иван Петров")})
	r.p.processBatch(key, []bus.InboundMessage{inbound("user@c.us", "да")})
	r.drainOutbound(t)

	// An hour later the same complaint comes again.
	r.p.processBatch(key, []bus.InboundMessage{inbound("user@c.us", "труба всё ещё течёт, сделайте заявку")})

	replies := r.drainOutbound(t)
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "уже есть заявка") {
		t.Errorf("duplicate not suppressed: %v", replies)
	}
	if staff := r.channel.sent(); len(staff) != 1 {
		t.Errorf("duplicate dispatched to staff: %d sends", len(staff))
	}
}
