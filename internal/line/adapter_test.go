package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/draft"
	"ledgerbot/internal/normalize"
	"ledgerbot/internal/notify"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

type fakeMessenger struct {
	contentFn func(messageID string) (io.ReadCloser, string, int64, error)

	replies     [][]linebot.SendingMessage
	replyTokens []string
	pushes      [][]linebot.SendingMessage
	pushTargets []string
}

func (f *fakeMessenger) Reply(_ context.Context, replyToken string, messages ...linebot.SendingMessage) error {
	f.replies = append(f.replies, messages)
	f.replyTokens = append(f.replyTokens, replyToken)
	return nil
}

func (f *fakeMessenger) Push(_ context.Context, to string, messages ...linebot.SendingMessage) error {
	f.pushes = append(f.pushes, messages)
	f.pushTargets = append(f.pushTargets, to)
	return nil
}

func (f *fakeMessenger) Content(_ context.Context, messageID string) (io.ReadCloser, string, int64, error) {
	if f.contentFn != nil {
		return f.contentFn(messageID)
	}
	return io.NopCloser(strings.NewReader("jpegbytes")), "image/jpeg", 9, nil
}

func (f *fakeMessenger) DisplayName(context.Context, string) (string, error) {
	return "alice", nil
}

func (f *fakeMessenger) lastReplyText(t *testing.T) string {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatal("no replies recorded")
	}
	last := f.replies[len(f.replies)-1]
	if tm, ok := last[0].(*linebot.TextMessage); ok {
		return tm.Text
	}
	return ""
}

func acceptingGateway(t *testing.T) *pipeline.Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "saved"})
	}))
	t.Cleanup(server.Close)
	return pipeline.New(server.URL, "https://bot.example", 5*time.Second)
}

func newTestAdapter(t *testing.T, gateway *pipeline.Gateway) (*Adapter, *fakeMessenger, *draft.Store) {
	t.Helper()
	msgr := &fakeMessenger{}
	store := draft.NewStore()
	if gateway == nil {
		gateway = acceptingGateway(t)
	}
	a := &Adapter{
		msg:     msgr,
		store:   store,
		gateway: gateway,
		pending: make(map[string]pendingInput),
	}
	a.SetResolver(resolve.New(&Conversation{msg: msgr}, notify.NewMemoryMarker(), notify.NewMemoryMarker()))
	return a, msgr, store
}

func postbackEvent(replyToken, data string) *linebot.Event {
	return &linebot.Event{
		Type:       linebot.EventTypePostback,
		ReplyToken: replyToken,
		Source:     &linebot.EventSource{UserID: "U1"},
		Postback:   &linebot.Postback{Data: data},
	}
}

func textEvent(replyToken, text string) *linebot.Event {
	return &linebot.Event{
		Type:       linebot.EventTypeMessage,
		ReplyToken: replyToken,
		Source:     &linebot.EventSource{UserID: "U1"},
		Message:    &linebot.TextMessage{Text: text},
	}
}

func TestCommandReplies(t *testing.T) {
	a, msgr, _ := newTestAdapter(t, nil)

	a.HandleEvent(context.Background(), textEvent("r1", "/cat"))
	if got := msgr.lastReplyText(t); got != "喵喵/ᐠ .ᆺ. ᐟﾉ" {
		t.Errorf("/cat reply = %q", got)
	}

	a.HandleEvent(context.Background(), textEvent("r2", "/dog"))
	if got := msgr.lastReplyText(t); got != "汪汪Ꮚ･ꈊ･Ꮚ" {
		t.Errorf("/dog reply = %q", got)
	}
}

func TestUnknownTextGetsDefaultReplies(t *testing.T) {
	a, msgr, _ := newTestAdapter(t, nil)

	a.HandleEvent(context.Background(), textEvent("r1", "hello"))
	if len(msgr.replies) != 1 || len(msgr.replies[0]) != 2 {
		t.Fatalf("default reply shape = %d messages", len(msgr.replies[0]))
	}
}

func TestSetCategoryAppliesPostbackEchoes(t *testing.T) {
	a, msgr, store := newTestAdapter(t, nil)

	a.HandleEvent(context.Background(),
		postbackEvent("r1", "action=setcat&inv=AB12345678&cat=food&date=20240115&amount=120"))

	d, ok := store.Get("AB12345678")
	if !ok {
		t.Fatal("setcat did not create a draft")
	}
	if d.Category != "food" || d.Date != "2024-01-15" || d.Amount != "120" {
		t.Errorf("draft = %+v", d)
	}
	if !strings.Contains(msgr.lastReplyText(t), "🍜 餐飲") {
		t.Errorf("acknowledgment = %q", msgr.lastReplyText(t))
	}
}

func TestDetailFlowReachesConfirmation(t *testing.T) {
	a, msgr, store := newTestAdapter(t, nil)

	a.HandleEvent(context.Background(),
		postbackEvent("r1", "action=setcat&inv=AB12345678&cat=food&date=20240115&amount=120"))
	a.HandleEvent(context.Background(),
		postbackEvent("r2", "action=detail&inv=AB12345678"))
	a.HandleEvent(context.Background(), textEvent("r3", "lunch"))

	d, _ := store.Get("AB12345678")
	if d.Status != draft.StatusConfirming || d.Detail != "lunch" {
		t.Fatalf("draft = %+v", d)
	}
	// The confirmation is a flex card, not plain text.
	last := msgr.replies[len(msgr.replies)-1]
	if _, ok := last[0].(*linebot.FlexMessage); !ok {
		t.Errorf("confirmation message type = %T", last[0])
	}
}

func TestPendingEditConsumesNextText(t *testing.T) {
	a, msgr, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "U1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}

	a.HandleEvent(context.Background(),
		postbackEvent("r1", "action=edit&inv=AB12345678&field="+string(normalize.FieldAmount)))
	a.HandleEvent(context.Background(), textEvent("r2", "999"))

	d, _ := store.Get("AB12345678")
	if d.Amount != "999" {
		t.Errorf("amount = %q, want 999", d.Amount)
	}
	if !strings.Contains(msgr.lastReplyText(t), "已更新") {
		t.Errorf("reply = %q", msgr.lastReplyText(t))
	}

	// The armed state is consumed: the next message falls through to the
	// default responder.
	a.HandleEvent(context.Background(), textEvent("r3", "777"))
	d, _ = store.Get("AB12345678")
	if d.Amount != "999" {
		t.Errorf("unarmed text still edited the draft: %q", d.Amount)
	}
}

func TestImageForwardedToPipeline(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	}))
	defer server.Close()
	gateway := pipeline.New(server.URL, "https://bot.example", 5*time.Second)

	a, msgr, _ := newTestAdapter(t, gateway)
	a.HandleEvent(context.Background(), &linebot.Event{
		Type:       linebot.EventTypeMessage,
		ReplyToken: "r1",
		Source:     &linebot.EventSource{UserID: "U1"},
		Message:    &linebot.ImageMessage{ID: "msg-1"},
	})

	if gotPath == "" {
		t.Fatal("image never reached the pipeline")
	}
	if !strings.Contains(msgr.lastReplyText(t), "圖片處理中") {
		t.Errorf("reply = %q", msgr.lastReplyText(t))
	}
}

func TestConfirmSettlesSynchronously(t *testing.T) {
	a, msgr, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "U1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "U1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}

	a.HandleEvent(context.Background(), postbackEvent("r1", "action=confirm&inv=AB12345678"))

	if _, ok := store.Get("AB12345678"); ok {
		t.Error("settled draft should be deleted")
	}
	// Final acknowledgment plus the public ledger card.
	if len(msgr.pushes) != 2 {
		t.Fatalf("pushes = %d, want 2", len(msgr.pushes))
	}
	if tm, ok := msgr.pushes[0][0].(*linebot.TextMessage); !ok || !strings.Contains(tm.Text, "記帳成功") {
		t.Errorf("final push = %+v", msgr.pushes[0][0])
	}
	if _, ok := msgr.pushes[1][0].(*linebot.FlexMessage); !ok {
		t.Errorf("ledger card type = %T", msgr.pushes[1][0])
	}
}

func TestSyncVerdictNotRepeatedByCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": pipeline.DuplicateMarker})
	}))
	defer server.Close()
	gateway := pipeline.New(server.URL, "https://bot.example", 5*time.Second)

	a, msgr, store := newTestAdapter(t, gateway)
	if _, err := store.SetDetail("AB12345678", "U1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "U1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}

	a.HandleEvent(context.Background(), postbackEvent("r1", "action=confirm&inv=AB12345678"))
	settled := len(msgr.pushes)

	// The pipeline retries the same verdict over the callback channel.
	verdict := resolve.Verdict{
		Outcome:  resolve.OutcomeDuplicate,
		Snapshot: draft.Draft{InvoiceNumber: "AB12345678", UserID: "U1"},
	}
	a.resolver.Deliver(context.Background(), "r1", "U1", verdict)

	if len(msgr.pushes) != settled {
		t.Errorf("pushes after callback = %d, want %d", len(msgr.pushes), settled)
	}
}

func TestSecondConfirmReportsInFlight(t *testing.T) {
	a, msgr, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "U1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "U1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}
	if _, err := store.Confirm("AB12345678", "tok-1", "U1", "alice"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	a.HandleEvent(context.Background(), postbackEvent("r1", "action=confirm&inv=AB12345678"))

	if !strings.Contains(msgr.lastReplyText(t), "已在處理中") {
		t.Errorf("reply = %q", msgr.lastReplyText(t))
	}
}

func TestDeliverOCRResultReplyPath(t *testing.T) {
	a, msgr, _ := newTestAdapter(t, nil)

	err := a.DeliverOCRResult(context.Background(), OCRResult{
		ReplyToken:    "r1",
		InvoiceNumber: "AB12345678",
		Date:          "20240115",
		Amount:        "120",
	})
	if err != nil {
		t.Fatalf("DeliverOCRResult failed: %v", err)
	}
	text := msgr.lastReplyText(t)
	if !strings.Contains(text, "AB12345678") || !strings.Contains(text, "2024-01-15") {
		t.Errorf("reply = %q", text)
	}
}

func TestDeliverOCRResultFlexPushPath(t *testing.T) {
	a, msgr, _ := newTestAdapter(t, nil)

	err := a.DeliverOCRResult(context.Background(), OCRResult{
		UserID:        "U1",
		InvoiceNumber: "AB12345678",
		Date:          "2024-01-15",
		Amount:        "120",
		UseFlex:       true,
	})
	if err != nil {
		t.Fatalf("DeliverOCRResult failed: %v", err)
	}
	if len(msgr.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(msgr.pushes))
	}
	if _, ok := msgr.pushes[0][0].(*linebot.FlexMessage); !ok {
		t.Errorf("pushed type = %T", msgr.pushes[0][0])
	}
}
