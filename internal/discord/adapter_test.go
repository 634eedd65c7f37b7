package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/draft"
	"ledgerbot/internal/notify"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

type fakeSession struct {
	respondFn func(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	userFn    func(userID string) (*discordgo.User, error)

	responses       []*discordgo.InteractionResponse
	webhookEdits    []*discordgo.WebhookEdit
	sentText        []string
	sentComplex     []*discordgo.MessageSend
	messageEdits    []*discordgo.MessageEdit
	channelMessages []*discordgo.Message
}

func (f *fakeSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	if f.respondFn != nil {
		return f.respondFn(i, resp)
	}
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.webhookEdits = append(f.webhookEdits, edit)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelMessageSend(_ string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sentText = append(f.sentText, content)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sentComplex = append(f.sentComplex, data)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messageEdits = append(f.messageEdits, m)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelMessages(_ string, _ int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return f.channelMessages, nil
}

func (f *fakeSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if f.userFn != nil {
		return f.userFn(userID)
	}
	return &discordgo.User{ID: userID, Username: "alice"}, nil
}

func acceptingGateway(t *testing.T) *pipeline.Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "saved"})
	}))
	t.Cleanup(server.Close)
	return pipeline.New(server.URL, "https://bot.example", 5*time.Second)
}

func duplicateGateway(t *testing.T) *pipeline.Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": pipeline.DuplicateMarker})
	}))
	t.Cleanup(server.Close)
	return pipeline.New(server.URL, "https://bot.example", 5*time.Second)
}

func newTestAdapter(t *testing.T, gateway *pipeline.Gateway) (*Adapter, *fakeSession, *draft.Store) {
	t.Helper()
	sess := &fakeSession{}
	store := draft.NewStore()
	if gateway == nil {
		gateway = acceptingGateway(t)
	}
	a := New(sess, store, gateway, false)
	a.SetResolver(resolve.New(NewConversation(sess), notify.NewMemoryMarker(), notify.NewMemoryMarker()))
	return a, sess, store
}

// cardMessage mimics a rendered recognition card: positional fields in
// backticks, amount behind the NT$ prefix, receipt image as thumbnail.
func cardMessage() *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "chan-1",
		Embeds: []*discordgo.MessageEmbed{{
			Fields: []*discordgo.MessageEmbedField{
				{Name: "📄 發票號碼", Value: "`AB12345678`"},
				{Name: "📅 消費日期", Value: "`2024-01-15`"},
				{Name: "💰 消費金額", Value: "`NT$ 120`"},
			},
			Thumbnail: &discordgo.MessageEmbedThumbnail{URL: "https://img.example/r.jpg"},
		}},
	}
}

func componentInteraction(id, customID string, values []string, msg *discordgo.Message) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        id,
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "chan-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice"}},
		Message:   msg,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}}
}

func modalInteraction(id, customID string, inputs map[string]string) *discordgo.InteractionCreate {
	components := make([]discordgo.MessageComponent, 0, len(inputs))
	for inputID, value := range inputs {
		components = append(components, &discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: inputID, Value: value},
			},
		})
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        id,
		Type:      discordgo.InteractionModalSubmit,
		ChannelID: "chan-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice"}},
		Data:      discordgo.ModalSubmitInteractionData{CustomID: customID, Components: components},
	}}
}

func TestCategorySelectSeedsDraftFromCard(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)

	a.HandleInteraction(context.Background(),
		componentInteraction("i1", "category_select_AB12345678", []string{"food"}, cardMessage()))

	d, ok := store.Get("AB12345678")
	if !ok {
		t.Fatal("category select did not create a draft")
	}
	if d.Category != "food" || d.Date != "2024-01-15" || d.Amount != "120" {
		t.Errorf("draft = %+v", d)
	}
	if d.ImageURL != "https://img.example/r.jpg" {
		t.Errorf("thumbnail not captured: %q", d.ImageURL)
	}
	if d.Status != draft.StatusCollecting {
		t.Errorf("status = %s, want collecting (detail still missing)", d.Status)
	}

	last := sess.responses[len(sess.responses)-1]
	if !strings.Contains(last.Data.Content, "🍜 餐飲") {
		t.Errorf("acknowledgment missing category label: %q", last.Data.Content)
	}
}

func TestDetailAfterCategoryShowsConfirmation(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)

	a.HandleInteraction(context.Background(),
		componentInteraction("i1", "category_select_AB12345678", []string{"food"}, cardMessage()))
	a.HandleInteraction(context.Background(),
		modalInteraction("i2", "details_modal_AB12345678", map[string]string{"detail_content": "lunch"}))

	d, _ := store.Get("AB12345678")
	if d.Status != draft.StatusConfirming {
		t.Fatalf("status = %s, want confirming", d.Status)
	}

	last := sess.responses[len(sess.responses)-1]
	if len(last.Data.Embeds) == 0 || len(last.Data.Components) == 0 {
		t.Error("confirmation prompt missing embed or confirm buttons")
	}
}

func TestInvoiceEditRefreshesCardWithoutDraft(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)

	i := modalInteraction("i1", "edit_invoice_modal_AB12345678", map[string]string{
		"invoice_number": "CD87654321",
		"date":           "20240220",
		"amount":         "300",
	})
	i.Message = cardMessage()
	a.HandleInteraction(context.Background(), i)

	if store.Len() != 0 {
		t.Error("an edit alone must not create a draft")
	}
	if len(sess.messageEdits) != 1 {
		t.Fatalf("card edits = %d, want 1", len(sess.messageEdits))
	}
	embeds := *sess.messageEdits[0].Embeds
	if !strings.Contains(embeds[0].Fields[0].Value, "CD87654321") {
		t.Errorf("refreshed card field = %q", embeds[0].Fields[0].Value)
	}
	if !strings.Contains(embeds[0].Fields[1].Value, "2024-02-20") {
		t.Errorf("date not canonicalized on the card: %q", embeds[0].Fields[1].Value)
	}
}

func TestInvoiceEditRekeysExistingDraft(t *testing.T) {
	a, _, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "u1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}

	i := modalInteraction("i1", "edit_invoice_modal_AB12345678", map[string]string{
		"invoice_number": "CD87654321",
		"date":           "2024-02-20",
		"amount":         "300",
	})
	a.HandleInteraction(context.Background(), i)

	if _, ok := store.Get("AB12345678"); ok {
		t.Error("old key still resolves after edit")
	}
	d, ok := store.Get("CD87654321")
	if !ok {
		t.Fatal("draft not reachable under the new invoice number")
	}
	if d.Detail != "lunch" {
		t.Errorf("detail lost across rekey: %q", d.Detail)
	}
}

func TestConfirmSubmitsAndSettles(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "u1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "u1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}

	a.HandleInteraction(context.Background(),
		componentInteraction("inter-1", "confirm_invoice_AB12345678", nil, nil))

	if len(sess.webhookEdits) == 0 {
		t.Fatal("no final reply")
	}
	final := *sess.webhookEdits[len(sess.webhookEdits)-1].Content
	if !strings.Contains(final, "記帳成功") {
		t.Errorf("final reply = %q", final)
	}
	if _, ok := store.Get("AB12345678"); ok {
		t.Error("settled draft should be deleted")
	}
	// Processing notice plus the public success announcement.
	if len(sess.sentComplex) != 2 {
		t.Errorf("public messages = %d, want 2", len(sess.sentComplex))
	}
}

func TestSyncVerdictNotRepeatedByCallback(t *testing.T) {
	// With callbacks enabled a duplicate still settles synchronously; the
	// retried pipeline callback for the same token must then stay silent
	// on the user side.
	sess := &fakeSession{}
	store := draft.NewStore()
	a := New(sess, store, duplicateGateway(t), true)
	a.SetResolver(resolve.New(NewConversation(sess), notify.NewMemoryMarker(), notify.NewMemoryMarker()))

	if _, err := store.SetDetail("AB12345678", "u1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "u1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}

	a.HandleInteraction(context.Background(),
		componentInteraction("inter-1", "confirm_invoice_AB12345678", nil, nil))

	if len(sess.webhookEdits) != 1 {
		t.Fatalf("final replies = %d, want 1", len(sess.webhookEdits))
	}
	if !strings.Contains(*sess.webhookEdits[0].Content, "記帳警告") {
		t.Errorf("final reply = %q", *sess.webhookEdits[0].Content)
	}

	verdict := resolve.Verdict{
		Outcome:  resolve.OutcomeDuplicate,
		Snapshot: draft.Draft{InvoiceNumber: "AB12345678", UserID: "u1", ChannelID: "chan-1"},
	}
	a.resolver.Deliver(context.Background(), "inter-1", "chan-1", verdict)

	if len(sess.sentText) != 0 {
		t.Errorf("callback rendered the verdict to the user again: %q", sess.sentText)
	}
	if len(sess.webhookEdits) != 1 {
		t.Errorf("final replies after callback = %d, want 1", len(sess.webhookEdits))
	}
	// Processing notice plus one public warning; the callback adds nothing.
	if len(sess.sentComplex) != 2 {
		t.Errorf("public messages = %d, want 2", len(sess.sentComplex))
	}
}

func TestSecondConfirmReportsInFlight(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "u1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "u1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}
	if _, err := store.Confirm("AB12345678", "tok-1", "chan-1", "alice"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	a.HandleInteraction(context.Background(),
		componentInteraction("inter-2", "confirm_invoice_AB12345678", nil, nil))

	last := sess.responses[len(sess.responses)-1]
	if !strings.Contains(last.Data.Content, "已在處理中") {
		t.Errorf("expected in-flight notice, got %q", last.Data.Content)
	}
	d, _ := store.Get("AB12345678")
	if d.CorrelationToken != "tok-1" {
		t.Errorf("second confirm disturbed the submission: %+v", d)
	}
}

func TestCancelKeepsDraftData(t *testing.T) {
	a, sess, store := newTestAdapter(t, nil)
	if _, err := store.SetDetail("AB12345678", "u1", "lunch"); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if _, err := store.SetCategory("AB12345678", "u1", "food", nil); err != nil {
		t.Fatalf("SetCategory failed: %v", err)
	}

	a.HandleInteraction(context.Background(),
		componentInteraction("i1", "cancel_invoice_AB12345678", nil, nil))

	d, ok := store.Get("AB12345678")
	if !ok {
		t.Fatal("cancel removed the draft")
	}
	if d.Status != draft.StatusCollecting || d.Category != "food" || d.Detail != "lunch" {
		t.Errorf("draft after cancel = %+v", d)
	}
	last := sess.responses[len(sess.responses)-1]
	if !strings.Contains(last.Data.Content, "已取消") {
		t.Errorf("cancel notice = %q", last.Data.Content)
	}
}

func TestConversationFindTagged(t *testing.T) {
	sess := &fakeSession{channelMessages: []*discordgo.Message{
		{ID: "m1"},
		{ID: "m2", Interaction: &discordgo.MessageInteraction{ID: "tok-1"}},
	}}
	conv := NewConversation(sess)

	ref, found, err := conv.FindTagged(context.Background(), "chan-1", "tok-1")
	if err != nil {
		t.Fatalf("FindTagged failed: %v", err)
	}
	if !found || ref.MessageID != "m2" {
		t.Errorf("ref = %+v found = %v", ref, found)
	}

	_, found, err = conv.FindTagged(context.Background(), "chan-1", "tok-unknown")
	if err != nil || found {
		t.Errorf("unknown token should not be found (err %v)", err)
	}
}
