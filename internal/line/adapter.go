package line

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/normalize"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

// ImageArchiver re-hosts receipt bytes somewhere the pipeline can fetch
// them from. Optional; without it the raw bytes still reach the pipeline
// as multipart data.
type ImageArchiver interface {
	Archive(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
}

// pendingInput marks a user whose next free-text message is consumed by
// the correction flow instead of the default responder.
type pendingInput struct {
	key   string
	field normalize.Field // empty means the text is the detail
}

// Adapter owns the one-to-one side of the correction workflow.
type Adapter struct {
	client   *linebot.Client
	msg      messenger
	store    *draft.Store
	gateway  *pipeline.Gateway
	images   ImageArchiver
	resolver *resolve.Resolver

	mu      sync.Mutex
	pending map[string]pendingInput
}

func New(client *linebot.Client, store *draft.Store, gateway *pipeline.Gateway, images ImageArchiver) *Adapter {
	a := &Adapter{
		client:  client,
		store:   store,
		gateway: gateway,
		images:  images,
		pending: make(map[string]pendingInput),
	}
	if client != nil {
		a.msg = botMessenger{client: client}
	}
	return a
}

// SetResolver wires the correlation resolver (two-phase, same as the guild
// adapter: the resolver needs this adapter's Conversation).
func (a *Adapter) SetResolver(r *resolve.Resolver) { a.resolver = r }

// ParseWebhook validates the signature and decodes the platform events.
func (a *Adapter) ParseWebhook(r *http.Request) ([]*linebot.Event, error) {
	return a.client.ParseRequest(r)
}

// HandleEvents processes webhook events sequentially; the platform batches
// at most a handful per request.
func (a *Adapter) HandleEvents(ctx context.Context, events []*linebot.Event) {
	for _, event := range events {
		a.HandleEvent(ctx, event)
	}
}

func (a *Adapter) HandleEvent(ctx context.Context, event *linebot.Event) {
	switch event.Type {
	case linebot.EventTypeMessage:
		switch m := event.Message.(type) {
		case *linebot.TextMessage:
			a.handleText(ctx, event, m.Text)
		case *linebot.ImageMessage:
			a.handleImage(ctx, event, m.ID)
		case *linebot.StickerMessage:
			a.replyDefault(ctx, event.ReplyToken)
		default:
			a.replyDefault(ctx, event.ReplyToken)
		}
	case linebot.EventTypePostback:
		a.handlePostback(ctx, event)
	}
}

func (a *Adapter) userID(event *linebot.Event) string {
	if event.Source == nil {
		return ""
	}
	return event.Source.UserID
}

func (a *Adapter) reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) {
	if err := a.msg.Reply(ctx, replyToken, messages...); err != nil {
		log.Printf("line: reply failed: %v", err)
	}
}

func (a *Adapter) replyDefault(ctx context.Context, replyToken string) {
	a.reply(ctx, replyToken,
		linebot.NewTextMessage("我詞窮了🥹"),
		linebot.NewTextMessage("試試傳送 /cat 或是 /dog 看看吧٩(๑•̀ω•́๑)۶"))
}

func (a *Adapter) handleText(ctx context.Context, event *linebot.Event, text string) {
	userID := a.userID(event)

	a.mu.Lock()
	p, armed := a.pending[userID]
	if armed {
		delete(a.pending, userID)
	}
	a.mu.Unlock()

	if armed {
		a.consumePending(ctx, event, p, text)
		return
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/cat":
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("喵喵/ᐠ .ᆺ. ᐟﾉ"))
	case "/dog":
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("汪汪Ꮚ･ꈊ･Ꮚ"))
	default:
		a.replyDefault(ctx, event.ReplyToken)
	}
}

// consumePending feeds an armed user's free-text message into the draft.
func (a *Adapter) consumePending(ctx context.Context, event *linebot.Event, p pendingInput, text string) {
	userID := a.userID(event)
	text = strings.TrimSpace(text)

	if p.field == "" {
		snap, err := a.store.SetDetail(p.key, userID, text)
		if err != nil {
			log.Printf("line: set detail %s: %v", p.key, err)
			a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("這筆記帳目前無法修改，請稍候。"))
			return
		}
		if snap.Status == draft.StatusConfirming {
			a.sendConfirmation(ctx, event.ReplyToken, snap)
			return
		}
		a.reply(ctx, event.ReplyToken,
			linebot.NewTextMessage("✅ 明細已添加，請選擇消費分類！").WithQuickReplies(a.categoryQuickReplies(p.key)))
		return
	}

	value := text
	if p.field == normalize.FieldDate {
		value = normalize.Date(value)
	}
	snap, err := a.store.EditFields(p.key, []normalize.Edit{{Field: p.field, Value: value}})
	if err != nil {
		log.Printf("line: edit %s of %s: %v", p.field, p.key, err)
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("找不到這筆記帳資料，請重新操作。"))
		return
	}
	if snap.Status == draft.StatusConfirming {
		a.sendConfirmation(ctx, event.ReplyToken, snap)
		return
	}
	a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("✅ 發票資訊已更新！"))
}

func (a *Adapter) handleImage(ctx context.Context, event *linebot.Event, messageID string) {
	userID := a.userID(event)

	content, contentType, _, err := a.msg.Content(ctx, messageID)
	if err != nil {
		log.Printf("line: image download failed: %v", err)
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("很抱歉，圖片處理失敗，請稍後再試。"))
		return
	}
	defer content.Close()

	buf, err := io.ReadAll(content)
	if err != nil {
		log.Printf("line: image read failed: %v", err)
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("很抱歉，圖片處理失敗，請稍後再試。"))
		return
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	imageURL := ""
	if a.images != nil {
		imageURL, err = a.images.Archive(ctx, bytes.NewReader(buf), int64(len(buf)), contentType)
		if err != nil {
			// The pipeline still gets the raw bytes; only the card loses
			// its thumbnail.
			log.Printf("line: image archive failed: %v", err)
			imageURL = ""
		}
	}

	err = a.gateway.UploadImage(ctx, pipeline.ImageUpload{
		Reader:      bytes.NewReader(buf),
		Filename:    "receipt.jpg",
		ContentType: contentType,
		UserID:      userID,
		ReplyToken:  event.ReplyToken,
		Platform:    "LINE",
		ImageURL:    imageURL,
	})
	if err != nil {
		log.Printf("line: image forward failed: %v", err)
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("很抱歉，圖片處理失敗，請稍後再試。"))
		return
	}

	a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("圖片處理中，請稍候... ⏳"))
}

func (a *Adapter) handlePostback(ctx context.Context, event *linebot.Event) {
	if event.Postback == nil {
		return
	}
	pb := normalize.ParsePostback(event.Postback.Data)
	key := pb.InvoiceKey()
	userID := a.userID(event)

	switch pb.Action() {
	case "classify":
		a.reply(ctx, event.ReplyToken,
			linebot.NewTextMessage("請選擇消費分類").WithQuickReplies(a.categoryQuickReplies(key)))

	case "setcat":
		code := pb.Get("cat")
		snap, err := a.store.SetCategory(key, userID, code, pb.Edits())
		if err != nil {
			log.Printf("line: set category %s: %v", key, err)
			a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("這筆記帳目前無法修改，請稍候。"))
			return
		}
		if snap.Status == draft.StatusConfirming {
			a.sendConfirmation(ctx, event.ReplyToken, snap)
			return
		}
		items := linebot.NewQuickReplyItems(
			linebot.NewQuickReplyButton("", &linebot.PostbackAction{
				Label: "輸入明細",
				Data:  "action=detail&inv=" + key,
			}))
		a.reply(ctx, event.ReplyToken,
			linebot.NewTextMessage("✅ 已選擇分類："+category.Label(code)+"，請添加明細內容！").WithQuickReplies(items))

	case "detail":
		a.arm(userID, pendingInput{key: key})
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("請輸入這筆消費的明細內容："))

	case "edit":
		field := normalize.Field(pb.Get("field"))
		switch field {
		case normalize.FieldInvoiceNumber, normalize.FieldDate, normalize.FieldAmount:
			a.arm(userID, pendingInput{key: key, field: field})
			a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("請輸入新的"+fieldPrompt(field)+"："))
		default:
			a.replyDefault(ctx, event.ReplyToken)
		}

	case "confirm":
		a.handleConfirm(ctx, event, key)

	case "cancel":
		if _, err := a.store.Cancel(key); err != nil {
			log.Printf("line: cancel %s: %v", key, err)
		}
		a.reply(ctx, event.ReplyToken,
			linebot.NewTextMessage("❌ 已取消記帳。您可以修改資料後重新選擇分類或添加明細。"))
	}
}

func (a *Adapter) arm(userID string, p pendingInput) {
	a.mu.Lock()
	a.pending[userID] = p
	a.mu.Unlock()
}

func (a *Adapter) categoryQuickReplies(key string) *linebot.QuickReplyItems {
	buttons := make([]*linebot.QuickReplyButton, 0, len(category.All()))
	for _, c := range category.All() {
		buttons = append(buttons, linebot.NewQuickReplyButton("", &linebot.PostbackAction{
			Label: c.Label,
			Data:  "action=setcat&inv=" + key + "&cat=" + c.Code,
		}))
	}
	return linebot.NewQuickReplyItems(buttons...)
}

func (a *Adapter) sendConfirmation(ctx context.Context, replyToken string, snap draft.Draft) {
	flex, err := confirmationFlex(snap)
	if err != nil {
		log.Printf("line: confirmation card: %v", err)
		a.reply(ctx, replyToken, linebot.NewTextMessage("資料已齊全，請傳送「確認」以儲存。"))
		return
	}

	items := linebot.NewQuickReplyItems(
		linebot.NewQuickReplyButton("", &linebot.PostbackAction{
			Label: "修改日期",
			Data:  "action=edit&inv=" + snap.SessionKey + "&field=" + string(normalize.FieldDate),
		}),
		linebot.NewQuickReplyButton("", &linebot.PostbackAction{
			Label: "修改金額",
			Data:  "action=edit&inv=" + snap.SessionKey + "&field=" + string(normalize.FieldAmount),
		}),
		linebot.NewQuickReplyButton("", &linebot.PostbackAction{
			Label: "修改發票號碼",
			Data:  "action=edit&inv=" + snap.SessionKey + "&field=" + string(normalize.FieldInvoiceNumber),
		}))
	a.reply(ctx, replyToken, flex.WithQuickReplies(items))
}

func fieldPrompt(f normalize.Field) string {
	switch f {
	case normalize.FieldInvoiceNumber:
		return "發票號碼"
	case normalize.FieldDate:
		return "消費日期"
	case normalize.FieldAmount:
		return "消費金額"
	default:
		return "內容"
	}
}
