package line

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/normalize"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

// handleConfirm runs the submission flow. The one-to-one platform cannot
// edit sent messages, so the synchronous gateway result is always the
// final word here; there is no async-callback branch.
func (a *Adapter) handleConfirm(ctx context.Context, event *linebot.Event, key string) {
	userID := a.userID(event)

	username := ""
	if name, err := a.msg.DisplayName(ctx, userID); err == nil {
		username = name
	} else {
		log.Printf("line: profile lookup failed: %v", err)
	}

	snap, err := a.store.Confirm(key, event.ReplyToken, userID, username)
	switch err {
	case nil:
	case draft.ErrAlreadySubmitting:
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("⏳ 這筆記帳已在處理中，請稍候結果。"))
		return
	case draft.ErrMissingContext:
		a.reply(ctx, event.ReplyToken, linebot.NewTextMessage("找不到這筆記帳資料，請重新選擇分類或添加明細。"))
		return
	default:
		log.Printf("line: confirm %s: %v", key, err)
		return
	}

	processing := fmt.Sprintf("⏳ 資訊儲存中，請稍候...\n📄 發票號碼：%s\n🏷️ 分類：%s",
		snap.InvoiceNumber, category.Label(snap.Category))
	a.reply(ctx, event.ReplyToken, linebot.NewTextMessage(processing))

	result := a.gateway.Submit(ctx, snap)

	var outcome draft.Status
	var verdictOutcome resolve.Outcome
	switch result.Kind {
	case pipeline.Accepted:
		outcome, verdictOutcome = draft.StatusSaved, resolve.OutcomeSaved
	case pipeline.Duplicate:
		outcome, verdictOutcome = draft.StatusDuplicate, resolve.OutcomeDuplicate
	default:
		outcome, verdictOutcome = draft.StatusFailed, resolve.OutcomeFailed
	}

	final, err := a.store.Finish(key, outcome)
	if err != nil {
		log.Printf("line: settle %s skipped: %v", key, err)
		return
	}

	verdict := resolve.Verdict{Outcome: verdictOutcome, Snapshot: final}
	if result.Kind == pipeline.TransportError || result.Kind == pipeline.Rejected {
		raw, _ := json.Marshal(map[string]string{"reason": result.Reason})
		verdict.RawPayload = raw
	}

	text := resolve.UserText(verdict)
	if result.Kind == pipeline.TransportError {
		text = fmt.Sprintf("❌ 記帳失敗：%s\n請稍後再試，或聯絡管理員確認這筆資料是否已儲存。", result.Reason)
	}
	if err := a.msg.Push(ctx, userID, linebot.NewTextMessage(text)); err != nil {
		log.Printf("line: final push failed: %v", err)
	} else if a.resolver != nil {
		a.resolver.MarkDelivered(ctx, final.CorrelationToken)
	}

	if a.resolver != nil {
		a.resolver.AnnouncePublic(ctx, final.CorrelationToken, userID, verdict)
	}

	a.store.Delete(final.SessionKey)
}

// OCRResult is the recognition payload the pipeline posts back for a LINE
// user's receipt.
type OCRResult struct {
	ReplyToken    string `json:"reply_token"`
	UserID        string `json:"user_id"`
	InvoiceNumber string `json:"invoiceNumber"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	ImageURL      string `json:"imageUrl"`
	UseFlex       bool   `json:"use_flex"`
}

// DeliverOCRResult renders a recognition result to the user: a plain text
// reply when a reply token is still usable, otherwise a pushed flex card
// that starts the correction flow.
func (a *Adapter) DeliverOCRResult(ctx context.Context, res OCRResult) error {
	number := normalize.Sanitize(res.InvoiceNumber, "未識別")
	date := normalize.Sanitize(res.Date, "未識別")
	if date != "未識別" {
		date = normalize.Date(date)
	}
	amount := normalize.Sanitize(res.Amount, "未識別")

	if res.ReplyToken != "" && !res.UseFlex {
		text := fmt.Sprintf("📄 發票號碼：%s\n📅 日期：%s\n💰 金額：%s元", number, date, amount)
		return a.msg.Reply(ctx, res.ReplyToken, linebot.NewTextMessage(text))
	}

	if res.UserID == "" {
		if res.ReplyToken != "" {
			return a.msg.Reply(ctx, res.ReplyToken, linebot.NewTextMessage("回覆失敗"))
		}
		return fmt.Errorf("ocr result without reply_token or user_id")
	}

	flex, err := invoiceFlex(number, date, amount)
	if err != nil {
		return err
	}
	return a.msg.Push(ctx, res.UserID, flex)
}
