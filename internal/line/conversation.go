package line

import (
	"context"
	"log"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/category"
	"ledgerbot/internal/resolve"
)

// Conversation adapts the one-to-one messenger to the resolver. The
// platform offers no message lookup or edit, so FindTagged always misses
// and delivery goes through the push fallback.
type Conversation struct {
	msg messenger
}

func NewConversation(a *Adapter) *Conversation {
	return &Conversation{msg: a.msg}
}

func (c *Conversation) FindTagged(context.Context, string, string) (resolve.MessageRef, bool, error) {
	return resolve.MessageRef{}, false, nil
}

func (c *Conversation) Replace(context.Context, resolve.MessageRef, string) error {
	// Unreachable: FindTagged never reports a hit.
	return nil
}

func (c *Conversation) Notify(ctx context.Context, channelID, _ string, text string) error {
	// channelID is the user id; a push into the 1:1 chat is as direct as a
	// mention gets here.
	return c.msg.Push(ctx, channelID, linebot.NewTextMessage(text))
}

func (c *Conversation) Announce(ctx context.Context, channelID string, v resolve.Verdict) error {
	s := v.Snapshot
	var flex *linebot.FlexMessage
	var err error
	switch v.Outcome {
	case resolve.OutcomeSaved:
		flex, err = ledgerFlex("✅ 記帳成功",
			"發票號碼："+s.InvoiceNumber,
			"金額：NT$ "+s.Amount,
			"分類："+category.Label(s.Category))
	case resolve.OutcomeDuplicate:
		flex, err = ledgerFlex("⚠️ 重複記帳警告",
			"發票號碼："+s.InvoiceNumber,
			"這張發票可能已經記錄過了",
			"請檢查記帳記錄，避免重複登錄")
	default:
		return nil
	}
	if err != nil {
		log.Printf("line: ledger card: %v", err)
		return err
	}
	return c.msg.Push(ctx, channelID, flex)
}
