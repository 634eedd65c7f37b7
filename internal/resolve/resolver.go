// Package resolve delivers asynchronous pipeline verdicts back to the
// conversation that originated them. The correlation token may be stale
// (message deleted, window exceeded, never supplied); the resolver always
// degrades to a fresh mention rather than losing the result.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/notify"
)

// Outcome is the terminal result of one submission.
type Outcome string

const (
	OutcomeSaved     Outcome = "saved"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Verdict carries the outcome plus the draft fields as they were at
// confirmation time. Snapshot, not a store lookup: the draft may already
// be gone when the callback lands.
type Verdict struct {
	Outcome  Outcome
	Snapshot draft.Draft
	// RawPayload is the callback body as received, embedded in the
	// admin-facing diagnostics of a failed verdict.
	RawPayload json.RawMessage
}

// MessageRef points at a platform message the resolver may rewrite.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Conversation is the per-platform rendering surface. Implementations that
// cannot look messages up (the one-to-one platform) report not-found from
// FindTagged and the resolver falls through to Notify.
type Conversation interface {
	// FindTagged scans a bounded recent-message window for the message
	// tagged with the correlation token.
	FindTagged(ctx context.Context, channelID, token string) (MessageRef, bool, error)
	// Replace rewrites the found message with the final verdict text,
	// stripping any interactive controls it held.
	Replace(ctx context.Context, ref MessageRef, text string) error
	// Notify posts a fresh, user-mentioning message.
	Notify(ctx context.Context, channelID, userID, text string) error
	// Announce posts the public, richly formatted ledger-style notice.
	Announce(ctx context.Context, channelID string, v Verdict) error
}

// Resolver routes verdicts to a Conversation with at-most-once semantics
// per correlation token.
type Resolver struct {
	conv      Conversation
	delivered notify.Marker
	announced notify.Marker
}

func New(conv Conversation, delivered, announced notify.Marker) *Resolver {
	return &Resolver{conv: conv, delivered: delivered, announced: announced}
}

// Deliver renders v into the conversation identified by channelID. Token
// may be empty; delivery still happens, only without edit-in-place and
// without retry deduplication.
func (r *Resolver) Deliver(ctx context.Context, token, channelID string, v Verdict) {
	if token == "" || r.delivered.FirstDelivery(ctx, "user:"+token) {
		r.deliverToUser(ctx, token, channelID, v)
	}

	r.AnnouncePublic(ctx, token, channelID, v)
}

// MarkDelivered claims the per-user delivery slot for token without
// rendering anything. Synchronous settle paths call it after showing the
// outcome themselves, so a later callback carrying the same token does not
// show it again.
func (r *Resolver) MarkDelivered(ctx context.Context, token string) {
	if token == "" {
		return
	}
	r.delivered.FirstDelivery(ctx, "user:"+token)
}

// AnnouncePublic posts the public ledger notice for saved and duplicate
// verdicts, at most once per correlation token even when the synchronous
// result path and a retried callback both report the same outcome.
func (r *Resolver) AnnouncePublic(ctx context.Context, token, channelID string, v Verdict) {
	if v.Outcome != OutcomeSaved && v.Outcome != OutcomeDuplicate {
		return
	}
	key := "public:" + token
	if token == "" {
		key = "public:" + channelID + ":" + v.Snapshot.InvoiceNumber
	}
	if !r.announced.FirstDelivery(ctx, key) {
		return
	}
	if err := r.conv.Announce(ctx, channelID, v); err != nil {
		log.Printf("resolve: public notice failed: %v", err)
	}
}

func (r *Resolver) deliverToUser(ctx context.Context, token, channelID string, v Verdict) {
	text := UserText(v)

	if token != "" {
		ref, found, err := r.conv.FindTagged(ctx, channelID, token)
		if err != nil {
			log.Printf("resolve: message lookup failed, using fallback: %v", err)
			found = false
		}
		if found {
			err := r.conv.Replace(ctx, ref, text)
			if err == nil {
				return
			}
			log.Printf("resolve: message edit failed, using fallback: %v", err)
		}
	}

	// Fresh mention only for non-success: the public announcement already
	// covers the happy path and a second success message is just noise.
	if v.Outcome == OutcomeSaved {
		return
	}
	if err := r.conv.Notify(ctx, channelID, v.Snapshot.UserID, text); err != nil {
		log.Printf("resolve: fallback notify failed: %v", err)
	}
}

// UserText renders the private acknowledgment for a verdict.
func UserText(v Verdict) string {
	s := v.Snapshot
	switch v.Outcome {
	case OutcomeSaved:
		return fmt.Sprintf(`✅ 記帳成功！
📄 發票號碼：%s
📅 日期：%s
💰 金額：NT$ %s
🏷️ 分類：%s
📝 明細：%s

謝謝您使用發票記帳機器人！`,
			orDefault(s.InvoiceNumber, "未提供"),
			orDefault(s.Date, "未提供"),
			orDefault(s.Amount, "未提供"),
			orDefault(category.Label(s.Category), "未分類"),
			orDefault(s.Detail, "無明細"))
	case OutcomeDuplicate:
		return fmt.Sprintf("⚠️ 記帳警告：發票號碼 %s 可能已經記錄過了！請檢查是否重複記帳。如果您確定這不是重複記帳，請聯絡管理員。",
			orDefault(s.InvoiceNumber, "N/A"))
	default:
		who := s.Username
		if who == "" {
			who = s.UserID
		}
		return fmt.Sprintf(`❌ 處理記帳結果時發生問題。
請聯絡管理員，並提供以下資訊以供排查：
發票號碼: %s
使用者: %s
收到的原始資料:
`+"```json\n%s\n```",
			orDefault(s.InvoiceNumber, "N/A"), who, string(v.RawPayload))
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
