package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

func (a *Adapter) handleConfirm(ctx context.Context, i *discordgo.InteractionCreate, key string) error {
	user := interactionUser(i)

	snap, err := a.store.Confirm(key, i.ID, i.ChannelID, user.Username)
	switch err {
	case nil:
	case draft.ErrAlreadySubmitting:
		return a.ephemeral(i, "⏳ 這筆記帳已在處理中，請稍候結果。")
	case draft.ErrMissingContext:
		return a.ephemeral(i, "找不到這筆記帳資料，請重新選擇分類或添加明細。")
	default:
		return err
	}

	// Collapse the confirm prompt into a processing notice immediately;
	// the pipeline round-trip comes after.
	processing := fmt.Sprintf(`⏳ 資訊儲存中，請稍候...
📄 發票號碼：%s
📅 日期：%s
💰 金額：NT$ %s
🏷️ 分類：%s
📝 明細：%s

資料已送出，正在等待系統處理結果...`,
		snap.InvoiceNumber, snap.Date, snap.Amount, category.Label(snap.Category), snap.Detail)

	if err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    processing,
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		log.Printf("discord: processing update failed: %v", err)
	}

	// Public processing notice; best effort.
	if _, err := a.session.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{processingEmbed(snap)},
	}); err != nil {
		log.Printf("discord: public processing notice failed: %v", err)
	}

	result := a.gateway.Submit(ctx, snap)
	a.settle(ctx, i, snap, result)
	return nil
}

// settle applies the synchronous gateway result. With callbacks enabled an
// accepted submission stays in submitting until the pipeline calls back;
// every other outcome is terminal right here.
func (a *Adapter) settle(ctx context.Context, i *discordgo.InteractionCreate, snap draft.Draft, result pipeline.Result) {
	if result.Kind == pipeline.Accepted && a.callbacksEnabled {
		return
	}

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

	final, err := a.store.Finish(snap.SessionKey, outcome)
	if err != nil {
		// A racing callback already settled this draft.
		log.Printf("discord: settle %s skipped: %v", snap.SessionKey, err)
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
	if err := a.editReply(i, text); err != nil {
		log.Printf("discord: final reply failed: %v", err)
	} else if a.resolver != nil {
		// The outcome is on screen; a retried pipeline callback for this
		// token must not render it a second time.
		a.resolver.MarkDelivered(ctx, final.CorrelationToken)
	}

	if a.resolver != nil {
		a.resolver.AnnouncePublic(ctx, final.CorrelationToken, final.ChannelID, verdict)
	}

	a.store.Delete(final.SessionKey)
}

func (a *Adapter) handleCancel(i *discordgo.InteractionCreate, key string) error {
	// Data stays in the store so the user can fix values and reconfirm.
	if _, err := a.store.Cancel(key); err != nil {
		log.Printf("discord: cancel %s: %v", key, err)
	}
	return a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    "❌ 已取消記帳。您可以修改資料後重新選擇分類或添加明細。",
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	})
}
