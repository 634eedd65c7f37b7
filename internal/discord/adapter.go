// Package discord adapts guild-platform interactions (slash commands,
// component clicks, modal submissions) into draft engine transitions and
// renders the engine's output back as embeds, menus and modals.
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/normalize"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

// session is the slice of the gateway client the adapter actually uses,
// narrow enough to fake in tests.
type session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// Adapter owns the guild side of the correction workflow.
type Adapter struct {
	session          session
	store            *draft.Store
	gateway          *pipeline.Gateway
	resolver         *resolve.Resolver
	callbacksEnabled bool
}

func New(sess session, store *draft.Store, gateway *pipeline.Gateway, callbacksEnabled bool) *Adapter {
	return &Adapter{
		session:          sess,
		store:            store,
		gateway:          gateway,
		callbacksEnabled: callbacksEnabled,
	}
}

// SetResolver wires the correlation resolver once it exists; the resolver
// itself needs this adapter's Conversation, so construction is two-phase.
func (a *Adapter) SetResolver(r *resolve.Resolver) { a.resolver = r }

// HandleInteraction is the single entry point registered on the gateway
// session. It never lets an error escape: an unhandled failure here would
// tear down the handler goroutine without telling the user anything.
func (a *Adapter) HandleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		err = a.handleSlashCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		err = a.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		err = a.handleModalSubmit(ctx, i)
	default:
		return
	}
	if err != nil {
		log.Printf("discord: interaction %s failed: %v", i.ID, err)
		a.apologize(i)
	}
}

func (a *Adapter) apologize(i *discordgo.InteractionCreate) {
	err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "處理請求時發生錯誤，請稍後再試。",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		// Already responded (deferred or replied); try the edit path.
		content := "處理請求時發生錯誤，請稍後再試。"
		_, _ = a.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (a *Adapter) handleSlashCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	data := i.ApplicationCommandData()
	if data.Name != "ocr" {
		return nil
	}

	// Defer: the pipeline round-trip can exceed the 3s interaction window.
	if err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return err
	}

	attachment := resolveAttachment(data)
	if attachment == nil || !strings.HasPrefix(attachment.ContentType, "image/") {
		return a.editReply(i, "請提供一張圖片！")
	}

	user := interactionUser(i)
	reply, err := a.gateway.SubmitOCR(ctx, pipeline.OCRRequest{
		Username:  user.Username,
		UserID:    user.ID,
		Content:   "Slash Command: /ocr",
		ChannelID: i.ChannelID,
		Attachments: []pipeline.Attachment{{
			URL:         attachment.URL,
			ContentType: attachment.ContentType,
			Name:        attachment.Filename,
			Size:        attachment.Size,
		}},
	})
	if err != nil {
		log.Printf("discord: ocr forward failed: %v", err)
		return a.editReply(i, "處理圖片時發生錯誤，請稍後再試。")
	}
	if reply == "" {
		reply = "圖片已成功處理！請稍候辨識結果(*’ｰ’*)"
	}
	return a.editReply(i, reply)
}

func resolveAttachment(data discordgo.ApplicationCommandInteractionData) *discordgo.MessageAttachment {
	if data.Resolved == nil {
		return nil
	}
	for _, opt := range data.Options {
		if opt.Type != discordgo.ApplicationCommandOptionAttachment {
			continue
		}
		id, ok := opt.Value.(string)
		if !ok {
			continue
		}
		if att, ok := data.Resolved.Attachments[id]; ok {
			return att
		}
	}
	return nil
}

func (a *Adapter) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) error {
	data := i.MessageComponentData()
	id := data.CustomID
	switch {
	case strings.HasPrefix(id, prefixCategorySelect):
		return a.handleCategorySelect(ctx, i, strings.TrimPrefix(id, prefixCategorySelect), data.Values)
	case strings.HasPrefix(id, prefixEditInvoice) && !strings.HasPrefix(id, prefixEditInvoiceModal):
		return a.showEditModal(i)
	case strings.HasPrefix(id, prefixAddDetails):
		return a.showDetailsModal(i, strings.TrimPrefix(id, prefixAddDetails))
	case strings.HasPrefix(id, prefixConfirmInvoice):
		return a.handleConfirm(ctx, i, strings.TrimPrefix(id, prefixConfirmInvoice))
	case strings.HasPrefix(id, prefixCancelInvoice):
		return a.handleCancel(i, strings.TrimPrefix(id, prefixCancelInvoice))
	}
	return nil
}

// summaryEdits reads the scalar fields echoed back by the rendered
// recognition card so the draft picks them up even when the user never
// opened the edit modal.
func summaryEdits(msg *discordgo.Message) []normalize.Edit {
	if msg == nil || len(msg.Embeds) == 0 {
		return nil
	}
	embed := msg.Embeds[0]
	values := make([]string, 0, len(embed.Fields))
	for _, f := range embed.Fields {
		values = append(values, f.Value)
	}
	edits := normalize.SummaryFields(values)
	if embed.Thumbnail != nil && embed.Thumbnail.URL != "" {
		edits = append(edits, normalize.Edit{Field: normalize.FieldImageURL, Value: embed.Thumbnail.URL})
	}
	return edits
}

func (a *Adapter) handleCategorySelect(ctx context.Context, i *discordgo.InteractionCreate, key string, values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("category select without a value")
	}
	selected := values[0]
	user := interactionUser(i)

	snap, err := a.store.SetCategory(key, user.ID, selected, summaryEdits(i.Message))
	if err != nil {
		return err
	}

	if snap.Status == draft.StatusConfirming {
		return a.showConfirmation(ctx, i, key)
	}
	return a.ephemeral(i, fmt.Sprintf("✅ 已選擇分類：%s，請添加明細內容！", category.Label(selected)))
}

func (a *Adapter) showEditModal(i *discordgo.InteractionCreate) error {
	edits := summaryEdits(i.Message)
	var number, date, amount string
	for _, e := range edits {
		switch e.Field {
		case normalize.FieldInvoiceNumber:
			number = e.Value
		case normalize.FieldDate:
			date = e.Value
		case normalize.FieldAmount:
			amount = e.Value
		}
	}
	return a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: editInvoiceModal(number, date, amount),
	})
}

func (a *Adapter) showDetailsModal(i *discordgo.InteractionCreate, key string) error {
	return a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: detailsModal(key),
	})
}

func (a *Adapter) handleModalSubmit(ctx context.Context, i *discordgo.InteractionCreate) error {
	data := i.ModalSubmitData()
	id := data.CustomID
	switch {
	case strings.HasPrefix(id, prefixEditInvoiceModal):
		return a.handleInvoiceEdit(i, strings.TrimPrefix(id, prefixEditInvoiceModal), modalValues(data))
	case strings.HasPrefix(id, prefixDetailsModal):
		return a.handleDetailSubmit(ctx, i, strings.TrimPrefix(id, prefixDetailsModal), modalValues(data))
	}
	return nil
}

func (a *Adapter) handleInvoiceEdit(i *discordgo.InteractionCreate, key string, values map[string]string) error {
	number := strings.TrimSpace(values["invoice_number"])
	date := normalize.Date(values["date"])
	amount := strings.TrimSpace(values["amount"])

	edits := []normalize.Edit{
		{Field: normalize.FieldInvoiceNumber, Value: number},
		{Field: normalize.FieldDate, Value: date},
		{Field: normalize.FieldAmount, Value: amount},
	}

	// No draft yet is fine: the refreshed card below carries the values
	// until a category or detail event creates one.
	if _, err := a.store.EditFields(key, edits); err != nil && err != draft.ErrMissingContext {
		return err
	}

	// Refresh the rendered card so later events echo the new values.
	if i.Message != nil {
		imageURL := ""
		if len(i.Message.Embeds) > 0 && i.Message.Embeds[0].Thumbnail != nil {
			imageURL = i.Message.Embeds[0].Thumbnail.URL
		}
		embeds := []*discordgo.MessageEmbed{invoiceEmbed(number, date, amount, imageURL)}
		_, err := a.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel: i.Message.ChannelID,
			ID:      i.Message.ID,
			Embeds:  &embeds,
		})
		if err != nil {
			log.Printf("discord: card refresh failed: %v", err)
		}
	}

	return a.ephemeral(i, "✅ 發票資訊已更新！")
}

func (a *Adapter) handleDetailSubmit(ctx context.Context, i *discordgo.InteractionCreate, key string, values map[string]string) error {
	detail := strings.TrimSpace(values["detail_content"])
	user := interactionUser(i)

	snap, err := a.store.SetDetail(key, user.ID, detail)
	if err != nil {
		return err
	}

	if snap.Status == draft.StatusConfirming {
		return a.showConfirmation(ctx, i, key)
	}
	return a.ephemeral(i, "✅ 明細已添加，請選擇消費分類！")
}

// showConfirmation renders the confirm/cancel prompt once the draft is
// ready. The username is resolved lazily here, not at draft creation.
func (a *Adapter) showConfirmation(ctx context.Context, i *discordgo.InteractionCreate, key string) error {
	snap, ok := a.store.Get(key)
	if !ok {
		return draft.ErrMissingContext
	}

	if snap.Username == "" {
		username := "未知使用者"
		if u, err := a.session.User(snap.UserID); err == nil {
			username = u.Username
		} else {
			log.Printf("discord: user lookup failed: %v", err)
		}
		_ = a.store.WithLock(key, func(d *draft.Draft) error {
			d.Username = username
			return nil
		})
		snap.Username = username
	}

	return a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{confirmationEmbed(snap)},
			Components: []discordgo.MessageComponent{confirmButtonsRow(key)},
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func (a *Adapter) ephemeral(i *discordgo.InteractionCreate, content string) error {
	return a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (a *Adapter) editReply(i *discordgo.InteractionCreate, content string) error {
	_, err := a.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	return err
}
