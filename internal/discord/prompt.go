package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/normalize"
)

// OCRPrompt is the recognition result the pipeline pushes once a receipt
// image has been read. Rendering it seeds the correction flow: the card it
// produces is the message every later interaction hangs off.
type OCRPrompt struct {
	InvoiceNumber string
	Date          string
	Amount        string
	ImageURL      string
	UserID        string
	ChannelID     string
}

// RenderOCRPrompt posts the recognition card with the category menu and
// action buttons into the target channel.
func (a *Adapter) RenderOCRPrompt(_ context.Context, p OCRPrompt) error {
	number := normalize.Sanitize(p.InvoiceNumber, normalize.Unrecognized)
	date := normalize.Sanitize(p.Date, normalize.Unrecognized)
	if date != normalize.Unrecognized {
		date = normalize.Date(date)
	}
	amount := normalize.Sanitize(p.Amount, normalize.Unrecognized)

	content := "發票已辨識完成，請選擇分類或修改資訊："
	if p.UserID != "" {
		content = fmt.Sprintf("<@%s> 您的發票已辨識完成，請選擇分類或修改資訊：", p.UserID)
	}

	_, err := a.session.ChannelMessageSendComplex(p.ChannelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{invoiceEmbed(number, date, amount, p.ImageURL)},
		Components: []discordgo.MessageComponent{
			categorySelectRow(number),
			actionButtonsRow(number),
		},
	})
	return err
}
