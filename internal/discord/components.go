package discord

import (
	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/category"
)

// Custom-id grammar shared by the menus, buttons and modals. The suffix is
// always the session key (the invoice number the draft was created under).
const (
	prefixCategorySelect   = "category_select_"
	prefixEditInvoice      = "edit_invoice_"
	prefixAddDetails       = "add_details_"
	prefixConfirmInvoice   = "confirm_invoice_"
	prefixCancelInvoice    = "cancel_invoice_"
	prefixEditInvoiceModal = "edit_invoice_modal_"
	prefixDetailsModal     = "details_modal_"
)

func categorySelectRow(invoiceNumber string) discordgo.ActionsRow {
	options := make([]discordgo.SelectMenuOption, 0, len(category.All()))
	for _, c := range category.All() {
		options = append(options, discordgo.SelectMenuOption{
			Label:       c.Label,
			Value:       c.Code,
			Description: c.Description,
		})
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    prefixCategorySelect + invoiceNumber,
				Placeholder: "請選擇消費分類",
				Options:     options,
			},
		},
	}
}

func actionButtonsRow(invoiceNumber string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: prefixEditInvoice + invoiceNumber,
				Label:    "修改發票資訊",
				Style:    discordgo.PrimaryButton,
				Emoji:    &discordgo.ComponentEmoji{Name: "✏️"},
			},
			discordgo.Button{
				CustomID: prefixAddDetails + invoiceNumber,
				Label:    "新增明細內容",
				Style:    discordgo.SuccessButton,
				Emoji:    &discordgo.ComponentEmoji{Name: "📝"},
			},
		},
	}
}

func confirmButtonsRow(invoiceNumber string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: prefixConfirmInvoice + invoiceNumber,
				Label:    "確認並儲存",
				Style:    discordgo.SuccessButton,
			},
			discordgo.Button{
				CustomID: prefixCancelInvoice + invoiceNumber,
				Label:    "取消",
				Style:    discordgo.DangerButton,
			},
		},
	}
}

func shortInput(customID, label, value string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID: customID,
				Label:    label,
				Style:    discordgo.TextInputShort,
				Value:    value,
				Required: true,
			},
		},
	}
}

func editInvoiceModal(invoiceNumber, date, amount string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: prefixEditInvoiceModal + invoiceNumber,
		Title:    "修改發票資訊",
		Components: []discordgo.MessageComponent{
			shortInput("invoice_number", "發票號碼", invoiceNumber),
			shortInput("date", "消費日期", date),
			shortInput("amount", "消費金額", amount),
		},
	}
}

func detailsModal(invoiceNumber string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: prefixDetailsModal + invoiceNumber,
		Title:    "新增明細內容",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "detail_content",
						Label:       "消費明細",
						Placeholder: "請輸入消費明細內容",
						Style:       discordgo.TextInputParagraph,
						Required:    true,
					},
				},
			},
		},
	}
}

// modalValues flattens a modal submission into custom-id keyed values.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, component := range data.Components {
		row, ok := component.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
