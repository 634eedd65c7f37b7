package discord

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
)

// Decorative image pools for the embeds. One is picked at random per embed.
var (
	invoiceImages = []string{
		"https://i.pinimg.com/736x/17/3c/4d/173c4d76b6e991848463e5bf3e5348dc.jpg",
		"https://i.pinimg.com/736x/f0/8b/c4/f08bc4dfe3291afc310a664cb444a8f8.jpg",
		"https://i.pinimg.com/736x/14/03/da/1403da97a66a72a7674466f9cca2286c.jpg",
		"https://i.pinimg.com/originals/56/a6/14/56a614261d423da1825452363174c685.gif",
		"https://i.pinimg.com/originals/e6/29/49/e6294964e26db35f05e41e25e689b19d.gif",
		"https://i.pinimg.com/736x/0b/1b/8d/0b1b8d1fb3539f5ceaf3e94e06be12f7.jpg",
	}
	successImages = []string{
		"https://i.pinimg.com/736x/6a/8f/87/6a8f87a918c79d11a682b614e47ded38.jpg",
		"https://i.pinimg.com/originals/0c/06/bf/0c06bf9748d1f0fe733af51151a7418f.gif",
		"https://i.pinimg.com/736x/de/52/e6/de52e6bdd91834db7bed06aadaabd94d.jpg",
	}
	warningImages = []string{
		"https://i.pinimg.com/originals/37/31/f0/3731f099e66d6c77440fe9e00ceb0f64.gif",
		"https://i.pinimg.com/736x/17/16/18/1716185bdd04935aff35b9d031e3a752.jpg",
		"https://i.pinimg.com/736x/96/e5/24/96e5243e32fd44789c6e52d55ab1234a.jpg",
		"https://i.pinimg.com/736x/67/8a/b0/678ab039f2cdbc9cfd1758937d75e3fb.jpg",
		"https://i.pinimg.com/736x/72/74/ac/7274acb293f93b175af89081fab03bdc.jpg",
		"https://i.pinimg.com/736x/d7/b6/8e/d7b68ed24b41e4b9a6ceecd1f96b51e7.jpg",
		"https://media1.tenor.com/m/p-wIO64HN5cAAAAC/wake-up.gif",
		"https://media1.tenor.com/m/2Q2vioFDFEoAAAAd/plankton-plankton-meme.gif",
	}
	processingImages = []string{
		"https://i.pinimg.com/originals/81/d3/c8/81d3c893d46be848113b22145b83425b.gif",
		"https://i.pinimg.com/originals/d0/12/ad/d012ad1ad35072d5af468d4ca7325daf.gif",
		"https://i.pinimg.com/736x/6b/f0/02/6bf002f7d30b8ff6aa1fa9c5f3f88b16.jpg",
	}
	confirmationImages = []string{
		"https://i.pinimg.com/originals/1a/01/5f/1a015f044ca3b2ab541f7e246913a246.gif",
		"https://i.pinimg.com/originals/24/89/75/248975e29fb89242e8c485c8eaf412a2.gif",
		"https://i.pinimg.com/736x/1f/f9/08/1ff9086ebb2d0cf4dd08a86983ef6df5.jpg",
		"https://i.pinimg.com/736x/b9/6a/36/b96a362ce139122210b2cea0aa3f0a3d.jpg",
	}
)

func randomImage(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}

// embedColor grades the embed color by spend size.
func embedColor(amount string) int {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, amount)
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0x0099ff
	}
	switch {
	case n >= 5000:
		return 0xff0000
	case n >= 1000:
		return 0xffa500
	case n >= 500:
		return 0xffff00
	case n >= 100:
		return 0x00ff00
	default:
		return 0x0099ff
	}
}

func now() string { return time.Now().Format(time.RFC3339) }

// invoiceEmbed renders the recognition-result card the whole correction
// flow hangs off. Field order matters: the select-menu handler reads the
// values back positionally (number, date, amount).
func invoiceEmbed(invoiceNumber, date, amount, imageURL string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       embedColor(amount),
		Title:       "📝 發票辨識結果",
		Description: "請確認以下資訊並選擇分類",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📄 發票號碼", Value: "`" + invoiceNumber + "`", Inline: true},
			{Name: "📅 消費日期", Value: "`" + date + "`", Inline: true},
			{Name: "💰 消費金額", Value: "`NT$ " + amount + "`", Inline: true},
		},
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: imageURL},
		Image:     &discordgo.MessageEmbedImage{URL: randomImage(invoiceImages)},
		Footer:    &discordgo.MessageEmbedFooter{Text: "發票喵喵 💰"},
		Timestamp: now(),
	}
}

func confirmationEmbed(d draft.Draft) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       0x0099ff,
		Title:       "📝 記帳資料確認",
		Description: "請確認以下資料是否正確。確認後將儲存到記帳系統。",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📄 發票號碼", Value: "`" + d.InvoiceNumber + "`"},
			{Name: "📅 日期", Value: "`" + d.Date + "`"},
			{Name: "💰 金額", Value: "`NT$ " + d.Amount + "`"},
			{Name: "🏷️ 分類", Value: "`" + category.Label(d.Category) + "`"},
			{Name: "📝 明細", Value: "`" + d.Detail + "`"},
			{Name: "👤 使用者", Value: "`" + d.Username + "`"},
		},
		Image:     &discordgo.MessageEmbedImage{URL: randomImage(confirmationImages)},
		Timestamp: now(),
	}
	if d.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: d.ImageURL}
	}
	return embed
}

func processingEmbed(d draft.Draft) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       0x0099ff,
		Title:       "⏳ 資料處理中",
		Description: fmt.Sprintf("<@%s> 的發票資料正在處理中...", d.UserID),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "發票號碼", Value: d.InvoiceNumber, Inline: true},
			{Name: "金額", Value: "NT$ " + d.Amount, Inline: true},
			{Name: "分類", Value: category.Label(d.Category), Inline: true},
		},
		Image:     &discordgo.MessageEmbedImage{URL: randomImage(processingImages)},
		Timestamp: now(),
	}
	if d.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: d.ImageURL}
	}
	return embed
}

func successEmbed(d draft.Draft) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       0x00ff00,
		Title:       "✅ 記帳成功",
		Description: fmt.Sprintf("<@%s> 的發票已成功記錄！", d.UserID),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "發票號碼", Value: fallback(d.InvoiceNumber, "未提供"), Inline: true},
			{Name: "金額", Value: "NT$ " + fallback(d.Amount, "未提供"), Inline: true},
			{Name: "分類", Value: fallback(category.Label(d.Category), "未分類"), Inline: true},
		},
		Image:     &discordgo.MessageEmbedImage{URL: randomImage(successImages)},
		Timestamp: now(),
	}
	if d.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: d.ImageURL}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "圖片連結",
			Value: fmt.Sprintf("[點擊查看圖片](%s)", d.ImageURL),
		})
	}
	return embed
}

func duplicateEmbed(d draft.Draft) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: 0xffa500,
		Title: "⚠️ 重複記帳警告",
		Description: fmt.Sprintf("<@%s>，您嘗試記錄的發票 (號碼: %s) 可能已經存在於系統中。",
			d.UserID, fallback(d.InvoiceNumber, "N/A")),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "提醒", Value: "請檢查您的記帳記錄，避免重複登錄，如為重複記帳，請至雲端刪除此次圖片檔"},
			{Name: "協助", Value: "如果您認為這是一筆新的消費，或需要協助，請聯絡管理員。"},
		},
		Image:     &discordgo.MessageEmbedImage{URL: randomImage(warningImages)},
		Footer:    &discordgo.MessageEmbedFooter{Text: "請確認發票資訊，確保記帳準確。"},
		Timestamp: now(),
	}
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
