package line

import (
	"encoding/json"
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
)

// Flex cards are built from JSON templates and unmarshalled through the
// SDK, the same shape the platform documents them in.

const defaultHeroImage = "https://i.pinimg.com/736x/0b/1b/8d/0b1b8d1fb3539f5ceaf3e94e06be12f7.jpg"

func flexMessage(altText, raw string) (*linebot.FlexMessage, error) {
	container, err := linebot.UnmarshalFlexMessageJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("flex template: %w", err)
	}
	return linebot.NewFlexMessage(altText, container), nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// invoiceFlex is the recognition card with the classify button that starts
// the correction flow.
func invoiceFlex(invoiceNumber, date, amount string) (*linebot.FlexMessage, error) {
	raw := fmt.Sprintf(`{
  "type": "bubble",
  "hero": {
    "type": "image",
    "url": %s,
    "size": "full",
    "aspectRatio": "20:13",
    "aspectMode": "cover"
  },
  "body": {
    "type": "box",
    "layout": "vertical",
    "contents": [
      {"type": "text", "text": "請確認以下資訊", "weight": "bold", "size": "lg", "margin": "md"},
      {"type": "separator", "margin": "md"},
      {"type": "text", "text": %s, "margin": "md"},
      {"type": "text", "text": %s, "margin": "sm"},
      {"type": "text", "text": %s, "margin": "sm"}
    ]
  },
  "footer": {
    "type": "box",
    "layout": "horizontal",
    "contents": [
      {
        "type": "button",
        "style": "primary",
        "action": {"type": "postback", "label": "選擇分類", "data": %s}
      }
    ]
  }
}`,
		jsonString(defaultHeroImage),
		jsonString("發票號碼："+orText(invoiceNumber, "未識別")),
		jsonString("日期："+orText(date, "未識別")),
		jsonString("金額："+orText(amount, "未識別")+" 元"),
		jsonString("action=classify&inv="+invoiceNumber))
	return flexMessage("請確認您的發票資訊", raw)
}

// confirmationFlex summarizes the ready draft with confirm/cancel buttons.
func confirmationFlex(d draft.Draft) (*linebot.FlexMessage, error) {
	raw := fmt.Sprintf(`{
  "type": "bubble",
  "body": {
    "type": "box",
    "layout": "vertical",
    "contents": [
      {"type": "text", "text": "📝 記帳資料確認", "weight": "bold", "size": "lg"},
      {"type": "separator", "margin": "md"},
      {"type": "text", "text": %s, "margin": "md"},
      {"type": "text", "text": %s, "margin": "sm"},
      {"type": "text", "text": %s, "margin": "sm"},
      {"type": "text", "text": %s, "margin": "sm"},
      {"type": "text", "text": %s, "margin": "sm", "wrap": true}
    ]
  },
  "footer": {
    "type": "box",
    "layout": "horizontal",
    "spacing": "sm",
    "contents": [
      {
        "type": "button",
        "style": "primary",
        "action": {"type": "postback", "label": "確認並儲存", "data": %s}
      },
      {
        "type": "button",
        "style": "secondary",
        "action": {"type": "postback", "label": "取消", "data": %s}
      }
    ]
  }
}`,
		jsonString("發票號碼："+d.InvoiceNumber),
		jsonString("日期："+d.Date),
		jsonString("金額：NT$ "+d.Amount),
		jsonString("分類："+category.Label(d.Category)),
		jsonString("明細："+d.Detail),
		jsonString("action=confirm&inv="+d.SessionKey),
		jsonString("action=cancel&inv="+d.SessionKey))
	return flexMessage("請確認記帳資料", raw)
}

// ledgerFlex is the ledger-style notice for saved and duplicate outcomes.
func ledgerFlex(title, line1, line2, line3 string) (*linebot.FlexMessage, error) {
	raw := fmt.Sprintf(`{
  "type": "bubble",
  "body": {
    "type": "box",
    "layout": "vertical",
    "contents": [
      {"type": "text", "text": %s, "weight": "bold", "size": "lg"},
      {"type": "separator", "margin": "md"},
      {"type": "text", "text": %s, "margin": "md"},
      {"type": "text", "text": %s, "margin": "sm"},
      {"type": "text", "text": %s, "margin": "sm", "wrap": true}
    ]
  }
}`,
		jsonString(title), jsonString(line1), jsonString(line2), jsonString(line3))
	return flexMessage(title, raw)
}

func orText(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
