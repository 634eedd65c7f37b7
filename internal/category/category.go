// Package category holds the fixed spending-category catalog shared by
// both front-ends and the submission payloads.
package category

// Category is one entry of the catalog: a stable code, the zh-TW display
// label shown to users, and a short description for selection menus.
type Category struct {
	Code        string
	Label       string
	Description string
}

var catalog = []Category{
	{Code: "food", Label: "🍜 餐飲", Description: "餐廳、外送、飲料等"},
	{Code: "transport", Label: "🚗 交通", Description: "計程車、公車、加油等"},
	{Code: "daily", Label: "🏠 日用品", Description: "生活用品、清潔用品等"},
	{Code: "shopping", Label: "🛒 購物", Description: "衣服、電子產品等"},
	{Code: "medical", Label: "💊 醫療", Description: "醫院、藥局等"},
	{Code: "education", Label: "📚 教育", Description: "書籍、課程、文具等"},
	{Code: "entertainment", Label: "🎮 娛樂", Description: "電影、遊戲等"},
	{Code: "communication", Label: "📱 通訊", Description: "電話費、網路費等"},
	{Code: "utilities", Label: "⚡ 水電", Description: "水費、電費、瓦斯費等"},
	{Code: "others", Label: "🏦 其他", Description: "無法歸類的項目"},
}

var labels = func() map[string]string {
	m := make(map[string]string, len(catalog))
	for _, c := range catalog {
		m[c.Code] = c.Label
	}
	return m
}()

// All returns the catalog in menu order.
func All() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// Label maps a category code to its display label. Unknown codes pass
// through unchanged so new codes added upstream still render something.
func Label(code string) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return code
}

// Known reports whether code is part of the catalog.
func Known(code string) bool {
	_, ok := labels[code]
	return ok
}
