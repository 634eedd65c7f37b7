package category

import "testing"

func TestLabelKnownCode(t *testing.T) {
	if got := Label("food"); got != "🍜 餐飲" {
		t.Errorf("Label(food) = %q", got)
	}
}

func TestLabelUnknownCodePassesThrough(t *testing.T) {
	if got := Label("🏷️ 自訂分類"); got != "🏷️ 自訂分類" {
		t.Errorf("Label passthrough = %q", got)
	}
}

func TestKnown(t *testing.T) {
	if !Known("transport") {
		t.Error("transport should be a known code")
	}
	if Known("nope") {
		t.Error("nope should be unknown")
	}
}

func TestCatalogStable(t *testing.T) {
	all := All()
	if len(all) != 10 {
		t.Fatalf("catalog size = %d, want 10", len(all))
	}
	if all[0].Code != "food" {
		t.Errorf("first entry = %q, want food", all[0].Code)
	}
	for _, c := range all {
		if c.Code == "" || c.Label == "" {
			t.Errorf("incomplete entry: %+v", c)
		}
	}
}
