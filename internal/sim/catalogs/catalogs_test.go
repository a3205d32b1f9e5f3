package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadItemsAndSkills(t *testing.T) {
	dir := t.TempDir()
	items := `
- id: coin.copper
  name: copper coin
  weight_grams: 10
  value: 100
  coin: true
- id: coin.iron
  name: iron coin
  weight_grams: 10
  value: 1
  coin: true
- id: tool.hammer
  name: hammer
  weight_grams: 1500
  value: 40
  skill: 10015
  material: iron
  repairable: true
  tool: true
`
	skills := `
- id: 10015
  name: blacksmithing
`
	if err := os.WriteFile(filepath.Join(dir, "items.yaml"), []byte(items), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skills.yaml"), []byte(skills), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Items.Palette) != 3 || c.Items.DefsDigest == "" || c.Items.PaletteDigest == "" {
		t.Fatalf("unexpected catalog: %+v", c.Items)
	}
	d, ok := c.Items.Def("tool.hammer")
	if !ok || !d.Repairable || d.Skill != 10015 {
		t.Fatalf("hammer def: %+v ok=%v", d, ok)
	}
	coins := c.Items.Coins()
	if len(coins) != 2 || coins[0].ID != "coin.copper" || coins[1].ID != "coin.iron" {
		t.Fatalf("coins should be ordered by value desc: %+v", coins)
	}
	if got := c.Skills.Name(10015); got != "blacksmithing" {
		t.Fatalf("skill name: got %q", got)
	}
	if got := c.Skills.Name(1); got != "skill 1" {
		t.Fatalf("unknown skill name: got %q", got)
	}
}

func TestLoadRejectsDuplicateItems(t *testing.T) {
	dir := t.TempDir()
	items := "- id: a\n  value: 1\n- id: a\n  value: 2\n"
	if err := os.WriteFile(filepath.Join(dir, "items.yaml"), []byte(items), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestShippedCatalogs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Items.Coins()) != 4 {
		t.Fatalf("coins: %d", len(c.Items.Coins()))
	}
	if d, ok := c.Items.Def("tool.hammer"); !ok || d.Skill != 10015 || !d.Tool {
		t.Fatalf("hammer: %+v", d)
	}
	if got := c.Skills.Name(10015); got != "blacksmithing" {
		t.Fatalf("skill name: %q", got)
	}
}
