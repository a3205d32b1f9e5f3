package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := `
pricing:
  skill_base:
    10015: 2.5
  mail_fee: 250
crafter:
  restricted_materials: [wood]
ledger:
  format: framed
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, warns, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if tu.Pricing.SkillBase[10015] != 2.5 || tu.Pricing.MailFee != 250 {
		t.Fatalf("pricing not applied: %+v", tu.Pricing)
	}
	if tu.Ledger.Format != FormatFramed || tu.Ledger.PageChars != 500 || tu.Ledger.MaxOverflowPages != 9 {
		t.Fatalf("ledger: %+v", tu.Ledger)
	}
	if tu.Market.TickRateHz != 5 {
		t.Fatalf("untouched section should keep defaults, got %+v", tu.Market)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := `
pricing:
  skill_base:
    7: -1
  min_price_modifier: 4
revenue:
  king_pct: 80
  upkeep_pct: 40
ledger:
  page_chars: 3
  format: xml
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, warns, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if _, ok := tu.Pricing.SkillBase[7]; ok {
		t.Fatalf("negative skill base should be dropped")
	}
	if tu.Pricing.MinPriceModifier != d.Pricing.MinPriceModifier {
		t.Fatalf("min_price_modifier: got %v", tu.Pricing.MinPriceModifier)
	}
	if tu.Ledger.PageChars != 500 || tu.Ledger.Format != FormatLegacy {
		t.Fatalf("ledger fallback: %+v", tu.Ledger)
	}
	if tu.Revenue != d.Revenue {
		t.Fatalf("revenue fallback: %+v", tu.Revenue)
	}
	joined := strings.Join(warns, "\n")
	for _, want := range []string{"skill_base[7]", "min_price_modifier", "page_chars", "ledger.format", "revenue split"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing warning for %s in %v", want, warns)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestShippedTuningIsClean(t *testing.T) {
	tu, warnings, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	d := Defaults()
	if tu.Market != d.Market || tu.Ledger != d.Ledger || tu.Revenue != d.Revenue {
		t.Fatalf("shipped tuning drifted from defaults: %+v", tu)
	}
	if tu.Pricing.SkillBase[10043] != 1.2 {
		t.Fatalf("skill base: %v", tu.Pricing.SkillBase)
	}
}
