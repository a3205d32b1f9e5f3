package tuning

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"barterforge.ai/internal/sim/model"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Market  Market  `yaml:"market"`
	Pricing Pricing `yaml:"pricing"`
	Crafter Crafter `yaml:"crafter"`
	Ledger  Ledger  `yaml:"ledger"`
	Revenue Revenue `yaml:"revenue"`
}

type Market struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	BalanceEveryTicks  int `yaml:"balance_every_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ActMaxPerTick      int `yaml:"act_max_per_tick"`
}

type Pricing struct {
	// SkillBase is the improvement price multiplier per skill id.
	SkillBase        map[model.SkillID]float64 `yaml:"skill_base"`
	DefaultSkillBase float64                   `yaml:"default_skill_base"`

	MoonMetals        []string `yaml:"moon_metals"`
	MoonMetalMult     float64  `yaml:"moon_metal_mult"`
	PreciousMetals    []string `yaml:"precious_metals"`
	PreciousMetalMult float64  `yaml:"precious_metal_mult"`

	MailFee int64 `yaml:"mail_fee"`

	// Shop supply/demand path.
	MinPriceModifier float64 `yaml:"min_price_modifier"`
	MinPrice         int64   `yaml:"min_price"`
	BuyRatio         float64 `yaml:"buy_ratio"`
	DecayEveryTicks  int     `yaml:"decay_every_ticks"`
}

type Crafter struct {
	// MaxSkillCap is the server-wide ceiling on any vendor skill cap and job
	// target quality.
	MaxSkillCap         float64            `yaml:"max_skill_cap"`
	DefaultSkillCap     float64            `yaml:"default_skill_cap"`
	OptionStep          float64            `yaml:"option_step"`
	DonationCeiling     float64            `yaml:"donation_ceiling"`
	RestrictedMaterials []string           `yaml:"restricted_materials"`
	BlockedTemplates    []model.TemplateID `yaml:"blocked_templates"`
	AcceptNewbieItems   bool               `yaml:"accept_newbie_items"`
}

type Ledger struct {
	PageChars        int    `yaml:"page_chars"`
	MaxOverflowPages int    `yaml:"max_overflow_pages"`
	Format           string `yaml:"format"` // "legacy" or "framed"
}

type Revenue struct {
	KingPct   float64 `yaml:"king_pct"`
	UpkeepPct float64 `yaml:"upkeep_pct"`
}

const (
	FormatLegacy = "legacy"
	FormatFramed = "framed"
)

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Market: Market{
			TickRateHz:         5,
			BalanceEveryTicks:  5,
			SnapshotEveryTicks: 3000,
			ActMaxPerTick:      16,
		},
		Pricing: Pricing{
			SkillBase:         map[model.SkillID]float64{},
			DefaultSkillBase:  1.0,
			MoonMetals:        []string{"adamantine", "glimmersteel", "seryll"},
			MoonMetalMult:     3.0,
			PreciousMetals:    []string{"gold", "silver"},
			PreciousMetalMult: 1.5,
			MailFee:           100,
			MinPriceModifier:  0.5,
			MinPrice:          2,
			BuyRatio:          0.5,
			DecayEveryTicks:   600,
		},
		Crafter: Crafter{
			MaxSkillCap:     100,
			DefaultSkillCap: 50,
			OptionStep:      10,
			DonationCeiling: 20,
		},
		Ledger: Ledger{
			PageChars:        500,
			MaxOverflowPages: 9,
			Format:           FormatLegacy,
		},
		Revenue: Revenue{
			KingPct:   10,
			UpkeepPct: 0,
		},
	}
}

// Load reads path over the defaults. Invalid numeric settings are replaced by
// their default and reported in the returned warnings; they never fail the load.
func Load(path string) (Tuning, []string, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, nil, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Defaults(), nil, fmt.Errorf("tuning.yaml: %w", err)
	}
	warnings := t.Normalize()
	return t, warnings, nil
}

// Normalize resets out-of-range values to their defaults.
func (t *Tuning) Normalize() []string {
	d := Defaults()
	var warn []string
	fix := func(name string, bad bool, reset func()) {
		if bad {
			warn = append(warn, fmt.Sprintf("tuning: invalid %s, using default", name))
			reset()
		}
	}

	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}

	fix("market.tick_rate_hz", t.Market.TickRateHz <= 0 || t.Market.TickRateHz > 100, func() { t.Market.TickRateHz = d.Market.TickRateHz })
	fix("market.balance_every_ticks", t.Market.BalanceEveryTicks <= 0, func() { t.Market.BalanceEveryTicks = d.Market.BalanceEveryTicks })
	fix("market.snapshot_every_ticks", t.Market.SnapshotEveryTicks < 0, func() { t.Market.SnapshotEveryTicks = d.Market.SnapshotEveryTicks })
	fix("market.act_max_per_tick", t.Market.ActMaxPerTick <= 0, func() { t.Market.ActMaxPerTick = d.Market.ActMaxPerTick })

	if t.Pricing.SkillBase == nil {
		t.Pricing.SkillBase = map[model.SkillID]float64{}
	}
	skills := make([]model.SkillID, 0, len(t.Pricing.SkillBase))
	for id := range t.Pricing.SkillBase {
		skills = append(skills, id)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i] < skills[j] })
	for _, id := range skills {
		id := id
		fix(fmt.Sprintf("pricing.skill_base[%d]", id), t.Pricing.SkillBase[id] <= 0, func() { delete(t.Pricing.SkillBase, id) })
	}
	fix("pricing.default_skill_base", t.Pricing.DefaultSkillBase <= 0, func() { t.Pricing.DefaultSkillBase = d.Pricing.DefaultSkillBase })
	fix("pricing.moon_metal_mult", t.Pricing.MoonMetalMult <= 0, func() { t.Pricing.MoonMetalMult = d.Pricing.MoonMetalMult })
	fix("pricing.precious_metal_mult", t.Pricing.PreciousMetalMult <= 0, func() { t.Pricing.PreciousMetalMult = d.Pricing.PreciousMetalMult })
	fix("pricing.mail_fee", t.Pricing.MailFee < 0, func() { t.Pricing.MailFee = d.Pricing.MailFee })
	fix("pricing.min_price_modifier", t.Pricing.MinPriceModifier <= 0 || t.Pricing.MinPriceModifier > 1, func() { t.Pricing.MinPriceModifier = d.Pricing.MinPriceModifier })
	fix("pricing.min_price", t.Pricing.MinPrice < 2, func() { t.Pricing.MinPrice = d.Pricing.MinPrice })
	fix("pricing.buy_ratio", t.Pricing.BuyRatio <= 0 || t.Pricing.BuyRatio > 1, func() { t.Pricing.BuyRatio = d.Pricing.BuyRatio })
	fix("pricing.decay_every_ticks", t.Pricing.DecayEveryTicks <= 0, func() { t.Pricing.DecayEveryTicks = d.Pricing.DecayEveryTicks })

	fix("crafter.max_skill_cap", t.Crafter.MaxSkillCap <= 0 || t.Crafter.MaxSkillCap > 100, func() { t.Crafter.MaxSkillCap = d.Crafter.MaxSkillCap })
	fix("crafter.default_skill_cap", t.Crafter.DefaultSkillCap <= 0 || t.Crafter.DefaultSkillCap > t.Crafter.MaxSkillCap, func() {
		t.Crafter.DefaultSkillCap = min(d.Crafter.DefaultSkillCap, t.Crafter.MaxSkillCap)
	})
	fix("crafter.option_step", t.Crafter.OptionStep <= 0 || t.Crafter.OptionStep > 100, func() { t.Crafter.OptionStep = d.Crafter.OptionStep })
	fix("crafter.donation_ceiling", t.Crafter.DonationCeiling <= 0 || t.Crafter.DonationCeiling > t.Crafter.MaxSkillCap, func() {
		t.Crafter.DonationCeiling = min(d.Crafter.DonationCeiling, t.Crafter.MaxSkillCap)
	})

	fix("ledger.page_chars", t.Ledger.PageChars < 64, func() { t.Ledger.PageChars = d.Ledger.PageChars })
	fix("ledger.max_overflow_pages", t.Ledger.MaxOverflowPages <= 0, func() { t.Ledger.MaxOverflowPages = d.Ledger.MaxOverflowPages })
	fix("ledger.format", t.Ledger.Format != FormatLegacy && t.Ledger.Format != FormatFramed, func() { t.Ledger.Format = d.Ledger.Format })

	fix("revenue.king_pct", t.Revenue.KingPct < 0 || t.Revenue.KingPct > 100, func() { t.Revenue.KingPct = d.Revenue.KingPct })
	fix("revenue.upkeep_pct", t.Revenue.UpkeepPct < 0 || t.Revenue.UpkeepPct > 100, func() { t.Revenue.UpkeepPct = d.Revenue.UpkeepPct })
	fix("revenue split", t.Revenue.KingPct+t.Revenue.UpkeepPct > 100, func() { t.Revenue = d.Revenue })

	return warn
}
