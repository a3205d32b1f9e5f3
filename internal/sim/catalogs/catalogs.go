package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"barterforge.ai/internal/sim/model"
)

type Catalogs struct {
	Items  ItemCatalog
	Skills SkillCatalog
}

type ItemCatalog struct {
	Palette       []model.TemplateID
	Defs          map[model.TemplateID]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID          model.TemplateID `yaml:"id"`
	Name        string           `yaml:"name"`
	WeightGrams int              `yaml:"weight_grams"`
	Value       int64            `yaml:"value"`
	Skill       model.SkillID    `yaml:"skill,omitempty"`
	Material    string           `yaml:"material,omitempty"`
	Coin        bool             `yaml:"coin,omitempty"`
	NoTrade     bool             `yaml:"no_trade,omitempty"`
	Repairable  bool             `yaml:"repairable,omitempty"`
	Royal       bool             `yaml:"royal,omitempty"`
	Tool        bool             `yaml:"tool,omitempty"`
	Hollow      bool             `yaml:"hollow,omitempty"`
}

type SkillCatalog struct {
	ByID   map[model.SkillID]SkillDef
	Order  []model.SkillID
	Digest string
}

type SkillDef struct {
	ID   model.SkillID `yaml:"id"`
	Name string        `yaml:"name"`
}

func (c ItemCatalog) Def(id model.TemplateID) (ItemDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

// Coins returns the coin templates ordered by descending value.
func (c ItemCatalog) Coins() []ItemDef {
	var out []ItemDef
	for _, id := range c.Palette {
		if d := c.Defs[id]; d.Coin && d.Value > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func (c SkillCatalog) Name(id model.SkillID) string {
	if d, ok := c.ByID[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("skill %d", id)
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.yaml"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadSkills(filepath.Join(configDir, "skills.yaml"), &c.Skills); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.yaml: %w", err)
	}
	return out.set(defs)
}

// NewItemCatalog builds a catalog from in-memory definitions.
func NewItemCatalog(defs []ItemDef) (ItemCatalog, error) {
	var c ItemCatalog
	err := c.set(defs)
	return c, err
}

func (c *ItemCatalog) set(defs []ItemDef) error {
	c.Defs = map[model.TemplateID]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.yaml: empty id")
		}
		if _, dup := c.Defs[d.ID]; dup {
			return fmt.Errorf("items.yaml: duplicate id %q", d.ID)
		}
		if d.WeightGrams < 0 || d.Value < 0 {
			return fmt.Errorf("items.yaml: %s: negative weight or value", d.ID)
		}
		c.Defs[d.ID] = d
	}

	ids := make([]model.TemplateID, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	c.Palette = ids
	palJSON, _ := json.Marshal(ids)
	c.PaletteDigest = sha256Hex(palJSON)
	if c.DefsDigest == "" {
		defsJSON, _ := json.Marshal(defs)
		c.DefsDigest = sha256Hex(defsJSON)
	}
	return nil
}

func loadSkills(path string, out *SkillCatalog) error {
	out.ByID = map[model.SkillID]SkillDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Skill names are cosmetic; numeric ids still work without the file.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []SkillDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("skills.yaml: %w", err)
	}
	for _, d := range defs {
		if d.ID <= 0 {
			return fmt.Errorf("skills.yaml: invalid id %d", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}
