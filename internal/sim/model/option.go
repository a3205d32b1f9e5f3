package model

import "fmt"

type OptionKind string

const (
	OptionImprove   OptionKind = "IMPROVE"
	OptionMail      OptionKind = "MAIL"
	OptionDonate    OptionKind = "DONATE"
	OptionGiveTools OptionKind = "GIVE_TOOLS"
)

const OptionTemplate TemplateID = "CRAFTER_OPTION"

// Option is a vendor menu token placed in a trade window. Tokens never leave
// the vendor; settlement consumes them.
type Option struct {
	Kind     OptionKind
	Skill    SkillID
	TargetQL float64
}

func (o Option) Label(skillName string) string {
	switch o.Kind {
	case OptionImprove:
		return fmt.Sprintf("Improve %s items to %.0fql", skillName, o.TargetQL)
	case OptionMail:
		return "Mail items back when done"
	case OptionDonate:
		return "Donate items for training"
	case OptionGiveTools:
		return "Give tools to the crafter"
	default:
		return string(o.Kind)
	}
}
