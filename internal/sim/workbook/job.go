package workbook

import "barterforge.ai/internal/sim/model"

// Job is one work order. A donation has no customer and no price; its target
// follows the ledger skill cap.
type Job struct {
	Customer model.PartyID
	Item     model.ItemID
	TargetQL float64
	Mail     bool
	Price    int64
	Done     bool
	Donation bool
}

// Header is the contents page of a ledger.
type Header struct {
	SkillCap float64
	Forge    model.ItemID
	Skills   []model.SkillID
}

func (h Header) clone() Header {
	h.Skills = append([]model.SkillID(nil), h.Skills...)
	return h
}

func (h Header) Services(skill model.SkillID) bool {
	for _, s := range h.Skills {
		if s == skill {
			return true
		}
	}
	return false
}
