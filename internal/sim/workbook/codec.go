package workbook

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"barterforge.ai/internal/sim/model"
)

// Line is one decoded record. Err is set for malformed records; Ref is true
// when the customer and item of a malformed job could still be read.
type Line struct {
	Raw      string
	Job      Job
	Err      error
	Ref      bool
	Customer model.PartyID
	Item     model.ItemID
}

// Codec renders a ledger into a header page plus overflow pages and reads it
// back.
type Codec interface {
	Name() string
	Render(h Header, jobs []Job, pageChars int) (header string, pages []string)
	Parse(header string, pages []string) (Header, []Line, error)
}

var ErrBadHeader = errors.New("malformed ledger header")

// Detect picks the codec a stored header page was written with.
func Detect(header string) Codec {
	if strings.HasPrefix(header, framedMarker) {
		return Framed{}
	}
	return Legacy{}
}

func CodecFor(name string) Codec {
	if name == (Framed{}).Name() {
		return Framed{}
	}
	return Legacy{}
}

// paginate packs records greedily, joined by sep, prefixed by prefix.
func paginate(records []string, prefix, sep string, pageChars int) []string {
	var pages []string
	var cur strings.Builder
	for _, r := range records {
		add := len(r)
		if cur.Len() > len(prefix) {
			add += len(sep)
		}
		if cur.Len() > 0 && cur.Len()+add > pageChars {
			pages = append(pages, cur.String())
			cur.Reset()
		}
		if cur.Len() == 0 {
			cur.WriteString(prefix)
		} else if cur.Len() > len(prefix) {
			cur.WriteString(sep)
		}
		cur.WriteString(r)
	}
	if cur.Len() > 0 {
		pages = append(pages, cur.String())
	}
	return pages
}

func formatQL(q float64) string {
	s := strconv.FormatFloat(q, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("bad flag %q", s)
}

func parseID(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func parseQL(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("quality %v out of range", v)
	}
	return v, nil
}

func formatSkills(skills []model.SkillID) string {
	parts := make([]string, len(skills))
	for i, s := range skills {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, ",")
}

func parseSkills(s string) ([]model.SkillID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []model.SkillID
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v <= 0 {
			return out, fmt.Errorf("bad skill id %q", f)
		}
		out = append(out, model.SkillID(v))
	}
	return out, nil
}

// parseJobFields decodes customer,item,ql,mail,price,done.
func parseJobFields(raw string, f []string) Line {
	ln := Line{Raw: raw}
	if len(f) >= 2 {
		c, errC := parseID(f[0])
		i, errI := parseID(f[1])
		if errC == nil && errI == nil && c > 0 && i > 0 {
			ln.Ref = true
			ln.Customer, ln.Item = model.PartyID(c), model.ItemID(i)
		}
	}
	if len(f) != 6 {
		ln.Err = fmt.Errorf("job record has %d fields, want 6", len(f))
		return ln
	}
	if !ln.Ref {
		ln.Err = fmt.Errorf("bad customer or item id")
		return ln
	}
	ql, err := parseQL(f[2])
	if err != nil {
		ln.Err = err
		return ln
	}
	mail, err := parseFlag(f[3])
	if err != nil {
		ln.Err = err
		return ln
	}
	price, err := parseID(f[4])
	if err != nil || price < 0 {
		ln.Err = fmt.Errorf("bad price %q", f[4])
		return ln
	}
	done, err := parseFlag(f[5])
	if err != nil {
		ln.Err = err
		return ln
	}
	ln.Job = Job{Customer: ln.Customer, Item: ln.Item, TargetQL: ql, Mail: mail, Price: price, Done: done}
	return ln
}

func parseDonation(raw, field string) Line {
	ln := Line{Raw: raw}
	id, err := parseID(field)
	if err != nil || id <= 0 {
		ln.Err = fmt.Errorf("bad donation item %q", field)
		return ln
	}
	ln.Item = model.ItemID(id)
	ln.Job = Job{Item: ln.Item, Donation: true}
	return ln
}

func parseHeaderFields(capS, forgeS, skillsS string) (Header, error) {
	h := Header{Forge: model.NoForge}
	var errs []error
	if v, err := parseQL(capS); err == nil {
		h.SkillCap = v
	} else {
		errs = append(errs, fmt.Errorf("skill cap: %w", err))
	}
	if v, err := parseID(forgeS); err == nil {
		h.Forge = model.ItemID(v)
	} else {
		errs = append(errs, fmt.Errorf("forge: %w", err))
	}
	skills, err := parseSkills(skillsS)
	h.Skills = skills
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return h, fmt.Errorf("%w: %v", ErrBadHeader, errors.Join(errs...))
	}
	return h, nil
}
