package workbook

import (
	"fmt"
	"strings"
)

// Legacy is the newline text format of existing saved ledgers:
//
//	header:  skillCap \n forgeId \n skill,skill,...
//	job:     customerId,itemId,targetQL,mailFlag,price,doneFlag
//	donation: itemId
type Legacy struct{}

func (Legacy) Name() string { return "legacy" }

func (Legacy) Render(h Header, jobs []Job, pageChars int) (string, []string) {
	header := formatQL(h.SkillCap) + "\n" + fmt.Sprint(int64(h.Forge)) + "\n" + formatSkills(h.Skills)
	records := make([]string, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, legacyRecord(j))
	}
	return header, paginate(records, "", "\n", pageChars)
}

func legacyRecord(j Job) string {
	if j.Donation {
		return fmt.Sprint(int64(j.Item))
	}
	return fmt.Sprintf("%d,%d,%s,%s,%d,%s",
		int64(j.Customer), int64(j.Item), formatQL(j.TargetQL), formatFlag(j.Mail), j.Price, formatFlag(j.Done))
}

func (Legacy) Parse(header string, pages []string) (Header, []Line, error) {
	hl := strings.Split(strings.ReplaceAll(header, "\r\n", "\n"), "\n")
	for len(hl) < 3 {
		hl = append(hl, "")
	}
	h, herr := parseHeaderFields(hl[0], hl[1], hl[2])

	var lines []Line
	for _, page := range pages {
		for _, raw := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			f := strings.Split(raw, ",")
			if len(f) == 1 {
				lines = append(lines, parseDonation(raw, f[0]))
				continue
			}
			lines = append(lines, parseJobFields(raw, f))
		}
	}
	return h, lines, herr
}
