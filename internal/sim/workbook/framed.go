package workbook

import (
	"fmt"
	"strconv"
	"strings"
)

const framedMarker = "#v2\n"

// Framed is the versioned format: every page starts with a marker line and
// holds length-prefixed records "<len>:<payload>". Payloads are
// "H|cap|forge|skills", "J|customer|item|ql|mail|price|done" or "D|item".
type Framed struct{}

func (Framed) Name() string { return "framed" }

func frame(payload string) string {
	return strconv.Itoa(len(payload)) + ":" + payload
}

func (Framed) Render(h Header, jobs []Job, pageChars int) (string, []string) {
	header := framedMarker + frame(fmt.Sprintf("H|%s|%d|%s", formatQL(h.SkillCap), int64(h.Forge), formatSkills(h.Skills)))
	records := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if j.Donation {
			records = append(records, frame(fmt.Sprintf("D|%d", int64(j.Item))))
			continue
		}
		records = append(records, frame(fmt.Sprintf("J|%d|%d|%s|%s|%d|%s",
			int64(j.Customer), int64(j.Item), formatQL(j.TargetQL), formatFlag(j.Mail), j.Price, formatFlag(j.Done))))
	}
	return header, paginate(records, framedMarker, "", pageChars)
}

// unframe splits a page body into payloads. A broken length prefix makes the
// rest of the page unreadable; it is returned as a single bad remainder.
func unframe(body string) (payloads []string, rest string) {
	for body != "" {
		colon := strings.IndexByte(body, ':')
		if colon <= 0 {
			return payloads, body
		}
		n, err := strconv.Atoi(body[:colon])
		if err != nil || n < 0 || colon+1+n > len(body) {
			return payloads, body
		}
		payloads = append(payloads, body[colon+1:colon+1+n])
		body = body[colon+1+n:]
	}
	return payloads, ""
}

func (Framed) Parse(header string, pages []string) (Header, []Line, error) {
	if !strings.HasPrefix(header, framedMarker) {
		return Header{}, nil, fmt.Errorf("%w: missing format marker", ErrBadHeader)
	}
	hp, _ := unframe(header[len(framedMarker):])
	if len(hp) != 1 {
		return Header{}, nil, fmt.Errorf("%w: want one header record", ErrBadHeader)
	}
	hf := strings.Split(hp[0], "|")
	for len(hf) < 4 {
		hf = append(hf, "")
	}
	if hf[0] != "H" {
		return Header{}, nil, fmt.Errorf("%w: unexpected record %q", ErrBadHeader, hf[0])
	}
	h, herr := parseHeaderFields(hf[1], hf[2], hf[3])

	var lines []Line
	for _, page := range pages {
		if !strings.HasPrefix(page, framedMarker) {
			lines = append(lines, Line{Raw: page, Err: fmt.Errorf("page without format marker")})
			continue
		}
		payloads, rest := unframe(page[len(framedMarker):])
		for _, p := range payloads {
			f := strings.Split(p, "|")
			switch f[0] {
			case "J":
				lines = append(lines, parseJobFields(p, f[1:]))
			case "D":
				if len(f) != 2 {
					lines = append(lines, Line{Raw: p, Err: fmt.Errorf("donation record has %d fields", len(f)-1)})
					continue
				}
				lines = append(lines, parseDonation(p, f[1]))
			default:
				lines = append(lines, Line{Raw: p, Err: fmt.Errorf("unknown record kind %q", f[0])})
			}
		}
		if rest != "" {
			lines = append(lines, Line{Raw: rest, Err: fmt.Errorf("broken record framing")})
		}
	}
	return h, lines, herr
}
