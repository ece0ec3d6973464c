package search

import (
	"strconv"
	"strings"
	"time"
)

// timestamps are rendered without zone or fraction, always in UTC.
const queryTimeLayout = "2006-01-02T15:04:05"

// BaseQuery joins the present parameter terms with AND.
// It returns false when no term is present.
func BaseQuery(p Params) (string, bool) {
	terms := make([]string, 0, 3)
	if name := strings.TrimSpace(p.OrganizationName); name != "" {
		terms = append(terms, `organizationLatinName:"`+name+`"`)
	}
	if id, ok := p.orgID(); ok {
		terms = append(terms, "organizationId:"+strconv.FormatInt(id, 10))
	}
	if q := strings.TrimSpace(p.Query); q != "" {
		terms = append(terms, `q:["`+q+`"]`)
	}
	if len(terms) == 0 {
		return "", false
	}
	return strings.Join(terms, " AND "), true
}

// BuildQuery returns the base query bounded by the chunk's issueDate range.
func BuildQuery(p Params, c Chunk) (string, bool) {
	base, ok := BaseQuery(p)
	if !ok {
		return "", false
	}
	return base + " AND issueDate:[" + dt(c.Start) + " TO " + dt(c.End) + "]", true
}

func dt(t time.Time) string {
	return "DT(" + t.UTC().Truncate(time.Second).Format(queryTimeLayout) + ")"
}
