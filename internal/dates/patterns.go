package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// datePattern pairs a compiled expression with the boundary context checks the
// original patterns expressed as lookaround. RE2 has no lookbehind/lookahead,
// so candidates are matched plainly and then validated against the text
// surrounding the match.
type datePattern struct {
	re      *regexp.Regexp
	preBan  string
	postBan []*regexp.Regexp
}

const updateKeywords = `(?:更新日期|發布日期|修改日期|上版日期|上架日期|發佈日期|建檔日期|最後更新|資料更新|內容更新|資料檢視|Data update|Review Date)`

var (
	banAfterDigit     = regexp.MustCompile(`^\d`)
	banAfterSepDigit  = regexp.MustCompile(`^[/\-.]\d`)
	banAfterMonthLead = regexp.MustCompile(`^[/.月]\d`)
	banAfterDegree    = regexp.MustCompile(`^°`)
)

// Keyword-tier patterns: a date adjacent to explicit updated/published
// vocabulary, label-before-date and date-before-label, full and year-month
// forms. Separators cover 年/月/日/號 and '/', '-', '.'.
var keywordPatterns = []datePattern{
	{
		re: regexp.MustCompile(updateKeywords + `[:：\s]*(\d{2,4})(?:年|[/\-.])(\d{1,2})(?:月|[/\-.])(\d{1,2})[日號]?`),
	},
	{
		re:      regexp.MustCompile(updateKeywords + `[:：\s]*(\d{2,4})(?:年|[/\-.])(\d{1,2})月?`),
		postBan: []*regexp.Regexp{banAfterSepDigit, banAfterDigit},
	},
	{
		re: regexp.MustCompile(`(\d{2,4})(?:年|[/\-.])(\d{1,2})(?:月|[/\-.])(\d{1,2})[日號]?\s*(?:更新|發布|修改|發佈)`),
	},
	{
		re: regexp.MustCompile(`(\d{2,4})(?:年|[/\-.])(\d{1,2})月?\s*(?:更新|發布|修改|發佈)`),
	},
}

// Generic-tier patterns: bare numeric dates without contextual keywords.
// The preBan sets reject matches embedded in version strings, ratios, ID-like
// digit runs, and arithmetic; they mirror the original guards.
var genericPatterns = []datePattern{
	{
		re:      regexp.MustCompile(`(\d{2,4})(?:年|[/\-.])(\d{1,2})(?:月|[/\-.])(\d{1,2})[日號]?`),
		preBan:  `0123456789+*/=.:;@#$%^&|\`,
		postBan: []*regexp.Regexp{banAfterDigit},
	},
	{
		re:      regexp.MustCompile(`(\d{2,4})(?:年|[/\-.])(0[1-9]|1[0-2]|[1-9])`),
		preBan:  `0123456789~-+*/=.:;@#$%^&|\`,
		postBan: []*regexp.Regexp{banAfterMonthLead, banAfterDigit, banAfterDegree},
	},
	{
		re:     regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})`),
		preBan: `0123456789+*/=.:;@#$%^&|\`,
	},
	{
		re:      regexp.MustCompile(`(\d{1,2})[/\-.]((?:19|20)\d{2})`),
		preBan:  `0123456789+*/=.:;@#$%^&|\`,
		postBan: []*regexp.Regexp{banAfterDigit},
	},
}

// findDates runs one pattern tier over a text fragment and returns the
// normalised dates of every boundary-valid match.
func findDates(patterns []datePattern, text string) []string {
	var out []string
	for _, p := range patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if !boundaryOK(p, text, idx[0], idx[1]) {
				continue
			}
			groups := make([]string, 0, 3)
			for g := 1; g*2 < len(idx); g++ {
				if idx[g*2] < 0 {
					continue
				}
				groups = append(groups, text[idx[g*2]:idx[g*2+1]])
			}
			if date, ok := Normalize(groups); ok {
				out = append(out, date)
			}
		}
	}
	return out
}

func boundaryOK(p datePattern, text string, start, end int) bool {
	if p.preBan != "" && start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if strings.ContainsRune(p.preBan, r) {
			return false
		}
	}
	rest := text[end:]
	for _, ban := range p.postBan {
		if ban.MatchString(rest) {
			return false
		}
	}
	return true
}

// Normalize turns captured numeric groups into a YYYY-MM-DD string. Three
// groups are read as year-month-day unless the trailing group is a 4-digit
// Western year, in which case the order is day-month-year. A year below 200
// is taken as a Minguo year and shifted by 1911; Minguo years before 79
// (Western 1990) are rejected as implausibly old, as are Western years below
// 1990. Two groups follow the same rules with the day defaulting to 01.
func Normalize(groups []string) (string, bool) {
	nums := make([]int, 0, len(groups))
	for _, g := range groups {
		if g == "" || !allDigits(g) {
			continue
		}
		n, err := strconv.Atoi(g)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}

	switch len(nums) {
	case 3:
		a, b, c := nums[0], nums[1], nums[2]
		if c >= 1900 {
			// day-month-year with a trailing Western year
			if c < 1990 {
				return "", false
			}
			return fmt.Sprintf("%04d-%02d-%02d", c, b, a), true
		}
		year, ok := plausibleYear(a)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, b, c), true
	case 2:
		a, b := nums[0], nums[1]
		if b >= 1900 {
			if b < 1990 {
				return "", false
			}
			return fmt.Sprintf("%04d-%02d-01", b, a), true
		}
		year, ok := plausibleYear(a)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-01", year, b), true
	}
	return "", false
}

func plausibleYear(y int) (int, bool) {
	if y < 200 {
		// Minguo calendar: year 79 corresponds to Western 1990.
		if y < 79 {
			return 0, false
		}
		return y + 1911, true
	}
	if y < 1990 {
		return 0, false
	}
	return y, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
