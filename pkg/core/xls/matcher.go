package xls

import (
	"regexp"
	"strings"
)

// =============================================================================
// STATEMENT MATCHER - sheet name and heading phrases per statement type
// =============================================================================

// StatementKind is one of the three statements extracted from a workbook.
type StatementKind int

const (
	KindUnknown StatementKind = iota
	KindBalanceSheet
	KindIncomeStatement
	KindCashFlow
)

func (k StatementKind) String() string {
	switch k {
	case KindBalanceSheet:
		return "balance_sheet"
	case KindIncomeStatement:
		return "income_statement"
	case KindCashFlow:
		return "cash_flow"
	default:
		return "unknown"
	}
}

// kinds in the order ties are broken
var statementKinds = []StatementKind{KindBalanceSheet, KindIncomeStatement, KindCashFlow}

// statementRule describes one statement: exact sheet titles, heading phrases
// and phrases that veto a heading for this statement only.
type statementRule struct {
	names    []string
	patterns []*regexp.Regexp
	avoids   []*regexp.Regexp
}

// StatementMatcher identifies statement sheets by name or heading text.
type StatementMatcher struct {
	rules  map[StatementKind]statementRule
	avoids []*regexp.Regexp // veto every statement
}

// NewStatementMatcher creates a matcher with the archive's usual statement titles.
func NewStatementMatcher() *StatementMatcher {
	return &StatementMatcher{
		rules: map[StatementKind]statementRule{
			KindBalanceSheet: {
				names: []string{
					"balance sheet", "balance sheets",
					"consolidated balance sheet", "consolidated balance sheets",
					"condensed consolidated balance sheets",
					"statement of financial position", "statements of financial position",
					"consolidated statements of financial position",
				},
				patterns: compile(
					`(?i)balance\s+sheets?`,
					`(?i)statements?\s+of\s+financial\s+(position|condition)`,
				),
			},
			KindIncomeStatement: {
				names: []string{
					"income statement", "income statements",
					"statement of income", "statements of income",
					"consolidated statements of income",
					"statement of operations", "statements of operations",
					"consolidated statements of operations",
					"condensed consolidated statements of operations",
					"statements of earnings", "consolidated statements of earnings",
				},
				patterns: compile(
					`(?i)statements?\s+of\s+(consolidated\s+)?operations`,
					`(?i)statements?\s+of\s+(consolidated\s+)?income`,
					`(?i)statements?\s+of\s+earnings`,
					`(?i)income\s+statements?`,
				),
				// a standalone "statements of comprehensive income"; combined
				// headings ("operations and comprehensive income") still match
				avoids: compile(
					`(?i)statements?\s+of\s+(consolidated\s+)?comprehensive\s+(income|loss|earnings)`,
				),
			},
			KindCashFlow: {
				names: []string{
					"cash flow", "cash flows", "cash flow statement",
					"statement of cash flows", "statements of cash flows",
					"consolidated statements of cash flows",
					"condensed consolidated statements of cash flows",
				},
				patterns: compile(
					`(?i)statements?\s+of\s+cash\s+flows?`,
					`(?i)cash\s+flows?\s+statements?`,
					`(?i)^\s*cash\s+flows?\b`,
				),
			},
		},
		avoids: compile(
			`(?i)parenthetical`,
			`(?i)parent\s+company`,
			`(?i)registrant\s+only`,
			`(?i)schedule\s+i\b`,
		),
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// MatchName returns the statement whose title equals name, ignoring case.
func (m *StatementMatcher) MatchName(name string) StatementKind {
	if anyMatch(m.avoids, name) {
		return KindUnknown
	}
	n := strings.ToLower(strings.Join(strings.Fields(name), " "))
	for _, kind := range statementKinds {
		for _, candidate := range m.rules[kind].names {
			if n == candidate {
				return kind
			}
		}
	}
	return KindUnknown
}

// MatchHeading returns the statement a heading line announces.
func (m *StatementMatcher) MatchHeading(text string) StatementKind {
	if anyMatch(m.avoids, text) {
		return KindUnknown
	}
	for _, kind := range statementKinds {
		rule := m.rules[kind]
		if anyMatch(rule.patterns, text) && !anyMatch(rule.avoids, text) {
			return kind
		}
	}
	return KindUnknown
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// =============================================================================
// ROW ANALYSIS - section headers that carry no value
// =============================================================================

var headerRow = compile(
	`(?i)^assets\s*:?\s*$`,
	`(?i)^liabilities\s*:?\s*$`,
	`(?i)^(stockholders'?|shareholders'?)\s+equity\s*:?\s*$`,
	`(?i)^current\s+assets\s*:?\s*$`,
	`(?i)^current\s+liabilities\s*:?\s*$`,
	`(?i)^revenues?\s*:?\s*$`,
	`(?i)^(operating\s+)?expenses?\s*:?\s*$`,
	`(?i)^operating\s+activities\s*:?\s*$`,
	`(?i)^investing\s+activities\s*:?\s*$`,
	`(?i)^financing\s+activities\s*:?\s*$`,
)

func isHeaderLabel(label string) bool {
	label = strings.TrimSpace(label)
	if strings.HasSuffix(label, ":") {
		return true
	}
	return anyMatch(headerRow, label)
}
