package xls

import (
	"errors"
	"testing"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/core/filing/filingtest"
)

func balanceSheet(name string) filingtest.Sheet {
	return filingtest.Sheet{Name: name, Rows: [][]string{
		{"CONDENSED CONSOLIDATED BALANCE SHEETS (USD $) In Millions, except Share data in Thousands"},
		{"", "Mar. 30, 2013", "Sep. 29, 2012"},
		{"Current assets:"},
		{"Cash and cash equivalents", "12,564", "10,746"},
		{"Goodwill", "0", "0"},
		{"Restricted cash [1]", "0", "0"},
		{},
		{"Total assets", "194,743", "176,064"},
		{"Common stock, shares outstanding", "939,208", "939,208"},
	}}
}

func incomeStatement(name string) filingtest.Sheet {
	return filingtest.Sheet{Name: name, Rows: [][]string{
		{"CONDENSED CONSOLIDATED STATEMENTS OF OPERATIONS (USD $)"},
		{"In Millions, except Per Share data"},
		{"Net sales", "43,603", "54,512"},
		{"Other income/(expense), net", "(12)", "148"},
		{"Net income", "9,547", "13,078"},
	}}
}

func cashFlowSheet(name string) filingtest.Sheet {
	return filingtest.Sheet{Name: name, Rows: [][]string{
		{"CONDENSED CONSOLIDATED STATEMENTS OF CASH FLOWS (USD $)"},
		{"In Millions"},
		{"Operating activities:"},
		{"Depreciation and amortization", "3,633", "1,467"},
		{"Cash and cash equivalents, end of the period", "12,564", "10,746"},
	}}
}

func TestClassifySheetsByName(t *testing.T) {
	data := filingtest.Workbook(
		filingtest.Sheet{Name: "Document and Entity Information"},
		balanceSheet("Balance Sheets"),
		incomeStatement("STATEMENTS OF OPERATIONS"),
		cashFlowSheet("Cash Flows"),
	)
	wb, err := OpenWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	cls := ClassifySheets(wb, DefaultHeadingRows)
	want := map[StatementKind]string{
		KindBalanceSheet:    "Balance Sheets",
		KindIncomeStatement: "STATEMENTS OF OPERATIONS",
		KindCashFlow:        "Cash Flows",
	}
	for kind, name := range want {
		if s := cls.Get(kind); s == nil || s.Name != name {
			t.Errorf("%s: got %v, want %s", kind, s, name)
		}
	}
}

func TestGenericSheetClassifiedByHeading(t *testing.T) {
	data := filingtest.Workbook(
		filingtest.Sheet{Name: "Sheet1", Rows: [][]string{{"Document and Entity Information"}, {"Entity Registrant Name", "APPLE INC"}}},
		balanceSheet("Sheet2"),
		incomeStatement("Sheet3"),
		cashFlowSheet("Sheet4"),
	)
	wb, err := OpenWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	cls := ClassifySheets(wb, DefaultHeadingRows)
	if s := cls.Get(KindCashFlow); s == nil || s.Name != "Sheet4" {
		t.Fatalf("cash flow sheet = %v, want Sheet4", s)
	}
	if s := cls.Get(KindBalanceSheet); s == nil || s.Name != "Sheet2" {
		t.Errorf("balance sheet = %v, want Sheet2", s)
	}
	if cls.Len() != 3 {
		t.Errorf("identified %d statements, want 3", cls.Len())
	}
}

func TestParentheticalSheetIsNotAStatement(t *testing.T) {
	data := filingtest.Workbook(
		filingtest.Sheet{Name: "Sheet1", Rows: [][]string{{"CONSOLIDATED BALANCE SHEETS (Parenthetical)"}, {"Preferred stock, par value", "0.01"}}},
		balanceSheet("Sheet2"),
	)
	wb, err := OpenWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	if s := ClassifySheets(wb, DefaultHeadingRows).Get(KindBalanceSheet); s == nil || s.Name != "Sheet2" {
		t.Errorf("balance sheet = %v, want Sheet2", s)
	}
}

func TestCombinedComprehensiveIncomeHeading(t *testing.T) {
	data := filingtest.Workbook(
		filingtest.Sheet{Name: "R1", Rows: [][]string{{"Document and Entity Information"}}},
		balanceSheet("R2"),
		filingtest.Sheet{Name: "R3", Rows: [][]string{{"CONSOLIDATED STATEMENTS OF COMPREHENSIVE INCOME (USD $)"}, {"Net income", "9,547"}}},
		filingtest.Sheet{Name: "R4", Rows: [][]string{
			{"CONSOLIDATED STATEMENTS OF OPERATIONS AND COMPREHENSIVE INCOME (LOSS) (USD $)"},
			{"Net sales", "43,603", "54,512"},
			{"Net income", "9,547", "13,078"},
		}},
	)
	wb, err := OpenWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	cls := ClassifySheets(wb, DefaultHeadingRows)
	if s := cls.Get(KindBalanceSheet); s == nil || s.Name != "R2" {
		t.Errorf("balance sheet = %v, want R2", s)
	}
	if s := cls.Get(KindIncomeStatement); s == nil || s.Name != "R4" {
		t.Errorf("income statement = %v, want R4", s)
	}
}

func TestMatchHeading(t *testing.T) {
	m := NewStatementMatcher()
	tests := []struct {
		text string
		want StatementKind
	}{
		{"CONSOLIDATED STATEMENTS OF OPERATIONS AND COMPREHENSIVE INCOME (LOSS) (USD $)", KindIncomeStatement},
		{"Consolidated Statements of Income and Comprehensive Income", KindIncomeStatement},
		{"CONSOLIDATED STATEMENTS OF COMPREHENSIVE INCOME (USD $)", KindUnknown},
		{"Consolidated Statements of Comprehensive Loss", KindUnknown},
		{"CONSOLIDATED BALANCE SHEETS (Parenthetical)", KindUnknown},
		{"CONDENSED CONSOLIDATED BALANCE SHEETS (USD $)", KindBalanceSheet},
		{"Statements of Cash Flows", KindCashFlow},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := m.MatchHeading(tt.text); got != tt.want {
				t.Errorf("MatchHeading = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractWorkbook(t *testing.T) {
	data := filingtest.Workbook(balanceSheet("Sheet1"), incomeStatement("Sheet2"), cashFlowSheet("Sheet3"))
	facts, err := ExtractWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	if !facts.HasData() {
		t.Fatal("expected data")
	}

	bs := facts.BalanceSheet
	if bs == nil {
		t.Fatal("no balance sheet")
	}
	var labels []string
	for _, it := range bs.Items {
		labels = append(labels, it.Label)
	}
	want := []string{"Cash and cash equivalents", "Restricted cash [1]", "Total assets", "Common stock, shares outstanding"}
	if len(labels) != len(want) {
		t.Fatalf("balance sheet labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, labels[i], want[i])
		}
	}
	if bs.Items[0].Value != 12564 {
		t.Errorf("cash = %v", bs.Items[0].Value)
	}
	if bs.Items[1].Footnote != "[1]" {
		t.Errorf("footnote = %q", bs.Items[1].Footnote)
	}
	if bs.Scale != "millions" {
		t.Errorf("scale = %q", bs.Scale)
	}

	if got := facts.IncomeStatement.Items[1].Value; got != -12 {
		t.Errorf("parenthesized value = %v, want -12", got)
	}
	if facts.SharesOutstanding == nil || *facts.SharesOutstanding != 939208000 {
		t.Errorf("shares outstanding = %v, want 939208000", facts.SharesOutstanding)
	}
}

func TestDetectScale(t *testing.T) {
	tests := []struct {
		heading string
		factor  float64
		shares  float64
	}{
		{"In Millions, except Share data in Thousands", 1e6, 1e3},
		{"In Thousands, except Share data", 1e3, 1},
		{"In Millions, except Per Share data", 1e6, 1e6},
		{"USD ($)", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			sc := detectScale(tt.heading)
			if sc.factor != tt.factor || sc.shareFactor != tt.shares {
				t.Errorf("got factor=%v shares=%v, want %v %v", sc.factor, sc.shareFactor, tt.factor, tt.shares)
			}
		})
	}
}

func TestNoStatementSheets(t *testing.T) {
	data := filingtest.Workbook(filingtest.Sheet{Name: "Notes", Rows: [][]string{{"Summary of significant accounting policies"}}})
	facts, err := ExtractWorkbook(data)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if facts.HasData() {
		t.Error("expected an empty result")
	}
}

func TestCursorsCloneIndependently(t *testing.T) {
	wb, err := OpenWorkbook(filingtest.Workbook(balanceSheet("A"), incomeStatement("B")))
	if err != nil {
		t.Fatal(err)
	}

	sheets := wb.Sheets()
	first, _ := sheets.Next()
	copyCur := sheets.Clone()
	second, _ := sheets.Next()
	again, _ := copyCur.Next()
	if second.Name != "B" || again.Name != "B" {
		t.Errorf("clone should resume at the same sheet, got %s and %s", second.Name, again.Name)
	}
	if _, ok := sheets.Next(); ok {
		t.Error("cursor should be exhausted")
	}

	rows := first.Rows()
	rows.Next()
	fork := rows.Clone()
	a, _ := rows.Next()
	b, _ := fork.Next()
	if a.Index != 2 || b.Index != 2 {
		t.Errorf("forked row cursors diverged: %d vs %d", a.Index, b.Index)
	}
	count := 2
	for {
		if _, ok := rows.Next(); !ok {
			break
		}
		count++
	}
	if count != len(balanceSheet("A").Rows) {
		t.Errorf("read %d rows, want %d", count, len(balanceSheet("A").Rows))
	}
	if rows.Err() != nil {
		t.Error(rows.Err())
	}
}

func TestOpenWorkbookErrors(t *testing.T) {
	legacy := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 600)...)
	if _, err := OpenWorkbook(legacy); !errors.Is(err, ErrLegacyWorkbook) {
		t.Errorf("expected ErrLegacyWorkbook, got %v", err)
	}
	if _, err := OpenWorkbook([]byte("definitely not a zip archive")); !errors.Is(err, ErrNotWorkbook) {
		t.Errorf("expected ErrNotWorkbook, got %v", err)
	}
}

func TestExtractFromSubmission(t *testing.T) {
	wb := filingtest.Workbook(balanceSheet("Sheet1"), cashFlowSheet("Sheet2"))
	sub := filingtest.Submission{
		Accession: "0000950123-09-012345", CIK: "320193", Form: "10-K", Company: "APPLE INC",
		Filed: "20091027", Period: "20090926",
		Documents: []filingtest.Document{
			{Type: "10-K", Filename: "d10k.htm", Body: "<html></html>"},
			{Type: "EXCEL", Filename: "Financial_Report.xlsx", Body: filingtest.UUEncode("Financial_Report.xlsx", wb)},
		},
	}
	content := filing.NewFileContent("x", sub.Bytes())
	facts, err := Extract(content, filing.Scan(content))
	if err != nil {
		t.Fatal(err)
	}
	if facts.BalanceSheet == nil || facts.CashFlow == nil || facts.IncomeStatement != nil {
		t.Errorf("unexpected statements: %+v", facts)
	}

	plain := filing.NewFileContent("y", []byte("no workbook"))
	if _, err := Extract(plain, filing.Scan(plain)); !errors.Is(err, ErrNoWorkbook) {
		t.Errorf("expected ErrNoWorkbook, got %v", err)
	}
}
