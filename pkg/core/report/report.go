// Package report renders a batch summary as markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"edgar_facts/pkg/core/batch"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders sum as a markdown document with a counts table, the skip
// reasons and the data-quality counters.
func Markdown(sum batch.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Batch %s\n\n", orDash(sum.RunID))
	fmt.Fprintf(&b, "Started %s, finished %s (%s).\n\n",
		sum.Started.UTC().Format("2006-01-02 15:04:05"),
		sum.Finished.UTC().Format("2006-01-02 15:04:05"),
		sum.Duration().Round(time.Millisecond))
	if sum.Aborted != "" {
		fmt.Fprintf(&b, "**Aborted:** %s\n\n", escape(sum.Aborted))
	}

	b.WriteString("## Counts\n\n")
	b.WriteString("| | filings |\n|---|---:|\n")
	rows := []struct {
		name string
		n    int
	}{
		{"input", sum.Input},
		{"resumed past", sum.Resumed},
		{"processed", sum.Processed},
		{"persisted", sum.Persisted},
		{"replaced", sum.Replaced},
		{"rejected", sum.Rejected},
		{"skipped", sum.Skipped},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d |\n", r.name, r.n)
	}

	if len(sum.Sources) > 0 {
		b.WriteString("\n## Sources\n\n| source | filings |\n|---|---:|\n")
		keys := make([]string, 0, len(sum.Sources))
		for k := range sum.Sources {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %d |\n", k, sum.Sources[k])
		}
	}

	if len(sum.Reasons) > 0 {
		b.WriteString("\n## Reasons\n\n| reason | filings |\n|---|---:|\n")
		for _, k := range sum.SortedReasons() {
			fmt.Fprintf(&b, "| %s | %d |\n", escape(k), sum.Reasons[k])
		}
	}

	q := sum.Quality
	b.WriteString("\n## Data quality\n\n")
	fmt.Fprintf(&b, "- missing labels: %d\n", q.MissingLabels)
	fmt.Fprintf(&b, "- missing contexts: %d\n", q.MissingContexts)
	fmt.Fprintf(&b, "- no usable content: %d\n", q.NoUsableContent)
	fmt.Fprintf(&b, "- spreadsheet fallbacks: %d\n", q.XBRLFallbacks)
	return b.String()
}

// RenderHTML converts markdown to an HTML fragment. Tables are enabled.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return "", eris.Wrap(err, "report: render html")
	}
	return buf.String(), nil
}

// Write stores the report at path. A .html or .htm extension gets a rendered
// page, anything else the markdown source.
func Write(path string, sum batch.Summary) error {
	out := Markdown(sum)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		body, err := RenderHTML(out)
		if err != nil {
			return err
		}
		out = page(sum.RunID, body)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eris.Wrapf(err, "report: create %s", dir)
		}
	}
	return eris.Wrapf(os.WriteFile(path, []byte(out), 0644), "report: write %s", path)
}

func page(title, body string) string {
	return "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Batch " +
		title + "</title></head>\n<body>\n" + body + "</body></html>\n"
}

// escape keeps table cells intact; reasons and error text may carry pipes.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
