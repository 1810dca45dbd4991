package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edgar_facts/pkg/core/batch"
)

func sampleSummary() batch.Summary {
	start := time.Date(2013, 4, 24, 12, 0, 0, 0, time.UTC)
	return batch.Summary{
		RunID:     "4f1c9a",
		Input:     10,
		Processed: 9,
		Persisted: 5,
		Replaced:  1,
		Skipped:   3,
		Rejected:  1,
		Reasons: map[string]int{
			batch.ReasonNotFound:   2,
			batch.ReasonBadXML:     1,
			"rejected:HasFormType": 1,
		},
		Sources:  map[string]int{"XBRL": 4, "XLS": 1},
		Quality:  batch.Quality{MissingLabels: 7, MissingContexts: 2, XBRLFallbacks: 1},
		Started:  start,
		Finished: start.Add(90 * time.Second),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleSummary())

	for _, want := range []string{
		"# Batch 4f1c9a",
		"(1m30s)",
		"| persisted | 5 |",
		"| replaced | 1 |",
		"| XBRL | 4 |",
		"| rejected:HasFormType | 1 |",
		"- missing labels: 7",
		"- spreadsheet fallbacks: 1",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "Aborted") {
		t.Error("clean run should not report an abort")
	}

	// highest count first
	if strings.Index(md, "| not_found |") > strings.Index(md, "| bad_xml |") {
		t.Error("reasons not ordered by count")
	}
}

func TestMarkdownAborted(t *testing.T) {
	sum := sampleSummary()
	sum.Aborted = "ingest: load a|b: source unavailable"
	md := Markdown(sum)
	if !strings.Contains(md, `**Aborted:** ingest: load a\|b: source unavailable`) {
		t.Errorf("abort line not escaped:\n%s", md)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Markdown(sampleSummary()))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<h1>Batch 4f1c9a</h1>", "<table>", "<td>persisted</td>", "<li>missing contexts: 2</li>"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		file string
		want string
	}{
		{"markdown", "out/report.md", "## Counts"},
		{"html", "out/report.html", "<!DOCTYPE html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := Write(path, sampleSummary()); err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("%s missing %q", tt.file, tt.want)
			}
		})
	}
}
