package surface_test

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
	"github.com/blockscope/blockscope/pkg/surface"
)

func sampleResult() *surface.Result {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &surface.Result{
		Tree: &block.View{
			ID: ".", Name: "proj", Kind: block.KindDirectory, Grade: block.Warning, WarningCount: 1, ComplexCount: 1,
			Children: []*block.View{
				{
					ID: "a.py", Name: "a.py", Kind: block.KindFile, Grade: block.Warning, WarningCount: 1, ComplexCount: 1,
					StartLine: 1, EndLine: 40, LineCount: 40,
					Children: []*block.View{
						{
							ID: "a.py::parse", Name: "parse", Kind: block.KindFunction,
							Grade: block.Warning, OwnGrade: block.Warning, LineCount: 30,
							Notes:   []string{"Complexity 34 (warning)"},
							Summary: "Parses the configuration file and validates every section before returning it.",
						},
						{
							ID: "a.py::load", Name: "load", Kind: block.KindFunction,
							Grade: block.Complex, OwnGrade: block.Complex, LineCount: 8,
							Error: "Server error from fake (HTTP 500)",
						},
					},
				},
			},
		},
		Report: &engine.Report{
			RunID: "run-1", Total: 4, Ready: 3, Failed: 1,
			StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
			Grade: block.Warning, Warnings: 1,
			Failures: []engine.Failure{{NodeID: "a.py::load", Error: "Server error from fake (HTTP 500)"}},
		},
	}
}

func TestTerminalRenderer_BasicOutput(t *testing.T) {
	// Set NO_COLOR to avoid ANSI codes in test comparison
	t.Setenv("NO_COLOR", "1")

	r := &surface.TerminalRenderer{Summaries: true}
	var buf bytes.Buffer

	if err := r.Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Blockscope: proj (grade warning, 1 warnings)",
		"Analyzed: 4 blocks / 3 ready / 1 failed / 0 cached in 1.5s",
		"proj/  [WARNING 1]",
		"  a.py  [WARNING 1]  40 lines",
		"    parse()  [WARNING]  30 lines",
		"Parses the configuration file",
		"analysis failed: Server error from fake (HTTP 500)",
		"Hotspots:",
		"a.py::parse: Complexity 34 (warning)",
		"Failed:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
	if strings.Contains(output, "\033[") {
		t.Error("unexpected ANSI codes with NO_COLOR set")
	}
}

func TestTerminalRenderer_MaxDepth(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	r := &surface.TerminalRenderer{MaxDepth: 2}
	var buf bytes.Buffer
	result := sampleResult()
	result.Report = nil
	if err := r.Render(&buf, result); err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "parse()") {
		t.Error("functions should be hidden below MaxDepth")
	}
	if !strings.Contains(output, "... 2 more") {
		t.Errorf("expected elided children marker\n%s", output)
	}
	if strings.Contains(output, "Analyzed:") {
		t.Error("no run line without a report")
	}
}

func TestTerminalRenderer_ColorRespected(t *testing.T) {
	// Without NO_COLOR, output should have ANSI codes
	os.Unsetenv("NO_COLOR")

	r := &surface.TerminalRenderer{}
	var buf bytes.Buffer

	if err := r.Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(buf.String(), "\033[") {
		t.Error("expected ANSI escape codes when NO_COLOR is not set")
	}
}

func TestMarkdownRenderer(t *testing.T) {
	var buf bytes.Buffer
	if err := (&surface.MarkdownRenderer{}).Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{
		"## Blockscope: :red_circle: proj",
		"Overall grade **warning**: 1 high-risk and 1 complex blocks.",
		"| Failed | 1 |",
		"- :red_circle: `a.py::parse`: Complexity 34 (warning)",
		"- `a.py::load`: Server error from fake (HTTP 500)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("markdown missing %q\n%s", want, output)
		}
	}
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	if err := (&surface.JSONRenderer{}).Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	var decoded struct {
		Tree struct {
			Grade    string `json:"grade"`
			Children []struct {
				ID string `json:"id"`
			} `json:"children"`
		} `json:"tree"`
		Report struct {
			RunID string `json:"run_id"`
		} `json:"report"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Tree.Grade != "warning" || len(decoded.Tree.Children) != 1 || decoded.Report.RunID != "run-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"text", false},
		{"json", false},
		{"markdown", false},
		{"html", true},
	}
	for _, tc := range tests {
		_, err := surface.ForFormat(tc.format)
		if (err != nil) != tc.wantErr {
			t.Errorf("ForFormat(%q) err = %v, wantErr %v", tc.format, err, tc.wantErr)
		}
	}
}
