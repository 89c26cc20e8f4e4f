package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
	"github.com/blockscope/blockscope/pkg/engine"
	"github.com/blockscope/blockscope/pkg/provider"
	"github.com/blockscope/blockscope/pkg/scoring"
)

var thresholdSets = []scoring.Thresholds{
	scoring.DefaultThresholds(),
	{
		Complexity: scoring.Tier{Complex: 5, Warning: 10},
		Lines:      scoring.Tier{Complex: 20, Warning: 40},
		Params:     scoring.Tier{Complex: 3, Warning: 6},
	},
}

// fakeProvider counts calls and fails any block whose id contains "bad".
// When gate is non-nil every call blocks until it is closed.
type fakeProvider struct {
	calls atomic.Int32
	gate  chan struct{}
	delay time.Duration
}

func (f *fakeProvider) Key() string { return "fake/model" }

func (f *fakeProvider) Analyze(ctx context.Context, req provider.Request) (provider.Result, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if strings.Contains(req.NodeID, "bad") {
		return provider.Result{}, &provider.Error{Provider: "fake", Message: "Server error from fake (HTTP 500)"}
	}
	return provider.Result{Summary: "summary of " + req.Name, Pseudocode: "do " + req.Name}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustAdd(t *testing.T, tree *block.Tree, parent string, s block.Spec) {
	t.Helper()
	if _, err := tree.Add(parent, s); err != nil {
		t.Fatalf("Add(%q): %v", s.ID, err)
	}
}

// projectTree builds:
//
//	.
//	├── a.py
//	│   ├── a.py::good
//	│   └── a.py::bad
//	└── sub
//	    └── sub/b.py
//	        └── sub/b.py::B
//	            └── sub/b.py::B::run
func projectTree(t *testing.T) *block.Tree {
	t.Helper()
	tree := block.NewTree()
	mustAdd(t, tree, "", block.Spec{ID: ".", Name: "proj", Kind: block.KindDirectory})
	mustAdd(t, tree, ".", block.Spec{ID: "a.py", Name: "a.py", Kind: block.KindFile, Language: "python", Text: "def good(): ...\ndef bad(): ..."})
	mustAdd(t, tree, "a.py", block.Spec{ID: "a.py::good", Name: "good", Kind: block.KindFunction, Text: "def good(): ...", Metrics: &block.Metrics{Complexity: 1, Lines: 1}})
	mustAdd(t, tree, "a.py", block.Spec{ID: "a.py::bad", Name: "bad", Kind: block.KindFunction, Text: "def bad(): ...", Metrics: &block.Metrics{Complexity: 1, Lines: 1}})
	mustAdd(t, tree, ".", block.Spec{ID: "sub", Name: "sub", Kind: block.KindDirectory})
	mustAdd(t, tree, "sub", block.Spec{ID: "sub/b.py", Name: "b.py", Kind: block.KindFile, Language: "python", Text: "class B: ..."})
	mustAdd(t, tree, "sub/b.py", block.Spec{ID: "sub/b.py::B", Name: "B", Kind: block.KindClass, Text: "class B: ..."})
	mustAdd(t, tree, "sub/b.py::B", block.Spec{ID: "sub/b.py::B::run", Name: "run", Kind: block.KindFunction, Text: "def run(self): ...", Metrics: &block.Metrics{Complexity: 1, Lines: 1}})
	return tree
}

func newEngine(t *testing.T, tree *block.Tree, p provider.Provider, cfg engine.Config) *engine.Engine {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.Thresholds == (scoring.Thresholds{}) {
		cfg.Thresholds = scoring.DefaultThresholds()
	}
	cfg.Logger = quietLogger()
	e, err := engine.New(tree, p, nil, cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func waitEntry(t *testing.T, f *engine.Future) analysis.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Future.Wait: %v", err)
	}
	return entry
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tree := projectTree(t)
	p := &fakeProvider{}

	_, err := engine.New(tree, p, nil, engine.Config{Workers: 0, Logger: quietLogger()})
	var cfgErr *engine.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "workers" {
		t.Errorf("err = %v, want ConfigError for workers", err)
	}

	_, err = engine.New(tree, p, analysis.New("other/model"), engine.Config{Workers: 1, Logger: quietLogger()})
	if !errors.As(err, &cfgErr) || cfgErr.Field != "cache" {
		t.Errorf("err = %v, want ConfigError for cache key", err)
	}
}

func TestOrder(t *testing.T) {
	var got []string
	for _, n := range engine.Order(projectTree(t)) {
		got = append(got, n.ID)
	}
	want := []string{
		".",
		"sub", "a.py", // directories before files at equal depth
		"sub/b.py", "a.py::good", "a.py::bad",
		"sub/b.py::B",
		"sub/b.py::B::run",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Order = %v\nwant    %v", got, want)
	}
}

func TestDirectorySummary(t *testing.T) {
	tree := projectTree(t)
	root := tree.Root()
	if got := engine.DirectorySummary(tree.Children(root)); got != "Contains 1 files: a.py; 1 directories: sub" {
		t.Errorf("summary = %q", got)
	}
	if got := engine.DirectorySummary(nil); got != "Empty directory" {
		t.Errorf("summary = %q", got)
	}
}

func TestRequestDirectoryNeverCallsProvider(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	f, err := e.Request(context.Background(), "sub")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	entry := waitEntry(t, f)
	if entry.Status != analysis.StatusReady || entry.Summary != "Contains 1 files: b.py" {
		t.Errorf("entry = %+v", entry)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", p.calls.Load())
	}
}

func TestRequestUnknownNode(t *testing.T) {
	e := newEngine(t, projectTree(t), &fakeProvider{}, engine.Config{})
	if _, err := e.Request(context.Background(), "nope"); !errors.Is(err, engine.ErrUnknownNode) {
		t.Errorf("err = %v, want ErrUnknownNode", err)
	}
}

func TestRequestCachedResolvesImmediately(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	first := waitEntry(t, mustRequest(t, e, "a.py::good"))
	if first.Status != analysis.StatusReady || first.Summary != "summary of good" {
		t.Fatalf("entry = %+v", first)
	}

	f := mustRequest(t, e, "a.py::good")
	select {
	case <-f.Done():
	default:
		t.Fatal("cached request should resolve without waiting")
	}
	if again := waitEntry(t, f); again != first {
		t.Errorf("cached entry = %+v, want %+v", again, first)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls.Load())
	}
}

func TestConcurrentRequestsShareOneCall(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	e := newEngine(t, projectTree(t), p, engine.Config{Workers: 4})

	f1 := mustRequest(t, e, "a.py::good")
	f2 := mustRequest(t, e, "a.py::good")
	close(p.gate)

	e1, e2 := waitEntry(t, f1), waitEntry(t, f2)
	if e1.Status != analysis.StatusReady || e1 != e2 {
		t.Errorf("entries differ: %+v vs %+v", e1, e2)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want exactly 1", p.calls.Load())
	}
}

func TestRequestFailureAndRetry(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	entry := waitEntry(t, mustRequest(t, e, "a.py::bad"))
	if entry.Status != analysis.StatusFailed || entry.Error != "Server error from fake (HTTP 500)" {
		t.Fatalf("entry = %+v, want failed with provider message", entry)
	}

	waitEntry(t, mustRequest(t, e, "a.py::bad"))
	if p.calls.Load() != 2 {
		t.Errorf("a failed block should be retried on request, calls = %d", p.calls.Load())
	}
}

func TestAbandonedWaitDoesNotCancelWork(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	f := mustRequest(t, e, "a.py::good")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}

	close(p.gate)
	if entry := waitEntry(t, f); entry.Status != analysis.StatusReady {
		t.Errorf("abandoned analysis should still complete, got %+v", entry)
	}
	if got, _ := e.Cache().Get("a.py::good"); got.Status != analysis.StatusReady {
		t.Errorf("cache status = %s, want ready", got.Status)
	}
}

func TestPoolTimeoutRecordsFailure(t *testing.T) {
	p := &fakeProvider{delay: 500 * time.Millisecond}
	e := newEngine(t, projectTree(t), p, engine.Config{CallTimeout: 20 * time.Millisecond})

	entry := waitEntry(t, mustRequest(t, e, "a.py::good"))
	if entry.Status != analysis.StatusFailed || !strings.Contains(entry.Error, "timed out") {
		t.Errorf("entry = %+v, want timeout failure", entry)
	}
}

func TestProviderPanicRecordedAsFailure(t *testing.T) {
	p := provider.Func{Name: "fake/model", Fn: func(ctx context.Context, req provider.Request) (provider.Result, error) {
		panic("boom")
	}}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	entry := waitEntry(t, mustRequest(t, e, "a.py::good"))
	if entry.Status != analysis.StatusFailed || !strings.Contains(entry.Error, "boom") {
		t.Errorf("entry = %+v, want recovered panic", entry)
	}
}

func TestRunAllRejectsZeroConcurrency(t *testing.T) {
	e := newEngine(t, projectTree(t), &fakeProvider{}, engine.Config{})
	_, err := e.RunAll(context.Background(), 0, nil)
	var cfgErr *engine.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}

func TestRunAllWorkerCountsAgree(t *testing.T) {
	run := func(workers int) *engine.Report {
		p := &fakeProvider{delay: time.Millisecond}
		e := newEngine(t, projectTree(t), p, engine.Config{})
		report, err := e.RunAll(context.Background(), workers, nil)
		if err != nil {
			t.Fatalf("RunAll(%d): %v", workers, err)
		}
		// Every block except the two directories reaches the provider once.
		if got := p.calls.Load(); got != 6 {
			t.Errorf("RunAll(%d) provider calls = %d, want 6", workers, got)
		}
		return report
	}

	one, four := run(1), run(4)
	for _, r := range []*engine.Report{one, four} {
		if r.Total != 8 || r.Ready != 7 || r.Failed != 1 || r.Skipped != 0 || !r.Complete() {
			t.Errorf("report = %+v", r)
		}
		if r.RunID == "" || r.FinishedAt.Before(r.StartedAt) {
			t.Errorf("report metadata = %+v", r)
		}
	}
	if !reflect.DeepEqual(one.Failures, four.Failures) {
		t.Errorf("failures differ: %v vs %v", one.Failures, four.Failures)
	}
	if one.Failures[0].NodeID != "a.py::bad" {
		t.Errorf("failures = %v", one.Failures)
	}
}

func TestRunAllSkipsCachedAndReportsProgress(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	if _, err := e.RunAll(context.Background(), 2, nil); err != nil {
		t.Fatalf("first RunAll: %v", err)
	}
	calls := p.calls.Load()

	var mu sync.Mutex
	var seen []engine.Progress
	report, err := e.RunAll(context.Background(), 2, func(pr engine.Progress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, pr)
	})
	if err != nil {
		t.Fatalf("second RunAll: %v", err)
	}

	// Only the failed block is retried.
	if got := p.calls.Load() - calls; got != 1 {
		t.Errorf("second run provider calls = %d, want 1", got)
	}
	if report.Skipped != 5 || report.Failed != 1 || report.Ready != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(seen) != report.Total || seen[len(seen)-1].Done != report.Total {
		t.Errorf("progress events = %d, want %d", len(seen), report.Total)
	}
}

func TestRunAllCancelled(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.RunAll(ctx, 2, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report.Complete() {
		t.Error("a cancelled run should not report complete")
	}
}

func TestRunAllCancelledMidRunLeavesNoFailures(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	e := newEngine(t, projectTree(t), p, engine.Config{Workers: 1, QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		report *engine.Report
		err    error
	}
	out := make(chan outcome, 1)
	go func() {
		report, err := e.RunAll(ctx, 1, nil)
		out <- outcome{report, err}
	}()

	// One worker is stuck in the provider and the queue is full, so the
	// remaining blocks are still waiting to be submitted.
	deadline := time.Now().Add(5 * time.Second)
	for p.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("provider never called")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(p.gate)

	var res outcome
	select {
	case res = <-out:
	case <-time.After(5 * time.Second):
		t.Fatal("RunAll did not return after cancel")
	}
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", res.err)
	}
	r := res.report
	if r.Failed != 0 || len(r.Failures) != 0 {
		t.Errorf("failures = %d %v, want none", r.Failed, r.Failures)
	}
	if r.NotRun == 0 {
		t.Errorf("report = %+v, want blocks not run", r)
	}
	if r.Ready+r.Skipped+r.NotRun != r.Total {
		t.Errorf("report = %+v, counts do not add up", r)
	}
	if st := e.Cache().Stats(); st.Failed != 0 || st.Pending != 0 {
		t.Errorf("cache stats = %+v, want no failed or pending entries", st)
	}

	// Blocks that were never run are analyzed by the next run.
	report, err := e.RunAll(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("second RunAll: %v", err)
	}
	if report.NotRun != 0 || !report.Complete() || report.Failed != 1 {
		t.Errorf("second report = %+v", report)
	}
}

func TestRunAllAcceptsLargeConcurrency(t *testing.T) {
	p := &fakeProvider{}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	report, err := e.RunAll(context.Background(), 64, nil)
	if err != nil {
		t.Fatalf("RunAll(64): %v", err)
	}
	if !report.Complete() || report.Concurrency != 64 || report.Ready != 7 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := p.calls.Load(); got != 6 {
		t.Errorf("provider calls = %d, want 6", got)
	}
}

func TestObserverSeesCompletions(t *testing.T) {
	e := newEngine(t, projectTree(t), &fakeProvider{}, engine.Config{})

	var mu sync.Mutex
	var ids []string
	e.Observe(func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, ev.NodeID)
	})
	if _, err := e.RunAll(context.Background(), 3, nil); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(ids)
	want := []string{"a.py", "a.py::bad", "a.py::good", "sub/b.py", "sub/b.py::B", "sub/b.py::B::run"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("observed %v, want %v", ids, want)
	}
}

// scenarioTree builds fileA -> [funcA1 Complex, funcA2 Warning] under th.
func scenarioTree(t *testing.T, th scoring.Thresholds) *block.Tree {
	t.Helper()
	tree := block.NewTree()
	mustAdd(t, tree, "", block.Spec{ID: "fileA", Name: "fileA", Kind: block.KindFile, Text: "..."})
	mustAdd(t, tree, "fileA", block.Spec{ID: "fileA::funcA1", Name: "funcA1", Kind: block.KindFunction, StartLine: 1, Text: "def funcA1(): ...",
		Metrics: &block.Metrics{Complexity: th.Complexity.Complex, Lines: 1}})
	mustAdd(t, tree, "fileA", block.Spec{ID: "fileA::funcA2", Name: "funcA2", Kind: block.KindFunction, StartLine: 3, Text: "def funcA2(): ...",
		Metrics: &block.Metrics{Complexity: th.Complexity.Warning, Lines: 1}})
	return tree
}

func TestOnReplaceScenario(t *testing.T) {
	for i, th := range thresholdSets {
		t.Run(string(rune('A'+i)), func(t *testing.T) {
			p := &fakeProvider{}
			simple := func(n *block.Node, text string) *block.Metrics {
				return &block.Metrics{Complexity: 1, Lines: strings.Count(text, "\n") + 1}
			}
			e := newEngine(t, scenarioTree(t, th), p, engine.Config{Thresholds: th, MetricsFunc: simple})

			view, err := e.View("")
			if err != nil {
				t.Fatalf("View: %v", err)
			}
			if view.Grade != block.Warning || view.WarningCount != 1 {
				t.Fatalf("fileA = %s with %d warnings, want warning with 1", view.Grade, view.WarningCount)
			}

			if _, err := e.RunAll(context.Background(), 2, nil); err != nil {
				t.Fatalf("RunAll: %v", err)
			}
			if err := e.OnReplace("fileA::funcA2", "def funcA2():\n    return 1"); err != nil {
				t.Fatalf("OnReplace: %v", err)
			}

			view, _ = e.View("")
			if view.Grade != block.Complex || view.WarningCount != 0 {
				t.Errorf("after replace fileA = %s with %d warnings, want complex with 0", view.Grade, view.WarningCount)
			}
			if entry, _ := e.Entry("fileA::funcA2"); entry.Status != analysis.StatusAbsent {
				t.Errorf("replaced block status = %s, want absent", entry.Status)
			}
			if entry, _ := e.Entry("fileA::funcA1"); entry.Status != analysis.StatusReady {
				t.Errorf("sibling status = %s, want ready", entry.Status)
			}
			if entry, _ := e.Entry("fileA"); entry.Status != analysis.StatusReady {
				t.Errorf("parent analysis status = %s, want ready", entry.Status)
			}
		})
	}
}

func TestOnReplaceErrors(t *testing.T) {
	e := newEngine(t, projectTree(t), &fakeProvider{}, engine.Config{})
	if err := e.OnReplace("sub", "x"); !errors.Is(err, engine.ErrNotReplaceable) {
		t.Errorf("err = %v, want ErrNotReplaceable", err)
	}
	if err := e.OnReplace("missing", "x"); !errors.Is(err, engine.ErrUnknownNode) {
		t.Errorf("err = %v, want ErrUnknownNode", err)
	}
}

func TestSourceIsACopy(t *testing.T) {
	tree := block.NewTree()
	mustAdd(t, tree, "", block.Spec{ID: ".", Kind: block.KindDirectory})
	mustAdd(t, tree, ".", block.Spec{ID: "m.py", Name: "m.py", Kind: block.KindFile, Language: "python", Path: "m.py"})
	mustAdd(t, tree, "m.py", block.Spec{ID: "m.py::a", Name: "a", Kind: block.KindFunction, Path: "m.py", StartLine: 1, EndLine: 2, Text: "def a():\n    return 1"})
	mustAdd(t, tree, "m.py", block.Spec{ID: "m.py::b", Name: "b", Kind: block.KindFunction, Path: "m.py", StartLine: 3, EndLine: 4, Text: "def b():\n    return 2"})
	e := newEngine(t, tree, &fakeProvider{}, engine.Config{})

	before, err := e.Source("m.py::b")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if err := e.OnReplace("m.py::a", "def a():\n    x = 1\n    y = 2\n    return x + y"); err != nil {
		t.Fatalf("OnReplace: %v", err)
	}
	if before.StartLine != 3 || before.EndLine != 4 {
		t.Errorf("earlier snippet = %d-%d, want 3-4", before.StartLine, before.EndLine)
	}
	after, _ := e.Source("m.py::b")
	if after.StartLine != 5 || after.EndLine != 6 || after.Text != before.Text {
		t.Errorf("snippet = %+v, want b at 5-6", after)
	}

	// Reading spans while blocks are being replaced must not race.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			text := "def a(): pass"
			if i%2 == 0 {
				text = "def a():\n    return 1"
			}
			if err := e.OnReplace("m.py::a", text); err != nil {
				t.Errorf("OnReplace: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			src, err := e.Source("m.py::b")
			if err != nil {
				t.Errorf("Source: %v", err)
				return
			}
			if src.EndLine-src.StartLine != 1 {
				t.Errorf("span %d-%d lost its length", src.StartLine, src.EndLine)
				return
			}
		}
	}()
	wg.Wait()
}

func TestReplaceDuringAnalysisDiscardsStaleResult(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	e := newEngine(t, projectTree(t), p, engine.Config{})

	f := mustRequest(t, e, "a.py::good")
	deadline := time.Now().Add(5 * time.Second)
	for p.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("analysis never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := e.OnReplace("a.py::good", "def good():\n    return 2"); err != nil {
		t.Fatalf("OnReplace: %v", err)
	}
	close(p.gate)

	entry := waitEntry(t, f)
	src, _ := e.Source("a.py::good")
	if entry.Status != analysis.StatusReady || entry.Fingerprint != block.Fingerprint(src.Text) {
		t.Errorf("entry = %+v, want ready for the replaced text", entry)
	}
	if p.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 (stale + fresh)", p.calls.Load())
	}
}

func mustRequest(t *testing.T, e *engine.Engine, id string) *engine.Future {
	t.Helper()
	f, err := e.Request(context.Background(), id)
	if err != nil {
		t.Fatalf("Request(%q): %v", id, err)
	}
	return f
}

func TestRunAllUsesContextRunID(t *testing.T) {
	e := newEngine(t, projectTree(t), &fakeProvider{}, engine.Config{})

	var ids []string
	report, err := e.RunAll(engine.WithRunID(context.Background(), "run-42"), 1, func(pr engine.Progress) {
		ids = append(ids, pr.RunID)
	})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.RunID != "run-42" {
		t.Errorf("RunID = %q, want run-42", report.RunID)
	}
	for _, id := range ids {
		if id != "run-42" {
			t.Fatalf("progress run id = %q", id)
		}
	}

	other, err := e.RunAll(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if other.RunID == "" || other.RunID == "run-42" {
		t.Errorf("generated RunID = %q", other.RunID)
	}
}
