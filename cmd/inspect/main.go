package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/fatih/color"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the sqlite task store (audit_tasks.db)")
	indexPath := flag.String("index", "", "path to the knowledge-base index (kb_index.db)")
	last := flag.Int("last", 20, "show N most recent tasks")
	taskID := flag.String("task", "", "show single task detail with transitions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" && *indexPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db audit_tasks.db [--last N] [--task id] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --index kb_index.db [--json]")
		os.Exit(2)
	}

	if *indexPath != "" {
		if err := runIndexMode(*indexPath, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if *dbPath == "" {
		return
	}

	store, err := task.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *taskID != "" {
		err = runDetailMode(store, *taskID, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail"`
	Elapsed   string `json:"elapsed"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

func runListMode(store *task.SQLiteStore, last int, jsonOut bool) error {
	tasks, err := store.List()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "no tasks found")
		return nil
	}
	if last > 0 && len(tasks) > last {
		tasks = tasks[len(tasks)-last:]
	}

	rows := make([]listRow, len(tasks))
	for i, t := range tasks {
		outcome, detail := describe(t)
		rows[i] = listRow{
			TaskID:    t.ID,
			Status:    string(t.Status),
			Outcome:   outcome,
			Detail:    detail,
			Elapsed:   elapsed(t).String(),
			CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
			URL:       t.URL,
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-10s  %-8s  %-28s  %9s  %s\n", "Task", "Status", "Outcome", "Detail", "Elapsed", "URL")
	fmt.Printf("%-10s+-%-10s+-%-8s+-%-28s+-%9s+-%s\n",
		"----------", "----------", "--------", "----------------------------", "---------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-10s  %s  %-8s  %-28s  %9s  %s\n",
			shortID(r.TaskID), statusColor(r.Status).Sprintf("%-10s", r.Status), r.Outcome, truncate(r.Detail, 28), r.Elapsed, r.URL)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Task        task.Task         `json:"task"`
	Transitions []task.Transition `json:"transitions"`
}

func runDetailMode(store *task.SQLiteStore, id string, jsonOut bool) error {
	t, err := store.Get(id)
	if err != nil {
		return err
	}
	transitions, err := store.Transitions(id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(detailOutput{Task: t, Transitions: transitions})
	}

	fmt.Printf("Task:       %s\n", t.ID)
	fmt.Printf("URL:        %s\n", t.URL)
	fmt.Printf("Status:     %s\n", statusColor(string(t.Status)).Sprint(t.Status))
	fmt.Printf("Progress:   %s (%d/%d)\n", t.Progress, t.Step, t.TotalSteps)
	fmt.Printf("Created:    %s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Elapsed:    %s\n", elapsed(t))
	for _, w := range t.Warnings {
		color.Yellow("Warning:    %s", w)
	}

	if v := t.Result; v != nil {
		fmt.Printf("\nVerdict:\n")
		if v.Violation {
			color.Red("  Violation:  yes (%s)", v.Severity)
		} else {
			color.Green("  Violation:  no")
		}
		fmt.Printf("  Confidence: %.2f\n", v.Confidence)
		if v.InsufficientEvidence {
			color.Yellow("  Insufficient evidence: no policy rule matched closely")
		}
		if len(v.ViolatedRules) > 0 {
			fmt.Printf("  Rules:      %s\n", strings.Join(v.ViolatedRules, ", "))
		}
		for _, r := range v.FailureReasons {
			fmt.Printf("  Reason:     %s\n", r)
		}
		for _, r := range v.Recommendations {
			fmt.Printf("  Fix:        %s\n", r)
		}
		fmt.Printf("  Explanation: %s\n", v.Explanation)
	}
	if f := t.Error; f != nil {
		fmt.Printf("\nError:\n")
		color.Red("  %s at %s: %s", f.Kind, f.Stage, f.Message)
		for _, c := range f.Causes {
			fmt.Printf("    cause: %s\n", c)
		}
	}

	fmt.Printf("\nTransitions:\n")
	for _, tr := range transitions {
		from := string(tr.From)
		if from == "" {
			from = "-"
		}
		fmt.Printf("  %s  %-10s -> %s  %s\n", tr.At.Format("15:04:05.000"), from, statusColor(string(tr.To)).Sprintf("%-10s", tr.To), tr.Note)
	}
	return nil
}

// #endregion detail-mode

// #region index-mode

type indexOutput struct {
	Fingerprint string         `json:"fingerprint"`
	Embedder    string         `json:"embedder"`
	Dimension   int            `json:"dimension"`
	Chunks      int            `json:"chunks"`
	BuiltAt     time.Time      `json:"built_at"`
	PerSource   map[string]int `json:"chunks_per_source"`
}

func runIndexMode(path string, jsonOut bool) error {
	store, err := retrieval.NewSQLiteIndexStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	idx, err := store.Load(context.Background())
	if err != nil {
		return err
	}
	if idx == nil {
		color.Yellow("knowledge base has not been built")
		return nil
	}
	out := indexOutput{
		Fingerprint: idx.Fingerprint(),
		Embedder:    idx.Embedder(),
		Dimension:   idx.Dimension(),
		Chunks:      idx.Len(),
		BuiltAt:     idx.BuiltAt(),
		PerSource:   make(map[string]int),
	}
	for _, c := range idx.Chunks() {
		out.PerSource[c.Source]++
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Fingerprint: %s\n", out.Fingerprint)
	fmt.Printf("Embedder:    %s (dim %d)\n", out.Embedder, out.Dimension)
	fmt.Printf("Built:       %s\n", out.BuiltAt.Format(time.RFC3339))
	fmt.Printf("Chunks:      %d\n", out.Chunks)
	sources := make([]string, 0, len(out.PerSource))
	for s := range out.PerSource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Printf("  %-40s %d\n", s, out.PerSource[s])
	}
	return nil
}

// #endregion index-mode

// #region output

func describe(t task.Task) (outcome, detail string) {
	switch {
	case t.Result != nil && t.Result.Violation:
		return "verdict", fmt.Sprintf("violation %s %.2f", t.Result.Severity, t.Result.Confidence)
	case t.Result != nil:
		return "verdict", fmt.Sprintf("compliant %.2f", t.Result.Confidence)
	case t.Error != nil:
		return "error", fmt.Sprintf("%s@%s", t.Error.Kind, t.Error.Stage)
	default:
		return "pending", t.Progress
	}
}

func elapsed(t task.Task) time.Duration {
	end := t.UpdatedAt
	if !t.TerminalAt.IsZero() {
		end = t.TerminalAt
	}
	return end.Sub(t.CreatedAt).Round(time.Millisecond)
}

func statusColor(status string) *color.Color {
	switch task.Status(status) {
	case task.StatusDone:
		return color.New(color.FgGreen)
	case task.StatusFailed:
		return color.New(color.FgRed)
	case task.StatusQueued:
		return color.New(color.FgWhite)
	default:
		return color.New(color.FgCyan)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
