package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/partsline/scm-agent/internal/loop"
)

// Asker answers one question through a live session.
type Asker interface {
	Ask(ctx context.Context, query string) (loop.Outcome, error)
}

// Entry is one recorded case result, in the answers-file shape.
type Entry struct {
	ID                    int     `json:"id"`
	Q                     string  `json:"q"`
	Expected              string  `json:"exp"`
	Actual                string  `json:"act"`
	Status                string  `json:"status"`
	InputTokens           int     `json:"input_tokens"`
	OutputTokens          int     `json:"output_tokens"`
	TotalTokens           int     `json:"total_tokens"`
	CumulativeTotalTokens int     `json:"cumulative_total_tokens"`
	DurationSeconds       float64 `json:"duration_seconds"`
	CumulativeTimeSeconds float64 `json:"cumulative_time_seconds"`
}

// Summary is the final score of a run.
type Summary struct {
	RunID   string
	Total   int
	Passed  int
	Entries []Entry
}

type Runner struct {
	asker  Asker
	store  *Store
	logger *slog.Logger
	out    io.Writer
}

type RunOptions struct {
	Model string
	Mode  string

	// StartID resumes a run, skipping cases below it. Answers already on
	// disk for the skipped prefix are kept; rows at or past StartID are
	// truncated and re-run.
	StartID int
	// JSONPath, when set, receives the answers file. Rewritten after every
	// case so a crash leaves the completed prefix on disk.
	JSONPath string
	// AllowRefusal enables the refusal pass status.
	AllowRefusal bool
}

func NewRunner(asker Asker, store *Store, logger *slog.Logger, out io.Writer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{asker: asker, store: store, logger: logger.With("component", "eval"), out: out}
}

// Run grades every case at or past StartID. Per-case failures, including
// session crashes, are recorded and do not stop the run. On resume the
// answers file's completed prefix is kept and the cumulative counters
// continue across it.
func (r *Runner) Run(ctx context.Context, cases []Case, opts RunOptions) (Summary, error) {
	runID := uuid.NewString()
	toRun := 0
	for _, c := range cases {
		if c.ID >= opts.StartID {
			toRun++
		}
	}
	if r.store != nil {
		if err := r.store.CreateRun(ctx, runID, opts.Model, opts.Mode, toRun); err != nil {
			return Summary{}, err
		}
	}

	kept, err := keptAnswers(opts)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{RunID: runID, Total: len(kept) + toRun, Entries: kept}
	cumulativeTime := 0.0
	cumulativeTokens := 0
	for _, e := range kept {
		cumulativeTime += e.DurationSeconds
		cumulativeTokens += e.TotalTokens
		if Passed(e.Status) {
			summary.Passed++
		}
	}

	fmt.Fprintf(r.out, "Evaluating %d cases (%s, %s mode)...\n", toRun, opts.Model, opts.Mode)
	for _, c := range cases {
		if c.ID < opts.StartID {
			continue
		}
		fmt.Fprintf(r.out, "\nRunning Q%d: %s\n", c.ID, c.Q)

		entry := r.runCase(ctx, c, opts)
		cumulativeTime += entry.DurationSeconds
		entry.CumulativeTimeSeconds = round2(cumulativeTime)
		cumulativeTokens += entry.TotalTokens
		entry.CumulativeTotalTokens = cumulativeTokens
		summary.Entries = append(summary.Entries, entry)
		if Passed(entry.Status) {
			summary.Passed++
		}
		fmt.Fprintf(r.out, "   -> %s (Time: %.2fs | Tokens: %d)\n", entry.Status, entry.DurationSeconds, entry.TotalTokens)

		if r.store != nil {
			if err := r.store.RecordResult(ctx, uuid.NewString(), runID, entry); err != nil {
				return summary, err
			}
		}
		if opts.JSONPath != "" {
			if err := writeAnswers(opts.JSONPath, summary.Entries); err != nil {
				return summary, err
			}
		}
	}

	if r.store != nil {
		if err := r.store.FinishRun(ctx, runID, summary.Passed); err != nil {
			return summary, err
		}
	}
	fmt.Fprintf(r.out, "\nEvaluation complete. Score: %d/%d\n", summary.Passed, summary.Total)
	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, c Case, opts RunOptions) Entry {
	entry := Entry{ID: c.ID, Q: c.Q, Expected: c.Expected}
	start := time.Now()

	outcome, err := r.asker.Ask(ctx, c.Q)
	if err != nil {
		r.logger.Warn("case crashed", "case", c.ID, "error", err)
		entry.Actual = err.Error()
		entry.Status = StatusCrash
		return entry
	}

	entry.Actual = outcome.Final
	entry.Status = Grade(c.Expected, outcome.Final, opts.AllowRefusal)
	entry.InputTokens = outcome.Usage.PromptTokens
	entry.OutputTokens = outcome.Usage.CompletionTokens
	entry.TotalTokens = outcome.Usage.TotalTokens
	entry.DurationSeconds = round2(time.Since(start).Seconds())
	return entry
}

// keptAnswers loads the existing answers file on resume and drops rows
// the run is about to redo.
func keptAnswers(opts RunOptions) ([]Entry, error) {
	if opts.StartID <= 0 || opts.JSONPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(opts.JSONPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var prior []Entry
	if err := json.Unmarshal(raw, &prior); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	kept := prior[:0]
	for _, e := range prior {
		if e.ID < opts.StartID {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func writeAnswers(path string, entries []Entry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write answers: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
