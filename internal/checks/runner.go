// Package checks runs every enabled technology check against a data source
// and aggregates the verdicts into a report.
package checks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeekMasher/advanced-security-compliance/internal/checker"
	"github.com/GeekMasher/advanced-security-compliance/internal/github"
	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
)

type Options struct {
	// Technologies to check, in report order. Empty means all.
	Technologies []policy.Technology
	MaxParallel  int
	// Display emits one violation event per violating record.
	Display bool
	// DebugDir receives the raw records of each check as JSON when set.
	DebugDir string
	// AllowedViolations is the number of violations tolerated before the
	// run fails.
	AllowedViolations int
	RunID             string
	Repository        string
	Ref               string
	Sink              progress.Sink
}

type Runner struct {
	source  github.Source
	checker *checker.Checker
	opts    Options

	// flushMu keeps each check's buffered output contiguous.
	flushMu sync.Mutex
}

func NewRunner(source github.Source, chk *checker.Checker, opts Options) *Runner {
	if opts.Sink == nil {
		opts.Sink = progress.NoopSink{}
	}
	if len(opts.Technologies) == 0 {
		opts.Technologies = policy.Technologies()
	}
	if opts.MaxParallel < 1 || opts.MaxParallel > len(opts.Technologies) {
		opts.MaxParallel = len(opts.Technologies)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{source: source, checker: chk, opts: opts}
}

type indexedResult struct {
	idx int
	res model.TechnologyResult
	err error
}

// Run evaluates every configured technology. The returned error joins the
// failures of individual checks; the report still carries every result.
func (r *Runner) Run(ctx context.Context) (model.Report, error) {
	started := time.Now().UTC()
	doc := r.checker.Document()
	report := model.Report{
		RunID:        r.opts.RunID,
		Repository:   r.opts.Repository,
		Ref:          r.opts.Ref,
		Policy:       doc.Name,
		Threshold:    string(r.checker.Threshold()),
		StartedAt:    started,
		AllowedCount: r.opts.AllowedViolations,
	}
	r.opts.Sink.Emit(progress.Event{Type: progress.EventRunStarted, At: started, RunID: r.opts.RunID})

	techs := r.opts.Technologies
	sem := make(chan struct{}, r.opts.MaxParallel)
	resCh := make(chan indexedResult, len(techs))
	var wg sync.WaitGroup

	for idx, tech := range techs {
		wg.Add(1)
		go func(idx int, tech policy.Technology) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := r.runOne(ctx, tech)
			resCh <- indexedResult{idx: idx, res: res, err: err}
		}(idx, tech)
	}
	wg.Wait()
	close(resCh)

	ordered := make([]indexedResult, len(techs))
	for item := range resCh {
		ordered[item.idx] = item
	}

	var errs []error
	for _, item := range ordered {
		report.Results = append(report.Results, item.res)
		report.TotalViolations += item.res.ViolationCount
		if item.err != nil {
			errs = append(errs, item.err)
		}
	}
	report.CompletedAt = time.Now().UTC()
	report.DurationMS = report.CompletedAt.Sub(started).Milliseconds()
	report.Passed = len(errs) == 0 && report.TotalViolations <= r.opts.AllowedViolations

	status := model.StatusPassed
	if !report.Passed {
		status = model.StatusFailed
	}
	r.opts.Sink.Emit(progress.Event{
		Type:           progress.EventRunFinished,
		At:             report.CompletedAt,
		RunID:          r.opts.RunID,
		Status:         status,
		ViolationCount: report.TotalViolations,
		DurationMS:     report.DurationMS,
		Error:          errorText(errors.Join(errs...)),
	})
	return report, errors.Join(errs...)
}

// checkRun carries the per-technology state of one check.
type checkRun struct {
	tech    policy.Technology
	buffer  *progress.Recorder
	checker *checker.Checker
	result  model.TechnologyResult
	display bool
}

func (c *checkRun) violation(v model.Violation, msg string) {
	c.result.ViolationCount++
	c.result.Violations = append(c.result.Violations, v)
	if !c.display {
		progress.Debugf(c.buffer, "violation: %s", msg)
		return
	}
	c.buffer.Emit(progress.Event{
		Type:       progress.EventViolation,
		Technology: string(c.tech),
		Message:    msg,
		File:       v.File,
		Line:       v.Line,
		Column:     v.Column,
	})
}

func (r *Runner) runOne(ctx context.Context, tech policy.Technology) (model.TechnologyResult, error) {
	started := time.Now().UTC()
	r.opts.Sink.Emit(progress.Event{Type: progress.EventCheckStarted, At: started, RunID: r.opts.RunID, Technology: string(tech)})

	buffer := &progress.Recorder{}
	run := &checkRun{
		tech:    tech,
		buffer:  buffer,
		checker: r.checker.WithSink(buffer),
		result:  model.TechnologyResult{Technology: string(tech)},
		display: r.opts.Display,
	}

	var err error
	switch tech {
	case policy.CodeScanning:
		err = r.checkCodeScanning(ctx, run)
	case policy.Dependabot:
		err = r.checkDependabot(ctx, run)
	case policy.Licensing:
		err = r.checkLicensing(ctx, run)
	case policy.Dependencies:
		err = r.checkDependencies(ctx, run)
	case policy.SecretScanning:
		err = r.checkSecretScanning(ctx, run)
	default:
		err = fmt.Errorf("%w: %q", policy.ErrUnknownTechnology, string(tech))
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", tech, err)
	}

	res := run.result
	res.DurationMS = time.Since(started).Milliseconds()
	switch {
	case err != nil:
		res.Status = model.StatusErrored
		res.Error = err.Error()
	case res.ViolationCount > 0:
		res.Status = model.StatusFailed
	default:
		res.Status = model.StatusPassed
	}
	r.flush(tech, buffer, res)
	return res, err
}

func (r *Runner) flush(tech policy.Technology, buffer *progress.Recorder, res model.TechnologyResult) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	sink := r.opts.Sink
	sink.Emit(progress.Event{Type: progress.EventGroupStarted, RunID: r.opts.RunID, Technology: string(tech), Message: tech.Title() + " Results"})
	for _, e := range buffer.Events() {
		e.RunID = r.opts.RunID
		e.Technology = string(tech)
		sink.Emit(e)
	}
	sink.Emit(progress.Event{
		Type:           progress.EventCheckFinished,
		At:             time.Now().UTC(),
		RunID:          r.opts.RunID,
		Technology:     string(tech),
		Status:         res.Status,
		Error:          res.Error,
		FindingCount:   res.Total,
		ViolationCount: res.ViolationCount,
		DurationMS:     res.DurationMS,
	})
	sink.Emit(progress.Event{Type: progress.EventGroupFinished, RunID: r.opts.RunID, Technology: string(tech)})
}

// writeRecords dumps raw records for offline replay when debugging.
func (r *Runner) writeRecords(run *checkRun, name string, records any) {
	if r.opts.DebugDir == "" {
		progress.Debugf(run.buffer, "skipping writing results to disk")
		return
	}
	dir, err := safefile.EnsureDir(r.opts.DebugDir, 0o700)
	if err != nil {
		progress.Warnf(run.buffer, "debug directory %s: %v", r.opts.DebugDir, err)
		return
	}
	path := filepath.Join(dir, name)
	if err := safefile.WriteJSON(path, records, 0o600); err != nil {
		progress.Warnf(run.buffer, "write results %s: %v", path, err)
		return
	}
	progress.Infof(run.buffer, "Writing results to disk :: %s", path)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
