package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/git"
	"github.com/thruflo/ralph/internal/provider"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
)

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	Kind        provider.Kind
	Name        string
	DisplayName string
	Available   bool
}

// StatusReport is a snapshot of a project's task and state.
type StatusReport struct {
	ProjectDir string
	// Branch is the checked-out git branch, empty outside a repository.
	Branch string

	TaskFound     bool
	Title         string
	Done          int
	Total         int
	Criteria      []task.Criterion
	MaxIterations int

	Providers []ProviderStatus
	History   []state.History
	// Rate is criteria checked per iteration over the last RateWindow
	// work iterations.
	Rate     float64
	Archived []string
}

// RateWindow is the number of recent iterations Status averages over.
const RateWindow = 5

// Status inspects projectDir without running anything. A missing task file
// is reported, not returned as an error; a malformed one is an error.
func Status(projectDir string, opts ...provider.Option) (*StatusReport, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{ProjectDir: dir, MaxIterations: cfg.Limits.MaxIterations}

	ctx := context.Background()
	if repo := git.Open(dir); repo.IsRepo(ctx) {
		if branch, err := repo.CurrentBranch(ctx); err == nil {
			report.Branch = branch
		}
	}

	tk, err := task.Load(task.PathIn(dir))
	switch {
	case err == nil:
		report.TaskFound = true
		report.Title = tk.Title()
		report.Done, report.Total = tk.CountCriteria()
		report.Criteria = tk.Criteria
		if tk.HasMaxIterations() {
			report.MaxIterations = tk.MaxIterations()
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	providers, err := provider.FromNames(cfg.Providers, opts...)
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		report.Providers = append(report.Providers, ProviderStatus{
			Kind:        p.Kind(),
			Name:        p.Name(),
			DisplayName: p.DisplayName(),
			Available:   p.Available(),
		})
	}

	store := state.NewStore(dir)
	if report.History, err = store.LoadHistory(); err != nil {
		return nil, err
	}
	var work []state.History
	for _, h := range report.History {
		if !h.Verification {
			work = append(work, h)
		}
	}
	report.Rate = ProgressRate(work, RateWindow)
	if report.Archived, err = store.ListArchived(); err != nil {
		return nil, err
	}
	return report, nil
}
