package continuous

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/affected"
	"github.com/dshills/veridoc/internal/config"
	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/gitctx"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/publish"
	"github.com/dshills/veridoc/internal/verify"
)

// Batcher runs a batch; *verify.Coordinator implements it.
type Batcher interface {
	Run(ctx context.Context, p *project.Project, names []string, d verify.Discipline) (*verify.BatchResult, error)
}

// Options configures a run.
type Options struct {
	CR     config.CRConfig
	Lookup envsubst.Lookup
	// Exclude drops changed paths matching these globs before resolution.
	Exclude []string

	Git       gitctx.RunFunc
	Batcher   Batcher
	Publisher publish.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// Result describes what a run did.
type Result struct {
	Mode     string                        `json:"mode"`
	Roots    map[project.Category]string   `json:"roots"`
	Changed  map[project.Category][]string `json:"changed,omitempty"`
	Selected []string                      `json:"selected"`
	Commits  []gitctx.CommitInfo           `json:"commits,omitempty"`
	Batch    *verify.BatchResult           `json:"batch,omitempty"`
	Summary  *publish.Summary              `json:"-"`

	// PublishErr is informational; publishing never fails a run.
	PublishErr error `json:"-"`
}

// Run performs one continuous-review pass over p.
func Run(ctx context.Context, p *project.Project, opts Options) (*Result, error) {
	if opts.Batcher == nil {
		return nil, errors.New("continuous: no batcher configured")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Lookup == nil {
		opts.Lookup = envsubst.FromMap(nil)
	}
	if opts.Git == nil {
		opts.Git = gitctx.Exec
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cr := opts.CR
	if cr.Mode == "" {
		cr.Mode = config.ModeLocal
	}
	if cr.WorkingTree && cr.Mode != config.ModeLocal {
		return nil, fmt.Errorf("working-tree changes need %s mode, not %s", config.ModeLocal, cr.Mode)
	}

	cp := *p
	if cr.OutputFolder != "" {
		cp.OutputRoot = cr.OutputFolder
	}
	p = &cp

	res := &Result{Mode: cr.Mode}
	log = log.With(zap.String("mode", cr.Mode), zap.String("project", p.Name))

	roots, cleanup, err := prepareRoots(ctx, p, cr, opts, log)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	p = p.WithRoots(roots)
	res.Roots = map[project.Category]string{}
	for _, c := range project.Categories {
		if r := envsubst.String(p.Root(c), opts.Lookup); r != "" {
			res.Roots[c] = r
		}
	}

	switch {
	case cr.RunAll:
		res.Selected = p.Names()
		log.Info("running all units", zap.Int("units", len(res.Selected)))
	case len(cr.Specific) > 0:
		res.Selected = cr.Specific
		log.Info("running requested units", zap.Strings("units", res.Selected))
	default:
		changed, err := ChangedFiles(ctx, res.Roots, cr, opts.Exclude, opts.Git, log)
		if err != nil {
			return nil, err
		}
		res.Changed = changed
		res.Selected = Affected(p, changed, cr.MatchByCategory)
		log.Info("affected units resolved", zap.Strings("units", res.Selected))
	}

	if len(res.Selected) == 0 {
		log.Info("no units affected, nothing to verify")
		return res, nil
	}

	if !cr.WorkingTree {
		res.Commits = commits(ctx, res.Roots, cr, opts.Git, log)
	}

	batch, err := opts.Batcher.Run(ctx, p, res.Selected, verify.Sequential)
	if err != nil {
		return nil, err
	}
	res.Batch = batch

	if cr.PublishResults && opts.Publisher != nil {
		outputRoot := envsubst.String(p.OutputRoot, opts.Lookup)
		summary, err := publish.NewSummary(batch, outputRoot, opts.Now())
		if err == nil {
			summary.Mode = cr.Mode
			summary.Commits = res.Commits
			res.Summary = &summary
			err = opts.Publisher.Publish(ctx, summary, outputRoot)
		}
		if err != nil {
			log.Error("publishing results failed", zap.Error(err))
			res.PublishErr = err
		}
	}
	return res, nil
}

// prepareRoots clones configured repositories outside local mode. The
// returned cleanup removes the workspace unless it is to be kept.
func prepareRoots(ctx context.Context, p *project.Project, cr config.CRConfig, opts Options, log *zap.Logger) (map[project.Category]string, func(), error) {
	noop := func() {}
	if cr.Mode == config.ModeLocal || len(cr.Repositories) == 0 {
		return nil, noop, nil
	}
	workspace := cr.Workspace
	if workspace == "" {
		workspace = ".cr_workspace"
	}
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() {
		if cr.KeepWorkspace {
			return
		}
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("removing workspace failed", zap.String("dir", workspace), zap.Error(err))
		}
	}

	roots := map[project.Category]string{}
	cloned := map[string]string{}
	for _, repo := range cr.Repositories {
		url := envsubst.String(repo.URL, opts.Lookup)
		dir, ok := cloned[url]
		if !ok {
			log.Info("cloning repository", zap.String("category", string(repo.Category)),
				zap.String("url", gitctx.Redact(url)), zap.String("branch", repo.Branch))
			dir, err = gitctx.Clone(ctx, opts.Git, gitctx.CloneOptions{URL: url, Branch: repo.Branch, Dest: workspace})
			if err != nil {
				cleanup()
				return nil, noop, fmt.Errorf("preparing %s repository: %w", repo.Category, err)
			}
			cloned[url] = dir
		}
		roots[repo.Category] = dir
	}
	return roots, cleanup, nil
}

// ChangedFiles diffs each distinct root once, between cr's base and target
// or, with cr.WorkingTree, against the working tree. Paths are relative to
// the root and those matching exclude are dropped. Roots that are not git
// repositories are skipped with a warning; it is an error only when no root
// could be diffed at all.
func ChangedFiles(ctx context.Context, roots map[project.Category]string, cr config.CRConfig, exclude []string, run gitctx.RunFunc, log *zap.Logger) (map[project.Category][]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	changed := map[project.Category][]string{}
	byDir := map[string][]string{}
	var errs []error
	ok := 0
	for _, c := range project.Categories {
		dir, has := roots[c]
		if !has {
			continue
		}
		files, seen := byDir[dir]
		if !seen {
			var err error
			repo := gitctx.Open(dir, run)
			if cr.WorkingTree {
				files, err = repo.WorkingChanges(ctx)
			} else {
				files, err = repo.ChangedFiles(ctx, cr.BaseCommit, cr.TargetCommit)
			}
			if err != nil {
				log.Warn("cannot list changes", zap.String("category", string(c)), zap.String("dir", dir), zap.Error(err))
				errs = append(errs, err)
				byDir[dir] = nil
				continue
			}
			files = gitctx.Filter(files, exclude)
			byDir[dir] = files
			ok++
		} else if files == nil {
			continue
		}
		if len(files) > 0 {
			changed[c] = files
		}
	}
	if ok == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("detecting changes: %w", errors.Join(errs...))
	}
	return changed, nil
}

// Affected returns the sorted names of units whose references match the
// changed files. With byCategory each category's files only match that
// category's references.
func Affected(p *project.Project, changed map[project.Category][]string, byCategory bool) []string {
	units := make([]project.Unit, 0, len(p.Units))
	for _, n := range p.Names() {
		u, _ := p.Unit(n)
		units = append(units, u)
	}
	hits := affected.Set{}
	if byCategory {
		for c, files := range changed {
			for n := range affected.ResolveCategory(files, units, c) {
				hits[n] = struct{}{}
			}
		}
	} else {
		var all []string
		for _, files := range changed {
			all = append(all, files...)
		}
		hits = affected.Resolve(all, units)
	}
	return hits.Sorted()
}

func commits(ctx context.Context, roots map[project.Category]string, cr config.CRConfig, run gitctx.RunFunc, log *zap.Logger) []gitctx.CommitInfo {
	dirs := make([]string, 0, len(roots))
	seen := map[string]bool{}
	for _, d := range roots {
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	var out []gitctx.CommitInfo
	for _, d := range dirs {
		list, err := gitctx.Open(d, run).ListCommits(ctx, cr.BaseCommit, cr.TargetCommit)
		if err != nil {
			log.Debug("listing commits failed", zap.String("dir", d), zap.Error(err))
			continue
		}
		out = append(out, list...)
	}
	return out
}
