package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// RunFunc executes git with args in dir and returns its stdout.
type RunFunc func(ctx context.Context, dir string, args ...string) (string, error)

// Exec runs the real git binary.
func Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("git %s: %s: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// Repo is a local working copy.
type Repo struct {
	Dir string
	run RunFunc
}

// Open returns a Repo rooted at dir. A nil run uses [Exec].
func Open(dir string, run RunFunc) *Repo {
	if run == nil {
		run = Exec
	}
	return &Repo{Dir: dir, run: run}
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.Dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ChangedFiles lists the paths under Dir that differ between base and
// target, relative to Dir. Empty revisions default to HEAD~1 and HEAD.
func (r *Repo) ChangedFiles(ctx context.Context, base, target string) ([]string, error) {
	if base == "" {
		base = "HEAD~1"
	}
	if target == "" {
		target = "HEAD"
	}
	out, err := r.run(ctx, r.Dir, "diff", "--name-only", "--relative", base, target)
	if err != nil {
		return nil, fmt.Errorf("listing changes %s..%s: %w", base, target, err)
	}
	return splitLines(out), nil
}

// WorkingChanges lists files under Dir modified in the working tree or index
// relative to HEAD, plus untracked files. Paths are relative to Dir, as with
// ChangedFiles.
func (r *Repo) WorkingChanges(ctx context.Context) ([]string, error) {
	tracked, err := r.run(ctx, r.Dir, "diff", "--name-only", "--relative", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("listing working changes: %w", err)
	}
	untracked, err := r.run(ctx, r.Dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	return dedupSorted(append(splitLines(tracked), splitLines(untracked)...)), nil
}

// CommitInfo holds a commit SHA and its subject line.
type CommitInfo struct {
	SHA     string `json:"sha"`
	Subject string `json:"subject"`
}

// ListCommits returns the commits in base..target, oldest first.
func (r *Repo) ListCommits(ctx context.Context, base, target string) ([]CommitInfo, error) {
	if target == "" {
		target = "HEAD"
	}
	revRange := target
	if base != "" {
		revRange = base + ".." + target
	}
	// Output format: "commit <sha>\n<subject>\n" per commit.
	out, err := r.run(ctx, r.Dir, "rev-list", "--reverse", "--format=%s", revRange)
	if err != nil {
		return nil, fmt.Errorf("git rev-list %s: %w", revRange, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	lines := strings.Split(out, "\n")
	var commits []CommitInfo
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "commit ") {
			continue
		}
		c := CommitInfo{SHA: strings.TrimPrefix(line, "commit ")}
		if i+1 < len(lines) && !strings.HasPrefix(lines[i+1], "commit ") {
			c.Subject = strings.TrimSpace(lines[i+1])
			i++
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// CloneOptions controls a shallow clone.
type CloneOptions struct {
	URL    string
	Branch string
	// Dest is the parent directory; the clone lands in Dest/RepoName(URL).
	Dest string
}

// Clone makes a depth-1 clone of a single branch and returns its path. An
// existing directory at the destination is removed first.
func Clone(ctx context.Context, run RunFunc, opts CloneOptions) (string, error) {
	if run == nil {
		run = Exec
	}
	if opts.URL == "" {
		return "", errors.New("clone: empty repository URL")
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	dir := filepath.Join(opts.Dest, RepoName(opts.URL))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing %s: %w", dir, err)
	}
	if _, err := run(ctx, opts.Dest, "clone", "--depth", "1", "--branch", branch, opts.URL, dir); err != nil {
		return "", fmt.Errorf("cloning %s: %w", Redact(opts.URL), err)
	}
	return dir, nil
}

// RepoName derives a directory name from a repository URL.
func RepoName(url string) string {
	name := path.Base(strings.TrimRight(strings.ReplaceAll(url, `\`, "/"), "/"))
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// Redact hides userinfo credentials embedded in a URL.
func Redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	at := strings.LastIndex(rest, "@")
	slash := strings.Index(rest, "/")
	if at < 0 || (slash >= 0 && at > slash) {
		return url
	}
	return scheme + "://***@" + rest[at+1:]
}

// MatchesAny reports whether path matches any of the doublestar patterns.
// Patterns starting with "**/" also match against the base name.
func MatchesAny(p string, patterns []string) bool {
	p = filepath.ToSlash(p)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if clean := strings.TrimPrefix(pattern, "**/"); clean != pattern {
			if ok, _ := doublestar.Match(clean, path.Base(p)); ok {
				return true
			}
		}
	}
	return false
}

// Filter drops paths matching any exclude pattern.
func Filter(files, exclude []string) []string {
	if len(exclude) == 0 {
		return files
	}
	var kept []string
	for _, f := range files {
		if !MatchesAny(f, exclude) {
			kept = append(kept, f)
		}
	}
	return kept
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func dedupSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}
