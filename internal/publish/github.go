package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.github.com"

// GitHubConfig selects the repository reports are committed to.
type GitHubConfig struct {
	Token string
	// Repo is "owner/name" or a git remote URL.
	Repo   string
	Branch string
	// Path is the directory inside the repository (default "reports").
	Path   string
	APIURL string
}

// GitHub commits the summary and every report with the contents API.
type GitHub struct {
	token   string
	owner   string
	repo    string
	branch  string
	path    string
	apiURL  string
	httpCli *http.Client
}

// NewGitHub validates cfg and returns a publisher.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if cfg.Token == "" {
		return nil, errors.New("github publisher: token is not set")
	}
	owner, repo, err := ParseRepo(cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("github publisher: %w", err)
	}
	g := &GitHub{
		token:   cfg.Token,
		owner:   owner,
		repo:    repo,
		branch:  cfg.Branch,
		path:    strings.Trim(cfg.Path, "/"),
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}
	if g.branch == "" {
		g.branch = "main"
	}
	if g.path == "" {
		g.path = "reports"
	}
	if g.apiURL == "" {
		g.apiURL = defaultAPIURL
	}
	return g, nil
}

func (g *GitHub) Name() string { return "github" }

// Publish uploads cr_summary.json followed by every listed report.
func (g *GitHub) Publish(ctx context.Context, s Summary, outputRoot string) error {
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := g.upload(ctx, path.Join(g.path, SummaryFile), data,
		"Update verification summary via Continuous Review"); err != nil {
		return err
	}
	var errs []error
	for _, r := range s.Reports {
		content, err := os.ReadFile(filepath.Join(outputRoot, filepath.FromSlash(r.File)))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", r.File, err))
			continue
		}
		if err := g.upload(ctx, path.Join(g.path, r.File), content,
			fmt.Sprintf("Update %s via Continuous Review", r.File)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func (g *GitHub) contentsURL(file string) string {
	var escaped []string
	for _, seg := range strings.Split(file, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiURL, g.owner, g.repo, strings.Join(escaped, "/"))
}

func (g *GitHub) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return req, nil
}

// existingSHA returns the blob SHA of file on the branch, or "" when the
// file does not exist yet.
func (g *GitHub) existingSHA(ctx context.Context, file string) (string, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.contentsURL(file)+"?ref="+url.QueryEscape(g.branch), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.httpCli.Do(req)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", file, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("authentication failed: %s", string(body))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
	}
	var existing struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return existing.SHA, nil
}

func (g *GitHub) upload(ctx context.Context, file string, content []byte, message string) error {
	sha, err := g.existingSHA(ctx, file)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(contentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.branch,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPut, g.contentsURL(file), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", file, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("GitHub rejected %s (422): %s", file, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GitHub API error uploading %s (status %d): %s", file, resp.StatusCode, string(body))
	}
	return nil
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/\s]+)`)
	shortRepoRe   = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)$`)
)

// ParseRepo extracts owner and name from "owner/name" or a git remote URL.
func ParseRepo(s string) (owner, repo string, err error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".git")
	for _, re := range []*regexp.Regexp{shortRepoRe, httpsRemoteRe, sshRemoteRe} {
		if m := re.FindStringSubmatch(s); len(m) == 3 {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from %q", s)
}
