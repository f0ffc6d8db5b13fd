package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/veridoc/internal/gitctx"
	"github.com/dshills/veridoc/internal/verify"
)

// SummaryFile is the name of the summary document.
const SummaryFile = "cr_summary.json"

// ReportFile describes one report found under the output root.
type ReportFile struct {
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Summary is the published record of a run.
type Summary struct {
	Timestamp time.Time           `json:"timestamp"`
	RunID     string              `json:"run_id,omitempty"`
	Project   string              `json:"project,omitempty"`
	Mode      string              `json:"mode,omitempty"`
	Total     int                 `json:"total_verifications"`
	Succeeded int                 `json:"successful_verifications"`
	Failed    int                 `json:"failed_verifications"`
	Results   []verify.Outcome    `json:"results"`
	Reports   []ReportFile        `json:"reports"`
	Commits   []gitctx.CommitInfo `json:"commits,omitempty"`
}

// NewSummary builds a summary from a batch result and the markdown files
// currently under outputRoot. A nil result gives an empty summary, which
// is how an existing output root is republished.
func NewSummary(res *verify.BatchResult, outputRoot string, now time.Time) (Summary, error) {
	s := Summary{Timestamp: now, Results: []verify.Outcome{}}
	if res != nil {
		s.RunID = res.RunID
		s.Project = res.Project
		s.Total = res.Total
		s.Succeeded = res.Succeeded
		s.Failed = res.Failed
		s.Results = append(s.Results, res.Outcomes...)
	}
	reports, err := ListReports(outputRoot)
	if err != nil {
		return s, err
	}
	s.Reports = reports
	return s, nil
}

// ListReports walks root for *.md files, returning slash-separated paths
// relative to root in lexical order. A missing root yields no reports.
func ListReports(root string) ([]ReportFile, error) {
	reports := []ReportFile{}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return reports, nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		reports = append(reports, ReportFile{
			File:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing reports in %s: %w", root, err)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].File < reports[j].File })
	return reports, nil
}

// JSON encodes s with two-space indentation.
func (s Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Publisher delivers a summary and the reports beneath outputRoot.
type Publisher interface {
	Publish(ctx context.Context, s Summary, outputRoot string) error
	Name() string
}

// Local writes cr_summary.json into the output root.
type Local struct{}

func (Local) Name() string { return "local" }

func (Local) Publish(_ context.Context, s Summary, outputRoot string) error {
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return fmt.Errorf("creating output root: %w", err)
	}
	return os.WriteFile(filepath.Join(outputRoot, SummaryFile), append(data, '\n'), 0o644)
}
