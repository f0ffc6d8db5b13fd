package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/veridoc/internal/verify"
)

// Writer writes a batch result in a specific format.
type Writer interface {
	Write(w io.Writer, res *verify.BatchResult) error
}

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "markdown"}

// GetWriter returns a writer for the specified format. noColor only affects
// the text format.
func GetWriter(format string, noColor bool) (Writer, error) {
	switch format {
	case "", "text":
		return &TextWriter{NoColor: noColor}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteResult writes res to outPath, or to w when outPath is empty.
func WriteResult(w io.Writer, res *verify.BatchResult, format, outPath string, noColor bool) error {
	writer, err := GetWriter(format, noColor)
	if err != nil {
		return err
	}
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writer.Write(w, res)
}
