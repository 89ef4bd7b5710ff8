// Package report renders a diagnostic run for people (TextPrinter) and for
// machines (JSONPrinter).
package report

import (
	"encoding/json"
	"io"

	"github.com/fxnlabs/gpudiag/internal/config"
	"github.com/fxnlabs/gpudiag/internal/diag"
)

// New returns the printer selected by report.output.
func New(cfg *config.Config, w io.Writer) diag.Printer {
	if cfg.Report.Output == config.OutputJSON {
		return NewJSONPrinter(w)
	}
	return NewTextPrinter(w, TextOptions{
		NoColor: cfg.Report.NoColor,
		Banner:  cfg.Report.Banner,
	})
}

// JSONPrinter writes the whole report as one JSON document when the run ends.
type JSONPrinter struct {
	w io.Writer
}

func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{w: w}
}

func (p *JSONPrinter) Section(diag.Section, *diag.Report) error {
	return nil
}

func (p *JSONPrinter) Finish(r *diag.Report) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
