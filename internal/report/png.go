package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/violatingcp/pixeltrack-standalone/internal/monitoring"
)

// WritePNG writes one PNG histogram per non-empty series into dir and
// returns the written paths.
func (c *Collector) WritePNG(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create histogram dir: %w", err)
	}

	var written []string
	for _, s := range c.snapshot() {
		if len(s.values) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = s.title
		p.X.Label.Text = s.xLabel
		p.Y.Label.Text = "entries"

		h, err := plotter.NewHist(plotter.Values(s.values), DefaultBins)
		if err != nil {
			return written, fmt.Errorf("histogram %s: %w", s.name, err)
		}
		h.LineStyle.Width = vg.Points(1)
		p.Add(h)

		file := filepath.Join(dir, s.name+".png")
		if err := p.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s: %w", file, err)
		}
		written = append(written, file)
	}
	monitoring.Logf("Wrote %d histograms to %s", len(written), dir)
	return written, nil
}
