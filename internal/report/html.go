package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes every series as a bar chart on one HTML page.
func (c *Collector) RenderHTML(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = "Vertex finder report"

	for _, s := range c.snapshot() {
		centres, counts := bin(s.values, DefaultBins)
		x := make([]string, len(centres))
		y := make([]opts.BarData, len(counts))
		for i := range centres {
			x[i] = strconv.FormatFloat(centres[i], 'g', 4, 64)
			y[i] = opts.BarData{Value: counts[i]}
		}

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{ChartID: s.name, Width: "900px", Height: "400px"}),
			charts.WithTitleOpts(opts.Title{Title: s.title, Subtitle: fmt.Sprintf("entries=%d", len(s.values))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: s.xLabel, NameLocation: "middle", NameGap: 25}),
		)
		bar.SetXAxis(x).AddSeries(s.name, y)
		page.AddCharts(bar)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
