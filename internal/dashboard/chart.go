package dashboard

import (
	"image/color"
	"io"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// 图片尺寸。
const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

var barColor = color.RGBA{R: 51, G: 117, B: 56, A: 255}

// RenderIndicatorPNG 将指标可用性绘制为柱状图（PNG），纵轴固定 0–100。
func RenderIndicatorPNG(w io.Writer, c IndicatorChart) error {
	p := plot.New()
	p.Title.Text = c.Title
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.Text = "Percentage Available (%)"
	p.Y.Min, p.Y.Max = 0, 100

	values := make(plotter.Values, len(c.Bars))
	names := make([]string, len(c.Bars))
	for i, b := range c.Bars {
		values[i] = b.Percent
		names[i] = b.Indicator
	}
	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return eris.Wrap(err, "dashboard: bar chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)

	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return eris.Wrap(err, "dashboard: render")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return eris.Wrap(err, "dashboard: write png")
	}
	return nil
}
