package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/carbocation/pfx"
	hist2 "github.com/grd/histogram"
	"github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/kindlab/rnadiff/countmat"
	"github.com/kindlab/rnadiff/nbglm"
)

const (
	plotWidth  = 700
	plotHeight = 520

	// Genes ranked by log-CPM variance that feed the sample MDS plot.
	mdsTopGenes = 500
)

// PlotMDS renders a two-dimensional sample plot from the leading components
// of the centered log-CPM matrix, one series per treatment group with the
// sample names annotated.
func PlotMDS(path string, m *countmat.Matrix) error {
	libs := m.ColumnSums()
	logCPM := m.LogCPM(2, libs)

	// Rank genes by variance across samples.
	type rowVar struct {
		row      int
		variance float64
	}
	vars := make([]rowVar, len(logCPM))
	for i, row := range logCPM {
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(len(row))

		variance := 0.0
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		vars[i] = rowVar{row: i, variance: variance}
	}
	sort.Slice(vars, func(a, b int) bool { return vars[a].variance > vars[b].variance })

	nTop := mdsTopGenes
	if nTop > len(vars) {
		nTop = len(vars)
	}
	if nTop < 2 {
		return pfx.Err(fmt.Errorf("too few genes (%d) for a sample plot", len(vars)))
	}

	// Samples as rows, the top-variance genes (row-centered) as columns.
	nSamples := m.NSamples()
	data := mat.NewDense(nSamples, nTop, nil)
	for k := 0; k < nTop; k++ {
		row := logCPM[vars[k].row]
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(len(row))
		for j := 0; j < nSamples; j++ {
			data.Set(j, k, row[j]-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(data, mat.SVDThin); !ok {
		return pfx.Err(fmt.Errorf("SVD of the log-CPM matrix failed"))
	}

	var u mat.Dense
	svd.UTo(&u)
	values := svd.Values(nil)

	type point struct{ x, y float64 }
	byGroup := make(map[string][]point)
	var annotations []chart.Value2
	for j, s := range m.Samples {
		p := point{
			x: u.At(j, 0) * values[0],
			y: u.At(j, 1) * values[1],
		}
		byGroup[s.Treatment] = append(byGroup[s.Treatment], p)
		annotations = append(annotations, chart.Value2{XValue: p.x, YValue: p.y, Label: s.Sample})
	}

	series := []chart.Series{}

	groupNames := make([]string, 0, len(byGroup))
	for name := range byGroup {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	for gi, name := range groupNames {
		pts := byGroup[name]
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		for i, p := range pts {
			xs[i] = p.x
			ys[i] = p.y
		}
		xs, ys = ensurePlottable(xs, ys)

		style := chart.Style{StrokeWidth: chart.Disabled, DotWidth: 5, DotColor: chart.ColorBlue}
		if gi == 1 {
			style.DotColor = chart.ColorRed
		}

		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   style,
		})
	}
	series = append(series, chart.AnnotationSeries{Annotations: annotations})

	graph := chart.Chart{
		Title:  "Sample plot (leading log-CPM dimensions)",
		Width:  plotWidth,
		Height: plotHeight,
		XAxis:  chart.XAxis{Name: "Dim 1"},
		YAxis:  chart.YAxis{Name: "Dim 2"},
		Series: series,
	}

	return renderPNG(graph, path)
}

// PlotMD renders the per-contrast mean-difference plot: average abundance
// against log2 fold change, significant genes in red.
func PlotMD(path string, results []nbglm.Result, fdrCutoff float64) error {
	var sigX, sigY, restX, restY []float64
	for _, r := range results {
		if r.FDR <= fdrCutoff {
			sigX = append(sigX, r.AveLogCPM)
			sigY = append(sigY, r.LogFC)
		} else {
			restX = append(restX, r.AveLogCPM)
			restY = append(restY, r.LogFC)
		}
	}

	sigX, sigY = ensurePlottable(sigX, sigY)
	restX, restY = ensurePlottable(restX, restY)

	series := []chart.Series{}
	if len(restX) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    "NotSig",
			XValues: restX,
			YValues: restY,
			Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 2, DotColor: chart.ColorAlternateGray},
		})
	}
	if len(sigX) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("FDR <= %g", fdrCutoff),
			XValues: sigX,
			YValues: sigY,
			Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 3, DotColor: chart.ColorRed},
		})
	}
	if len(series) == 0 {
		return pfx.Err(fmt.Errorf("no results to plot"))
	}

	graph := chart.Chart{
		Title:  "Mean-difference plot",
		Width:  plotWidth,
		Height: plotHeight,
		XAxis:  chart.XAxis{Name: "Average log2 CPM"},
		YAxis:  chart.YAxis{Name: "log2 fold change"},
		Series: series,
	}

	return renderPNG(graph, path)
}

// PlotBCV renders per-gene biological coefficients of variation against
// abundance, with the common dispersion as a reference line.
func PlotBCV(path string, fits *nbglm.FitSet) error {
	if len(fits.Genes) == 0 {
		return pfx.Err(fmt.Errorf("no fitted genes to plot"))
	}

	xs := make([]float64, len(fits.Genes))
	ys := make([]float64, len(fits.Genes))
	minX, maxX := math.Inf(1), math.Inf(-1)
	for i, g := range fits.Genes {
		xs[i] = g.AveLogCPM
		ys[i] = math.Sqrt(fits.Disp.Common * fits.Disp.S2[i])
		if xs[i] < minX {
			minX = xs[i]
		}
		if xs[i] > maxX {
			maxX = xs[i]
		}
	}

	xs, ys = ensurePlottable(xs, ys)
	if minX == maxX {
		maxX = minX + 1
	}

	commonBCV := math.Sqrt(fits.Disp.Common)

	graph := chart.Chart{
		Title:  "Dispersion (BCV) plot",
		Width:  plotWidth,
		Height: plotHeight,
		XAxis:  chart.XAxis{Name: "Average log2 CPM"},
		YAxis:  chart.YAxis{Name: "Biological coefficient of variation"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Genewise",
				XValues: xs,
				YValues: ys,
				Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 2, DotColor: chart.ColorBlue},
			},
			chart.ContinuousSeries{
				Name:    "Common",
				XValues: []float64{minX, maxX},
				YValues: []float64{commonBCV, commonBCV},
				Style:   chart.Style{StrokeWidth: 2, StrokeColor: chart.ColorRed},
			},
		},
	}

	return renderPNG(graph, path)
}

// PValueHistogramBins bins raw p-values into nBins equal-width buckets over
// [0, 1].
func PValueHistogramBins(pvals []float64, nBins int) ([]int, error) {
	hg, err := hist2.NewHistogram(hist2.Range(0, uint(nBins), 1.0/float64(nBins)))
	if err != nil {
		return nil, pfx.Err(err)
	}

	for _, p := range pvals {
		// The last bucket is closed on the right.
		if p >= 1 {
			p = math.Nextafter(1, 0)
		}
		hg.Add(p)
	}

	out := make([]int, nBins)
	for b := 0; b < nBins; b++ {
		out[b] = hg.Get(b)
	}
	return out, nil
}

// PlotPValueHistogram renders the distribution of raw p-values; a healthy
// contrast shows a spike near zero over a flat background.
func PlotPValueHistogram(path string, results []nbglm.Result) error {
	pvals := make([]float64, len(results))
	for i, r := range results {
		pvals[i] = r.PValue
	}

	const nBins = 20
	counts, err := PValueHistogramBins(pvals, nBins)
	if err != nil {
		return err
	}

	bars := make([]chart.Value, nBins)
	for b, c := range counts {
		bars[b] = chart.Value{
			Value: float64(c),
			Label: fmt.Sprintf("%.2f", (float64(b)+0.5)/nBins),
		}
	}

	graph := chart.BarChart{
		Title:    "Raw p-value distribution",
		Width:    plotWidth,
		Height:   plotHeight,
		BarWidth: 24,
		Bars:     bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return pfx.Err(err)
	}
	return writeFile(path, buffer)
}

// ensurePlottable duplicates a lone point: the chart renderer requires at
// least two values per series.
func ensurePlottable(xs, ys []float64) ([]float64, []float64) {
	if len(xs) == 1 {
		return []float64{xs[0], xs[0]}, []float64{ys[0], ys[0]}
	}
	return xs, ys
}

func renderPNG(graph chart.Chart, path string) error {
	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return pfx.Err(err)
	}
	return writeFile(path, buffer)
}

func writeFile(path string, buffer *bytes.Buffer) error {
	outFile, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer outFile.Close()

	if _, err := buffer.WriteTo(outFile); err != nil {
		return pfx.Err(err)
	}

	return nil
}
