package countmat

import "math"

// CPM returns counts-per-million using the supplied per-sample library
// sizes. Pass m.LibSizes for ingestion-time totals or m.ColumnSums() for
// totals over the current rows.
func (m *Matrix) CPM(libSizes []float64) [][]float64 {
	out := make([][]float64, m.NGenes())
	for i, row := range m.Counts {
		cpmRow := make([]float64, len(row))
		for j, v := range row {
			cpmRow[j] = v / libSizes[j] * 1e6
		}
		out[i] = cpmRow
	}
	return out
}

// LogCPM returns log2 counts-per-million with a prior count added to damp
// the variance of low counts. The prior is scaled per sample in proportion
// to library size, so that the log-CPM of a zero count is the same in every
// sample.
func (m *Matrix) LogCPM(prior float64, libSizes []float64) [][]float64 {
	meanLib := 0.0
	for _, v := range libSizes {
		meanLib += v
	}
	meanLib /= float64(len(libSizes))

	out := make([][]float64, m.NGenes())
	for i, row := range m.Counts {
		logRow := make([]float64, len(row))
		for j, v := range row {
			adjPrior := prior * libSizes[j] / meanLib
			adjLib := libSizes[j] + 2*adjPrior
			logRow[j] = math.Log2((v + adjPrior) / adjLib * 1e6)
		}
		out[i] = logRow
	}
	return out
}

// AveLogCPM returns the per-gene average log2 CPM, the abundance measure
// used for plotting and dispersion trends.
func (m *Matrix) AveLogCPM(libSizes []float64) []float64 {
	logCPM := m.LogCPM(2, libSizes)

	out := make([]float64, m.NGenes())
	for i, row := range logCPM {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		out[i] = sum / float64(len(row))
	}
	return out
}
