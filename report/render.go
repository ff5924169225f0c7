package report

import (
	"os"
	"text/template"
	"time"

	"github.com/carbocation/pfx"

	"github.com/kindlab/rnadiff/nbglm"
)

// RunSummary carries everything the rendered report document embeds.
type RunSummary struct {
	Generated time.Time

	NSamples       int
	NGenesIngested int
	NGenesFiltered int

	TreatmentLevel string
	ReferenceLevel string

	CommonDispersion float64

	Primary      nbglm.Summary
	Treat        nbglm.Summary
	LFCThreshold float64
	FDRCutoff    float64

	TopGenesCSV       string
	ORACSV            string
	CompetitiveCSV    string
	MDSPlot           string
	MDPlot            string
	BCVPlot           string
	PValueHistPlot    string
	NSignificantSets  int
	NCompetitiveSets  int
	NormFactorsByName map[string]float64
}

var reportTemplate = template.Must(template.New("report").Parse(`# Differential expression report

Generated {{.Generated.Format "2006-01-02 15:04:05"}}

## Inputs

- Samples: {{.NSamples}}
- Genes ingested: {{.NGenesIngested}}
- Genes after expression filtering: {{.NGenesFiltered}}
- Contrast: {{.TreatmentLevel}} vs {{.ReferenceLevel}} (individual of origin held fixed)

## Normalization

TMM scale factors (geometric mean 1):
{{range $name, $factor := .NormFactorsByName}}
- {{$name}}: {{printf "%.4f" $factor}}{{end}}

## Model

Common negative-binomial dispersion: {{printf "%.4g" .CommonDispersion}}

### Primary quasi-likelihood F-test (FDR {{.FDRCutoff}})

| Down | NotSig | Up |
|------|--------|----|
| {{.Primary.Down}} | {{.Primary.NotSig}} | {{.Primary.Up}} |

### Fold-change threshold test (|log2FC| > {{.LFCThreshold}})

| Down | NotSig | Up |
|------|--------|----|
| {{.Treat.Down}} | {{.Treat.NotSig}} | {{.Treat.Up}} |

{{if .ORACSV}}## Gene sets

- Over-represented categories at FDR {{.FDRCutoff}}: {{.NSignificantSets}} (table: {{.ORACSV}})
- Competitive enrichment calls at FDR {{.FDRCutoff}}: {{.NCompetitiveSets}} (table: {{.CompetitiveCSV}})

{{end}}## Artifacts

- Top genes: {{.TopGenesCSV}}
- Sample plot: {{.MDSPlot}}
- Mean-difference plot: {{.MDPlot}}
- Dispersion plot: {{.BCVPlot}}
- P-value histogram: {{.PValueHistPlot}}
`))

// RenderMarkdown writes the run's summary document.
func RenderMarkdown(path string, summary RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, summary); err != nil {
		return pfx.Err(err)
	}

	return nil
}
