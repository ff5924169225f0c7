package main

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/carbocation/pfx"

	"github.com/kindlab/rnadiff"
	"github.com/kindlab/rnadiff/countmat"
)

func run(files []string, sampleSheet, output string) error {
	samples, err := countmat.ReadSampleSheet(rnadiff.ExpandHome(sampleSheet))
	if err != nil {
		return err
	}

	if len(files) == 0 {
		for _, s := range samples {
			files = append(files, s.File)
		}
	}
	for i := range files {
		files[i] = rnadiff.ExpandHome(files[i])
	}

	m, err := countmat.Build(files, samples)
	if err != nil {
		return err
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return pfx.Err(err)
		}
		defer f.Close()
		out = f
	}

	return writeMatrix(out, m)
}

func writeMatrix(out *os.File, m *countmat.Matrix) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := make([]string, 0, m.NSamples()+1)
	header = append(header, "gene_id")
	for _, s := range m.Samples {
		header = append(header, s.Sample)
	}
	if err := w.Write(header); err != nil {
		return pfx.Err(err)
	}

	row := make([]string, m.NSamples()+1)
	for i, geneID := range m.GeneIDs {
		row[0] = geneID
		for j, v := range m.Counts[i] {
			row[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return pfx.Err(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return pfx.Err(err)
	}

	return nil
}
