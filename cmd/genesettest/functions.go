package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/kindlab/rnadiff"
	"github.com/kindlab/rnadiff/geneset"
	"github.com/kindlab/rnadiff/nbglm"
	"github.com/kindlab/rnadiff/report"
)

func run(resultsFile string, setFiles []string, outDir string, fdrCutoff float64) error {
	results, err := readResults(rnadiff.ExpandHome(resultsFile))
	if err != nil {
		return err
	}
	log.Printf("Read %d gene results from %s\n", len(results), resultsFile)

	merged := make(geneset.Collection)
	for _, path := range setFiles {
		path = rnadiff.ExpandHome(path)
		coll, err := geneset.LoadCollection(path)
		if err != nil {
			return err
		}

		prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
		for name, members := range coll {
			merged[prefix+":"+name] = members
		}
		log.Printf("Loaded %d gene sets from %s\n", len(coll), path)
	}

	var universe, sig []int
	for _, r := range results {
		universe = append(universe, r.NumericID)
		if r.FDR <= fdrCutoff {
			sig = append(sig, r.NumericID)
		}
	}

	oraResults := geneset.OverRepresentation(sig, universe, merged)

	cameraResults, err := geneset.Competitive(signedScores(results), merged, geneset.DefaultInterGeneCor)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return pfx.Err(err)
	}

	oraPath := filepath.Join(outDir, "gene_sets_overrepresented.csv")
	cameraPath := filepath.Join(outDir, "gene_sets_competitive.csv")
	if err := report.WriteSignificantORA(oraPath, oraResults, fdrCutoff); err != nil {
		return err
	}
	if err := report.WriteSignificantCompetitive(cameraPath, cameraResults, fdrCutoff); err != nil {
		return err
	}

	log.Printf("Wrote %s and %s\n", oraPath, cameraPath)
	return nil
}

func readResults(path string) ([]nbglm.Result, error) {
	rc, err := rnadiff.OpenMaybeCompressed(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	fileBytes, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	delim := rnadiff.DetectDelimiter(bytes.NewReader(fileBytes))

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delim
		r.LazyQuotes = true
		return r
	})

	records := []*nbglm.Result{}
	if err := gocsv.UnmarshalBytes(fileBytes, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]nbglm.Result, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}

	if len(out) == 0 {
		return nil, pfx.Err(fmt.Errorf("%s contains no gene rows", path))
	}

	return out, nil
}

// signedScores recovers a t-like score per gene from the table's F statistic
// and fold change direction. With one treatment coefficient the F statistic
// is the square of the underlying t statistic.
func signedScores(results []nbglm.Result) map[int]float64 {
	scores := make(map[int]float64, len(results))
	for _, r := range results {
		t := math.Sqrt(math.Abs(r.Stat))
		if r.LogFC < 0 {
			t = -t
		}
		scores[r.NumericID] = t
	}

	return scores
}
