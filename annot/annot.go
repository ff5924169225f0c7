// Package annot joins the count matrix against an external gene annotation
// reference keyed by stable gene identifier.
package annot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/kindlab/rnadiff"
	"github.com/kindlab/rnadiff/countmat"
)

// Record maps one stable gene identifier to its symbol, chromosome, and the
// numeric identifier used for external gene-set lookup. A zero NumericID
// means the gene has no resolvable numeric identifier.
type Record struct {
	GeneID     string `csv:"gene_id"`
	Symbol     string `csv:"symbol"`
	Chromosome string `csv:"chromosome"`
	NumericID  int    `csv:"numeric_id"`
}

// LoadReference imports the annotation reference from a delimited file with
// a header row. Later rows with an already-seen gene identifier are ignored.
func LoadReference(path string) (map[string]Record, error) {
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

	records := []*Record{}
	if err := gocsv.UnmarshalBytes(fileBytes, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make(map[string]Record, len(records))
	for _, rec := range records {
		if _, exists := out[rec.GeneID]; exists {
			continue
		}
		out[rec.GeneID] = *rec
	}

	if len(out) < 1 {
		return nil, pfx.Err(fmt.Errorf("no annotation records parsed from %s", path))
	}

	return out, nil
}

// Annotate joins matrix rows to the reference and returns the pruned matrix
// together with a parallel slice of annotation records, one per surviving
// row. Rows with no reference entry or no numeric identifier are dropped, as
// is any later row repeating an already-seen numeric identifier, so the
// numeric identifiers of the result are unique and non-null.
func Annotate(m *countmat.Matrix, ref map[string]Record) (*countmat.Matrix, []Record, error) {
	keep := make([]bool, m.NGenes())
	seen := make(map[int]bool)

	var records []Record
	droppedNoID, droppedDup := 0, 0
	for i, id := range m.GeneIDs {
		rec, ok := ref[id]
		if !ok || rec.NumericID == 0 {
			droppedNoID++
			continue
		}
		if seen[rec.NumericID] {
			droppedDup++
			continue
		}

		seen[rec.NumericID] = true
		keep[i] = true
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, nil, pfx.Err(fmt.Errorf("no matrix row could be annotated with a numeric gene identifier"))
	}

	log.Printf("Annotated %d genes (%d dropped without a numeric identifier, %d dropped as duplicates)\n", len(records), droppedNoID, droppedDup)

	out, err := m.SubsetRows(keep)
	if err != nil {
		return nil, nil, err
	}

	return out, records, nil
}
