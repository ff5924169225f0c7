package annot

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/kindlab/rnadiff/countmat"
)

func testMatrix() *countmat.Matrix {
	return &countmat.Matrix{
		GeneIDs: []string{"ENSG1", "ENSG2", "ENSG3", "ENSG4"},
		Samples: []countmat.SampleInfo{
			{Sample: "s1", Treatment: "control", Individual: "i1"},
			{Sample: "s2", Treatment: "treated", Individual: "i1"},
		},
		Counts: [][]float64{
			{1, 2},
			{3, 4},
			{5, 6},
			{7, 8},
		},
		LibSizes: []float64{16, 20},
	}
}

func TestAnnotate(t *testing.T) {
	ref := map[string]Record{
		"ENSG1": {GeneID: "ENSG1", Symbol: "ABC1", Chromosome: "1", NumericID: 101},
		"ENSG2": {GeneID: "ENSG2", Symbol: "DEF2", Chromosome: "2", NumericID: 0},   // no numeric ID
		"ENSG3": {GeneID: "ENSG3", Symbol: "GHI3", Chromosome: "3", NumericID: 101}, // duplicate of ENSG1
		// ENSG4 absent from the reference entirely
	}

	m, records, err := Annotate(testMatrix(), ref)
	if err != nil {
		t.Fatal(err)
	}

	if m.NGenes() != 1 || len(records) != 1 {
		t.Fatalf("expected 1 annotated row, got %d rows and %d records", m.NGenes(), len(records))
	}
	if m.GeneIDs[0] != "ENSG1" || records[0].NumericID != 101 {
		t.Fatalf("unexpected surviving row: %v %+v", m.GeneIDs, records[0])
	}

	// Numeric identifiers must come out unique and non-null.
	seen := make(map[int]bool)
	for _, rec := range records {
		if rec.NumericID == 0 {
			t.Fatal("null numeric identifier survived annotation")
		}
		if seen[rec.NumericID] {
			t.Fatalf("duplicate numeric identifier %d survived annotation", rec.NumericID)
		}
		seen[rec.NumericID] = true
	}
}

func TestAnnotateNothingResolvable(t *testing.T) {
	ref := map[string]Record{
		"ENSG1": {GeneID: "ENSG1", NumericID: 0},
	}
	if _, _, err := Annotate(testMatrix(), ref); err == nil {
		t.Fatal("expected an error when no row can be annotated")
	}
}

func TestLoadReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annot.tsv")
	body := "gene_id\tsymbol\tchromosome\tnumeric_id\n" +
		"ENSG1\tABC1\t1\t101\n" +
		"ENSG2\tDEF2\tX\t202\n" +
		"ENSG1\tSHADOW\t9\t999\n" // duplicate gene_id: first occurrence wins
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	ref, err := LoadReference(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(ref) != 2 {
		t.Fatalf("expected 2 reference records, got %d", len(ref))
	}
	if rec := ref["ENSG1"]; rec.Symbol != "ABC1" || rec.NumericID != 101 {
		t.Fatalf("first occurrence should win for duplicated gene_id, got %+v", rec)
	}
}
