package countmat

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"testing"
)

func writeCountFile(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSamples() []SampleInfo {
	return []SampleInfo{
		{Sample: "s1", Treatment: "control", Individual: "ind1", Batch: "b1", Sex: "F"},
		{Sample: "s2", Treatment: "treated", Individual: "ind1", Batch: "b1", Sex: "F"},
		{Sample: "s3", Treatment: "control", Individual: "ind2", Batch: "b2", Sex: "M"},
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()

	files := []string{
		writeCountFile(t, dir, "s1.txt", "geneA\t10\ngeneB\t5\n__no_feature\t1000\n__ambiguous\t50\n"),
		writeCountFile(t, dir, "s2.txt", "geneA\t20\ngeneB\t0\ngeneC\t7\n"),
		writeCountFile(t, dir, "s3.txt", "geneA\t1\ngeneB\t2\n__no_feature\t99\n"),
	}

	m, err := Build(files, testSamples())
	if err != nil {
		t.Fatal(err)
	}

	// One column per sample label.
	if got, want := m.NSamples(), 3; got != want {
		t.Fatalf("NSamples: got %d, want %d", got, want)
	}

	// Union of genes across files, zero-filled.
	if got, want := m.NGenes(), 3; got != want {
		t.Fatalf("NGenes: got %d, want %d", got, want)
	}

	// Meta-rows are excluded from the library size totals.
	for i, want := range []float64{15, 27, 3} {
		if got := m.LibSizes[i]; got != want {
			t.Fatalf("LibSizes[%d]: got %v, want %v", i, got, want)
		}
	}

	// geneC was absent from s1 and s3.
	for i, id := range m.GeneIDs {
		if id != "geneC" {
			continue
		}
		if m.Counts[i][0] != 0 || m.Counts[i][2] != 0 {
			t.Fatalf("expected zero fill for geneC, got %v", m.Counts[i])
		}
	}
}

func TestBuildMetadataMismatch(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeCountFile(t, dir, "s1.txt", "geneA\t10\n"),
	}

	if _, err := Build(files, testSamples()); err == nil {
		t.Fatal("expected an error when metadata records do not match file count")
	}
}

func TestReadCountFileMalformed(t *testing.T) {
	dir := t.TempDir()

	for _, tc := range []struct {
		name string
		body string
	}{
		{"too_many_columns", "geneA\t10\t3\t9\n"},
		{"non_numeric", "geneA\tNA\n"},
		{"negative", "geneA\t-3\n"},
		{"duplicate", "geneA\t1\ngeneA\t2\n"},
		{"empty", "\n"},
	} {
		path := writeCountFile(t, dir, tc.name+".txt", tc.body)
		if _, err := ReadCountFile(path); err == nil {
			t.Fatalf("%s: expected a parse error", tc.name)
		}
	}
}

func TestSubsetRowsKeepsLibSizes(t *testing.T) {
	m := &Matrix{
		GeneIDs:  []string{"a", "b"},
		Samples:  testSamples(),
		Counts:   [][]float64{{5, 5, 5}, {1, 1, 1}},
		LibSizes: []float64{100, 200, 300},
	}

	sub, err := m.SubsetRows([]bool{true, false})
	if err != nil {
		t.Fatal(err)
	}

	if sub.NGenes() != 1 {
		t.Fatalf("expected 1 row, got %d", sub.NGenes())
	}

	// Library sizes are frozen at ingestion, not recomputed after a drop.
	for i := range m.LibSizes {
		if sub.LibSizes[i] != m.LibSizes[i] {
			t.Fatalf("LibSizes changed after SubsetRows")
		}
	}
}

func TestLogCPMZeroCountConstantAcrossSamples(t *testing.T) {
	m := &Matrix{
		GeneIDs:  []string{"a", "b"},
		Samples:  testSamples(),
		Counts:   [][]float64{{0, 0, 0}, {100, 200, 50}},
		LibSizes: []float64{1000, 2000, 500},
	}

	logCPM := m.LogCPM(2, m.LibSizes)
	for j := 1; j < 3; j++ {
		if math.Abs(logCPM[0][j]-logCPM[0][0]) > 1e-9 {
			t.Fatalf("zero-count log CPM varies across samples: %v", logCPM[0])
		}
	}
}
