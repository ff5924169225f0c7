package rnadiff

import (
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"os/user"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectDataType(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		want  DataType
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00}, DataTypeGzip},
		{"zip", []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}, DataTypeZip},
		{"xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, DataTypeXZ},
		{"bzip2", []byte{0x42, 0x5a, 0x68, 0x39, 0x31, 0x41}, DataTypeBZip2},
		{"plain", []byte("GENE01\t12\n"), DataTypeNoCompression},
	}

	for _, test := range tests {
		got, err := DetectDataType(bytes.NewReader(test.bytes))
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("%s: got data type %d, want %d", test.name, got, test.want)
		}
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want rune
	}{
		{"tab", "gene_id\tcount\nGENE01\t10\nGENE02\t20\n", '\t'},
		{"comma", "gene_id,count\nGENE01,10\nGENE02,20\n", ','},
		{"single column falls back to tab", "GENE01\nGENE02\nGENE03\n", '\t'},
	}

	for _, test := range tests {
		if got := DetectDelimiter(strings.NewReader(test.data)); got != test.want {
			t.Errorf("%s: got %q, want %q", test.name, got, test.want)
		}
	}
}

func TestOpenMaybeCompressedGzipRoundTrip(t *testing.T) {
	content := "GENE01\t12\nGENE02\t0\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "counts.txt.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	rc, err := OpenMaybeCompressed(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	got, err := ioutil.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("got %q, want %q", string(got), content)
	}
}

func TestOpenMaybeCompressedPlainFile(t *testing.T) {
	content := "GENE01\t12\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "counts.txt")
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rc, err := OpenMaybeCompressed(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	got, err := ioutil.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("got %q, want %q", string(got), content)
	}
}

func TestExpandHome(t *testing.T) {
	if got := ExpandHome("/tmp/data.csv"); got != "/tmp/data.csv" {
		t.Errorf("absolute path changed: %q", got)
	}

	usr, err := user.Current()
	if err != nil {
		t.Skip("no current user available")
	}
	want := filepath.Join(usr.HomeDir, "data.csv")
	if got := ExpandHome("~/data.csv"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
