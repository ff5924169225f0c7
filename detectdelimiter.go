package rnadiff

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetectDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file. Count files and annotation
// references in the wild arrive tab-, comma-, or space-delimited; tab is the
// fallback since that is what the counting tools emit.
func DetectDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return '\t'
}
