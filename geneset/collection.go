// Package geneset tests named collections of genes for coordinated
// differential expression: over-representation among the significant genes,
// and competitive rank-based enrichment over the full statistics.
package geneset

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"

	"github.com/kindlab/rnadiff"
)

// Collection maps a set name to the numeric gene identifiers it contains.
// Collections are read-only reference data; identifiers unknown to the
// analysis simply contribute to no category.
type Collection map[string][]int

// LoadCollection reads a gene-set collection, choosing the parser by file
// extension: .gmt (tab-separated: name, description, members...) or .json
// (object of name to identifier array). Compressed files are handled
// transparently, with the compression suffix stripped before the extension
// check.
func LoadCollection(path string) (Collection, error) {
	rc, err := rnadiff.OpenMaybeCompressed(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	fileBytes, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	name := strings.ToLower(path)
	for _, suffix := range []string{".gz", ".xz", ".bz2", ".zip"} {
		name = strings.TrimSuffix(name, suffix)
	}

	switch filepath.Ext(name) {
	case ".gmt":
		return parseGMT(path, fileBytes)
	case ".json":
		return parseJSON(path, fileBytes)
	}

	return nil, pfx.Err(fmt.Errorf("%s: unrecognized gene-set collection format (want .gmt or .json)", path))
}

func parseGMT(path string, fileBytes []byte) (Collection, error) {
	out := make(Collection)

	for lineNum, line := range strings.Split(string(fileBytes), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, pfx.Err(fmt.Errorf("%s line %d: GMT rows need a name, a description, and at least one member", path, lineNum+1))
		}

		name := fields[0]
		if _, exists := out[name]; exists {
			return nil, pfx.Err(fmt.Errorf("%s line %d: duplicate set name %q", path, lineNum+1, name))
		}

		var members []int
		for _, f := range fields[2:] {
			if f == "" {
				continue
			}
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, pfx.Err(fmt.Errorf("%s line %d: member %q is not a numeric gene identifier", path, lineNum+1, f))
			}
			members = append(members, id)
		}

		out[name] = members
	}

	if len(out) == 0 {
		return nil, pfx.Err(fmt.Errorf("%s: no gene sets parsed", path))
	}

	return out, nil
}

func parseJSON(path string, fileBytes []byte) (Collection, error) {
	out := make(Collection)
	if err := json.Unmarshal(fileBytes, &out); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	if len(out) == 0 {
		return nil, pfx.Err(fmt.Errorf("%s: no gene sets parsed", path))
	}

	return out, nil
}
