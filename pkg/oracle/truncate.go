package oracle

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/graph"
	"github.com/orneryd/mdpredict/pkg/nbar"
)

var ErrConfigMismatch = errors.New("oracle: paired input count mismatch")

// Truncate turns every all-pairs degree file of srcDir (sorted by name) into
// a per-snapshot predictor holding its first n̄ records, where n̄ comes from
// the matching line of nbarFile. Output files are named
// "<prefix>_<suffix>.txt", suffix being the part of the input base name
// after its last underscore. It returns the written paths.
func Truncate(srcDir, nbarFile, prefix, outDir string) ([]string, error) {
	files, err := artifact.ListFiles(srcDir)
	if err != nil {
		return nil, err
	}
	values, err := nbar.ReadValues(nbarFile)
	if err != nil {
		return nil, err
	}
	if len(files) != len(values) {
		return nil, fmt.Errorf("%w: %d oracle files vs %d n̄ values", ErrConfigMismatch, len(files), len(values))
	}

	out := make([]string, 0, len(files))
	for i, src := range files {
		records, err := graph.ReadRecordsFile(src, graph.FormatDegreeText)
		if err != nil {
			return nil, err
		}
		n := min(max(values[i], 0), len(records))

		dst := filepath.Join(outDir, TruncatedName(prefix, filepath.Base(src)))
		if err := artifact.WriteRanked(dst, graph.RankedList(records[:n]), graph.FormatDegreeText); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

// TruncatedName maps "all_pairs_s03.txt" to "<prefix>_s03.txt".
func TruncatedName(prefix, base string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		stem = stem[i+1:]
	}
	return prefix + "_" + stem + ".txt"
}
