package nbar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/graph"
)

// ProcessFolders pairs the sorted files of datasetDir (edge lists) with the
// sorted files of degreesDir (degree text files), computes n̄ for each pair
// and writes one value per line to output.
func (s *Sizer) ProcessFolders(datasetDir, degreesDir, output string) ([]int, error) {
	edgeFiles, err := artifact.ListFiles(datasetDir)
	if err != nil {
		return nil, fmt.Errorf("nbar: list dataset folder: %w", err)
	}
	degreeFiles, err := artifact.ListFiles(degreesDir)
	if err != nil {
		return nil, fmt.Errorf("nbar: list degrees folder: %w", err)
	}
	if len(edgeFiles) != len(degreeFiles) {
		return nil, fmt.Errorf("%w: %d dataset files vs %d degree files",
			ErrConfigMismatch, len(edgeFiles), len(degreeFiles))
	}

	values := make([]int, 0, len(edgeFiles))
	for i, edgePath := range edgeFiles {
		snap, err := graph.ReadSnapshotFile(edgePath, i)
		if err != nil {
			return nil, err
		}
		degrees, err := graph.ReadRecordsFile(degreeFiles[i], graph.FormatDegreeText)
		if err != nil {
			return nil, err
		}
		v, err := s.ComputeForSnapshot(degrees, snap.Edges())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", edgePath, err)
		}
		values = append(values, v)
		s.Logger.Info("computed predictor size",
			zap.String("snapshot", filepath.Base(edgePath)),
			zap.Int("nbar", v))
	}

	if err := WriteValues(output, values); err != nil {
		return nil, err
	}
	return values, nil
}

// ReadValues loads an n̄-values file: one integer per line, blank lines
// skipped.
func ReadValues(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseValues(f, path)
}

func parseValues(r io.Reader, name string) ([]int, error) {
	var values []int
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", name, line, graph.ErrMalformedLine)
		}
		values = append(values, v)
	}
	return values, sc.Err()
}

// WriteValues atomically writes one value per line.
func WriteValues(path string, values []int) error {
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		for _, v := range values {
			if _, err := fmt.Fprintf(w, "%d\n", v); err != nil {
				return err
			}
		}
		return nil
	})
}
