package engine

// Exchange format, version 1.
//
// Exact count:
//
//	<exact> 0 <dataset> <output>
//
// The edge count is the last token of the second-to-last line of <output>.
//
// Core algorithm:
//
//	<core> 0 <seed> <budget> <epsilon> <delta> <dataset> <oracle> nodes <prefix> [1 <capacity> <size>]
//
// <oracle> is a degree text file. The trailing triple is present only when a
// summary refresh is requested. Outputs:
//
//	<prefix>_predicted_nodes.csv  ranked CSV, required
//	<prefix>_top_nodes.csv        ranked CSV, the refresh; present only on request
//	<prefix>_metrics.txt          "<name> <value>" lines, optional
//
// Summary:
//
//	<summary> <dataset> <prefix> <capacity> <seed> <capacity>
//
// writes <prefix>_top_nodes.csv.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ExchangeVersion is the version of the file protocol above.
const ExchangeVersion = 1

const (
	predictedSuffix = "_predicted_nodes.csv"
	freshSuffix     = "_top_nodes.csv"
	metricsSuffix   = "_metrics.txt"
)

// ParseExactOutput extracts the edge count from exact-count output.
func ParseExactOutput(r io.Reader) (int, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: exact output has %d lines, want at least 2", ErrExchange, len(lines))
	}
	fields := strings.Fields(lines[len(lines)-2])
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty edge-count line", ErrExchange)
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: edge count: %v", ErrExchange, err)
	}
	return n, nil
}

// ParseMetrics reads "<name> <value>" lines. Blank lines are skipped.
func ParseMetrics(r io.Reader) (map[string]float64, error) {
	metrics := make(map[string]float64)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: metrics line %d", ErrExchange, line)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metrics line %d: %v", ErrExchange, line, err)
		}
		metrics[fields[0]] = v
	}
	return metrics, sc.Err()
}

func readMetricsFile(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMetrics(f)
}
