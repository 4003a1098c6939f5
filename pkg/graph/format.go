package graph

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Format tags the on-disk layout of a degree list. Callers always pass the
// tag alongside the data source; nothing here looks at file names.
type Format string

const (
	// FormatDegreeText is one "<node> <degree>" pair per line, whitespace separated.
	FormatDegreeText Format = "txt"
	// FormatRankedCSV is a "Node,Degree" header followed by "<node>,<degree>" rows.
	FormatRankedCSV Format = "csv"
)

// ParseFormat converts a user supplied tag to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatDegreeText:
		return FormatDegreeText, nil
	case FormatRankedCSV:
		return FormatRankedCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// RankedCSVHeader is the header row of the ranked-output format.
var RankedCSVHeader = []string{"Node", "Degree"}

// ReadRecords parses degree records in file order without ranking them.
func ReadRecords(r io.Reader, f Format) ([]DegreeRecord, error) {
	switch f {
	case FormatDegreeText:
		return readDegreeText(r)
	case FormatRankedCSV:
		return readRankedCSV(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// ReadRanked parses degree records and ranks them descending by degree.
func ReadRanked(r io.Reader, f Format) (RankedList, error) {
	records, err := ReadRecords(r, f)
	if err != nil {
		return nil, err
	}
	return NewRankedList(records), nil
}

// ReadRankedFile opens path and parses it with the given format.
func ReadRankedFile(path string, f Format) (RankedList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	list, err := ReadRanked(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// ReadRecordsFile opens path and returns its records in file order.
func ReadRecordsFile(path string, f Format) ([]DegreeRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := ReadRecords(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// WriteRanked serializes a list in the given format.
func WriteRanked(w io.Writer, list RankedList, f Format) error {
	switch f {
	case FormatDegreeText:
		bw := bufio.NewWriter(w)
		for _, r := range list {
			if _, err := fmt.Fprintf(bw, "%d %d\n", r.Node, r.Degree); err != nil {
				return err
			}
		}
		return bw.Flush()
	case FormatRankedCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(RankedCSVHeader); err != nil {
			return err
		}
		for _, r := range list {
			row := []string{strconv.FormatInt(int64(r.Node), 10), strconv.FormatInt(r.Degree, 10)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func readDegreeText(r io.Reader) ([]DegreeRecord, error) {
	var records []DegreeRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: want \"<node> <degree>\"", ErrMalformedLine, line)
		}
		rec, err := parseRecord(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}

func readRankedCSV(r io.Reader) ([]DegreeRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 2 || !strings.EqualFold(header[0], RankedCSVHeader[0]) {
		return nil, fmt.Errorf("%w: header %v", ErrMalformedLine, header)
	}

	var records []DegreeRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(row) != 2 {
			return nil, fmt.Errorf("%w: line %d: want 2 columns, got %d", ErrMalformedLine, line, len(row))
		}
		rec, err := parseRecord(row[0], row[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(node, degree string) (DegreeRecord, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(node), 10, 64)
	if err != nil {
		return DegreeRecord{}, err
	}
	d, err := strconv.ParseInt(strings.TrimSpace(degree), 10, 64)
	if err != nil {
		return DegreeRecord{}, err
	}
	return DegreeRecord{Node: NodeID(n), Degree: d}, nil
}

// ReadEdges parses an edge-list snapshot: "<node1> <node2> [timestamp]" per
// line. Blank lines are skipped.
func ReadEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: want \"<node1> <node2> <timestamp>\"", ErrMalformedLine, line)
		}
		u, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		e := Edge{U: NodeID(u), V: NodeID(v)}
		if len(fields) >= 3 {
			ts, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: timestamp: %v", ErrMalformedLine, line, err)
			}
			e.Timestamp = ts
		}
		edges = append(edges, e)
	}
	return edges, sc.Err()
}

// ReadSnapshotFile loads an edge-list file as the snapshot at index.
func ReadSnapshotFile(path string, index int) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stream, err := ReadEdges(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Snapshot{Index: index, Path: path, Stream: stream}, nil
}
