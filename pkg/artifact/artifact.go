// Package artifact manages the files an experiment leaves on disk.
//
// Artifacts are the coordination medium between re-runs: a completed trial
// is recognized by the presence of its output file. Every write therefore
// goes to a temporary file in the target directory, is synced, and is then
// renamed over the final path, so a crash mid-write never leaves a partial
// file that looks complete.
//
// Every per-trial path is namespaced by experiment name and seed. Two trials
// never share a file, which is what keeps oracle lineages independent when
// experiments run side by side.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/orneryd/mdpredict/pkg/graph"
)

// WriteAtomic creates path by streaming fill into a temporary sibling file
// and renaming it into place once fill and fsync have succeeded.
func WriteAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("artifact: failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: failed to flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: failed to rename %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data to path atomically.
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteRanked writes a ranked list to path atomically in the given format.
func WriteRanked(path string, list graph.RankedList, f graph.Format) error {
	return WriteAtomic(path, func(w io.Writer) error {
		return graph.WriteRanked(w, list, f)
	})
}

// CopyAtomic copies src to dst atomically.
func CopyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Exists reports whether path names a regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// ListFiles returns the regular files of dir sorted by name, as full paths.
// Hidden files (including in-flight temporaries) are skipped.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	// os.ReadDir already returns entries sorted by filename.
	return files, nil
}
