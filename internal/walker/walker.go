// Package walker enumerates candidate images in a folder.
package walker

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

const readBatch = 64

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Candidate is one image file found in the input folder.
type Candidate struct {
	Name string
	Path string
}

// IsCandidate reports whether name carries a supported image extension,
// ignoring case. Dot files are skipped.
func IsCandidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return extensions[strings.ToLower(filepath.Ext(base))]
}

// Candidates lazily lists the candidate files directly inside dir, in the
// order the filesystem returns them. Subdirectories are not descended into.
// An error opening or reading dir is yielded once and ends the sequence.
func Candidates(dir string) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		f, err := os.Open(dir)
		if err != nil {
			yield(Candidate{}, fmt.Errorf("open input dir: %w", err))
			return
		}
		defer f.Close()

		for {
			entries, err := f.ReadDir(readBatch)
			for _, entry := range entries {
				if !entry.Type().IsRegular() || !IsCandidate(entry.Name()) {
					continue
				}
				c := Candidate{Name: entry.Name(), Path: filepath.Join(dir, entry.Name())}
				if !yield(c, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Candidate{}, fmt.Errorf("read input dir: %w", err))
				return
			}
		}
	}
}

// Collect drains Candidates into a slice.
func Collect(dir string) ([]Candidate, error) {
	var out []Candidate
	for c, err := range Candidates(dir) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
