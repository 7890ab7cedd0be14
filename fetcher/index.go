package fetcher

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Index maps page URLs to the sequence number of their saved snapshot
type Index struct {
	mu   sync.RWMutex
	seqs map[string]int
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{seqs: make(map[string]int)}
}

// LoadIndex reads a CSV with a header row naming at least the url and seq
// columns. Rows with an empty URL or a non-numeric seq are skipped.
func LoadIndex(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}

	urlCol, seqCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "url":
			urlCol = i
		case "seq":
			seqCol = i
		}
	}
	if urlCol < 0 || seqCol < 0 {
		return nil, fmt.Errorf("index header must contain url and seq columns, got %v", header)
	}

	idx := NewIndex()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read index row: %w", err)
		}
		if urlCol >= len(record) || seqCol >= len(record) {
			continue
		}
		u := strings.TrimSpace(record[urlCol])
		seq, err := strconv.Atoi(strings.TrimSpace(record[seqCol]))
		if u == "" || err != nil {
			continue
		}
		idx.seqs[u] = seq
	}
	return idx, nil
}

// LoadIndexFile loads the index at path. A missing file yields an empty index
// and an error wrapping fs.ErrNotExist so callers can log and carry on.
func LoadIndexFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewIndex(), err
		}
		return nil, err
	}
	defer f.Close()
	return LoadIndex(f)
}

// Lookup returns the snapshot sequence number for rawURL
func (i *Index) Lookup(rawURL string) (int, bool) {
	if i == nil {
		return 0, false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	seq, ok := i.seqs[rawURL]
	return seq, ok
}

// Add records the snapshot sequence number for rawURL
func (i *Index) Add(rawURL string, seq int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seqs[rawURL] = seq
}

// Len returns the number of indexed URLs
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.seqs)
}

// MaxSeq returns the highest sequence number in the index, or 0
func (i *Index) MaxSeq() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	highest := 0
	for _, seq := range i.seqs {
		highest = max(highest, seq)
	}
	return highest
}

// WriteTo writes the index as CSV ordered by sequence number
func (i *Index) WriteTo(w io.Writer) (int64, error) {
	i.mu.RLock()
	type row struct {
		url string
		seq int
	}
	rows := make([]row, 0, len(i.seqs))
	for u, seq := range i.seqs {
		rows = append(rows, row{u, seq})
	}
	i.mu.RUnlock()

	slices.SortFunc(rows, func(a, b row) int {
		if a.seq != b.seq {
			return a.seq - b.seq
		}
		return strings.Compare(a.url, b.url)
	})

	cw := &countingWriter{w: w}
	writer := csv.NewWriter(cw)
	if err := writer.Write([]string{"seq", "url"}); err != nil {
		return cw.n, err
	}
	for _, r := range rows {
		if err := writer.Write([]string{strconv.Itoa(r.seq), r.url}); err != nil {
			return cw.n, err
		}
	}
	writer.Flush()
	return cw.n, writer.Error()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
