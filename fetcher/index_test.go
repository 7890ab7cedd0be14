package fetcher

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndex(t *testing.T) {
	csv := "seq,method,url\n" +
		"1,GET,https://otakudesu.best/\n" +
		"2,GET,https://otakudesu.best/anime-list/\n" +
		"x,GET,https://otakudesu.best/bad-seq/\n" +
		"3,GET,\n" +
		"4\n"

	idx, err := LoadIndex(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	seq, ok := idx.Lookup("https://otakudesu.best/anime-list/")
	assert.True(t, ok)
	assert.Equal(t, 2, seq)

	_, ok = idx.Lookup("https://otakudesu.best/bad-seq/")
	assert.False(t, ok)
	assert.Equal(t, 2, idx.MaxSeq())
}

func TestLoadIndexRequiresColumns(t *testing.T) {
	_, err := LoadIndex(strings.NewReader("id,link\n1,https://otakudesu.best/\n"))
	assert.Error(t, err)

	idx, err := LoadIndex(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
}

func TestLoadIndexFileMissing(t *testing.T) {
	idx, err := LoadIndexFile(filepath.Join(t.TempDir(), "index.csv"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	require.NotNil(t, idx)
	assert.Zero(t, idx.Len())
}

func TestIndexWriteTo(t *testing.T) {
	idx := NewIndex()
	idx.Add("https://otakudesu.best/b/", 2)
	idx.Add("https://otakudesu.best/", 1)

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "seq,url\n1,https://otakudesu.best/\n2,https://otakudesu.best/b/\n", buf.String())

	reloaded, err := LoadIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestNilIndexLookup(t *testing.T) {
	var idx *Index
	_, ok := idx.Lookup("https://otakudesu.best/")
	assert.False(t, ok)
	assert.Zero(t, idx.Len())
}
