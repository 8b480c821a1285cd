package notes_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/tigerroll/notepipe/internal/notes"
)

// bytesFile is a read-only source.ParquetFile over an in-memory parquet file.
type bytesFile struct {
	*bytes.Reader
	data []byte
}

func (f *bytesFile) Write(p []byte) (int, error) { return 0, errors.New("read-only") }
func (f *bytesFile) Close() error                { return nil }
func (f *bytesFile) Open(string) (source.ParquetFile, error) {
	return &bytesFile{Reader: bytes.NewReader(f.data), data: f.data}, nil
}
func (f *bytesFile) Create(string) (source.ParquetFile, error) {
	return nil, errors.New("read-only")
}

func readMerged(t *testing.T, data []byte) []notes.MergedNote {
	t.Helper()
	pr, err := reader.NewParquetReader(&bytesFile{Reader: bytes.NewReader(data), data: data}, new(notes.MergedNote), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]notes.MergedNote, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}
