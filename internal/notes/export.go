package notes

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleExport = "parquet_export"

// ExportParquet writes the merged artifacts of ids, in ascending id order, into the run's
// merged/notes.parquet dataset. It returns the number of exported rows.
// The dataset is replaced as a whole, so exporting again after a resumed run is safe.
func ExportParquet(ctx context.Context, artifacts *ArtifactStore, ids model.ItemSet) (int, error) {
	sorted := ids.Sorted()
	if len(sorted) == 0 {
		logger.Warnf("ParquetExport: no merged notes to export.")
		return 0, nil
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(MergedNote), 1)
	if err != nil {
		return 0, exception.NewStageFailure(moduleExport, "failed to create parquet writer", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, id := range sorted {
		var merged MergedNote
		if err := artifacts.Get(ctx, KindMerged, id, &merged); err != nil {
			return 0, exception.NewStageFailure(moduleExport, fmt.Sprintf("merged note %s cannot be exported", id), err)
		}
		if merged.Tags == nil {
			merged.Tags = []string{}
		}
		if err := pw.Write(merged); err != nil {
			return 0, exception.NewStageFailure(moduleExport, fmt.Sprintf("failed to write merged note %s", id), err)
		}
	}

	if err := writeStop(pw); err != nil {
		return 0, exception.NewStageFailure(moduleExport, "failed to finish parquet file", err)
	}

	name := artifacts.DatasetName()
	if err := artifacts.PutObject(ctx, name, buf.Bytes(), "application/x-parquet"); err != nil {
		return 0, exception.NewStageFailure(moduleExport, fmt.Sprintf("failed to upload '%s'", name), err)
	}
	logger.Infof("ParquetExport: wrote %d merged notes (%d bytes) to '%s'.", len(sorted), buf.Len(), name)
	return len(sorted), nil
}

// writeStop flushes the writer. WriteStop can panic on internal writer errors; the panic is
// returned as an error.
func writeStop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = perr
			} else {
				err = fmt.Errorf("panic value: %v", r)
			}
			logger.Errorf("ParquetExport: recovered from panic in WriteStop: %v", err)
		}
	}()
	return pw.WriteStop()
}
