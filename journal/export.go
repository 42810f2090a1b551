package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID            string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeliveryID    string `parquet:"name=delivery_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind          string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	ParticipantID string `parquet:"name=participant_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	BattleID      string `parquet:"name=battle_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome       string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	Detail        string `parquet:"name=detail, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt     string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes the entries matching filter to path and returns the
// number of rows written.
func (j *Journal) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	entries, err := j.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("journal: create export dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		row := &parquetRow{
			ID:            entry.ID.String(),
			DeliveryID:    entry.DeliveryID,
			Kind:          entry.Kind,
			ParticipantID: entry.ParticipantID,
			BattleID:      entry.BattleID,
			Outcome:       entry.Outcome,
			Detail:        entry.Detail,
			CreatedAt:     entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("journal: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("journal: close parquet file: %w", err)
	}
	return len(entries), nil
}
