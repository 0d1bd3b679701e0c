package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

const archiveExt = ".parquet"

// ArchivedMatch is one finished match as stored in the archive. Settings and
// Actions hold the JSON form of the record fields of the same name.
type ArchivedMatch struct {
	Key           string `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt     int64  `parquet:"name=created_at, type=INT64"`
	FinishedAt    int64  `parquet:"name=finished_at, type=INT64"`
	WhiteParty    string `parquet:"name=white_party, type=BYTE_ARRAY, convertedtype=UTF8"`
	BlackParty    string `parquet:"name=black_party, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status        string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason        string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActionCount   int32  `parquet:"name=action_count, type=INT32"`
	FinalNotation string `parquet:"name=final_notation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Settings      string `parquet:"name=settings, type=BYTE_ARRAY, convertedtype=UTF8"`
	Actions       string `parquet:"name=actions, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func NewArchivedMatch(rec model.Record, result rules.Result, final rules.Position, finishedAt time.Time) (ArchivedMatch, error) {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return ArchivedMatch{}, fmt.Errorf("encode settings: %w", err)
	}
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return ArchivedMatch{}, fmt.Errorf("encode actions: %w", err)
	}
	return ArchivedMatch{
		Key:           rec.Key,
		CreatedAt:     rec.CreatedAt.UnixMilli(),
		FinishedAt:    finishedAt.UnixMilli(),
		WhiteParty:    rec.WhiteParty,
		BlackParty:    rec.BlackParty,
		Status:        string(result.Status),
		Reason:        string(result.Reason),
		ActionCount:   int32(len(rec.Actions)),
		FinalNotation: rules.Encode(final),
		Settings:      string(settings),
		Actions:       string(actions),
	}, nil
}

// Record decodes the row back into a match record.
func (a ArchivedMatch) Record() (model.Record, error) {
	rec := model.Record{
		Key:        a.Key,
		CreatedAt:  time.UnixMilli(a.CreatedAt).UTC(),
		WhiteParty: a.WhiteParty,
		BlackParty: a.BlackParty,
		Result:     a.Result(),
	}
	if err := json.Unmarshal([]byte(a.Settings), &rec.Settings); err != nil {
		return model.Record{}, fmt.Errorf("decode settings of %s: %w", a.Key, err)
	}
	if err := json.Unmarshal([]byte(a.Actions), &rec.Actions); err != nil {
		return model.Record{}, fmt.Errorf("decode actions of %s: %w", a.Key, err)
	}
	return rec, nil
}

func (a ArchivedMatch) Result() rules.Result {
	return rules.Result{Status: rules.Status(a.Status), Reason: rules.ResultReason(a.Reason)}
}

// Archive writes finished matches to a directory, one parquet file each.
type Archive struct {
	dir      string
	parallel int64
}

func NewArchive(dir string, parallel int64) (*Archive, error) {
	if parallel < 1 {
		parallel = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir, parallel: parallel}, nil
}

func (a *Archive) Dir() string { return a.dir }

func (a *Archive) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return filepath.Join(a.dir, key+archiveExt), nil
}

func (a *Archive) Write(row ArchivedMatch) error {
	path, err := a.path(row.Key)
	if err != nil {
		return err
	}
	fileWriter, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	defer fileWriter.Close()

	parquetWriter, err := writer.NewParquetWriter(fileWriter, new(ArchivedMatch), a.parallel)
	if err != nil {
		return err
	}
	parquetWriter.CompressionType = parquet.CompressionCodec_SNAPPY

	if err := parquetWriter.Write(row); err != nil {
		return err
	}
	if err := parquetWriter.WriteStop(); err != nil {
		return err
	}
	return fileWriter.Close()
}

// Files lists the archive files in dir, sorted by name.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == archiveExt {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile returns every row in one archive file.
func ReadFile(path string, parallel int64) ([]ArchivedMatch, error) {
	if parallel < 1 {
		parallel = 1
	}
	fileReader, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fileReader.Close()

	parquetReader, err := reader.NewParquetReader(fileReader, new(ArchivedMatch), parallel)
	if err != nil {
		return nil, err
	}
	defer parquetReader.ReadStop()

	num := int(parquetReader.GetNumRows())
	rows := make([]ArchivedMatch, num)
	if num == 0 {
		return rows, nil
	}
	if err := parquetReader.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
