package recordstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// Store is the delimited-text product store
type Store struct {
	path      string
	backupDir string
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
	// columns beyond the fixed schema seen on the last load, in file order
	extraColumns []string
}

// NewStore creates a store backed by the file at path
func NewStore(path, backupDir string, logger *zap.Logger) *Store {
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:      path,
		backupDir: backupDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Path returns the store file location
func (s *Store) Path() string {
	return s.path
}

// Load reads every record from the store file
func (s *Store) Load(ctx context.Context) ([]domain.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	defer f.Close()

	records, header, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreIO, s.path, err)
	}

	s.mu.Lock()
	s.extraColumns = extraColumns(header)
	s.mu.Unlock()

	s.logger.Debug("loaded record store",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Save replaces the store file with records. The write goes through a temp file
// in the same directory so a failed save never truncates the existing store.
func (s *Store) Save(ctx context.Context, records []domain.ProductRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".products-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	s.mu.Lock()
	header := s.header(records)
	s.mu.Unlock()

	if err := WriteRecords(tmp, header, records); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	s.logger.Info("saved record store",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
	)
	return nil
}

// SaveAs writes records to another file in the store format, leaving the store untouched
func (s *Store) SaveAs(ctx context.Context, records []domain.ProductRecord, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	s.mu.Lock()
	header := s.header(records)
	s.mu.Unlock()

	if err := WriteRecords(f, header, records); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	return nil
}

// Backup copies the current store file to products_<label>_<timestamp>.csv in the backup directory
func (s *Store) Backup(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if label == "" {
		label = "backup"
	}

	src, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	base := fmt.Sprintf("products_%s_%s", label, s.now().Format("20060102_150405"))
	dst, path, err := createUnique(s.backupDir, base, ".csv")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	s.logger.Info("created store backup", zap.String("backup", path))
	return path, nil
}

// header is the fixed schema followed by extra columns: known ones first in
// their original order, then any new ones sorted.
func (s *Store) header(records []domain.ProductRecord) []string {
	header := append([]string{}, domain.RecordColumns...)
	seen := make(map[string]bool)
	for _, c := range s.extraColumns {
		seen[c] = true
		header = append(header, c)
	}

	var added []string
	for _, r := range records {
		for k := range r.Extra {
			if !seen[k] {
				seen[k] = true
				added = append(added, k)
			}
		}
	}
	sort.Strings(added)
	return append(header, added...)
}

// ReadRecords parses a delimited stream. The first line is the header.
func ReadRecords(r io.Reader) ([]domain.ProductRecord, []string, error) {
	br := bufio.NewReader(r)

	var header []string
	var records []domain.ProductRecord
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, err
		}

		trimmed := strings.TrimSpace(line)
		if header == nil {
			trimmed = strings.TrimPrefix(trimmed, "\ufeff")
			if trimmed != "" {
				header = SplitLine(trimmed)
				for i := range header {
					header[i] = strings.TrimSpace(header[i])
				}
			}
		} else if trimmed != "" {
			records = append(records, FromRawRow(header, SplitLine(trimmed)))
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	if header == nil {
		return nil, nil, errors.New("missing header line")
	}
	return records, header, nil
}

// WriteRecords writes header and records in the delimited format
func WriteRecords(w io.Writer, header []string, records []domain.ProductRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(header, Delimiter) + "\n"); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := bw.WriteString(JoinFields(ToRawRow(r, header)) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func extraColumns(header []string) []string {
	known := make(map[string]bool, len(domain.RecordColumns))
	for _, c := range domain.RecordColumns {
		known[c] = true
	}
	var extra []string
	for _, c := range header {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	return extra
}

func createUnique(dir, base, ext string) (*os.File, string, error) {
	path := filepath.Join(dir, base+ext)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) || i > 100 {
			return nil, "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}
