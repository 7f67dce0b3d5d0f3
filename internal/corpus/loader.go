// Package corpus provides the labeled PII examples the detection evaluator runs over.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/guardbench/internal/logger"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Loader reads corpus files (CSV, Parquet, or JSON lines)
type Loader struct {
	logger *logger.Logger
}

// NewLoader creates a new corpus loader
func NewLoader(log *logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{logger: log.WithComponent("corpus")}
}

// Load returns the built-in corpus when path is empty, otherwise the
// validated, de-duplicated cases from the file in file order
func (l *Loader) Load(ctx context.Context, path string) (*LoadResult, error) {
	if path == "" {
		cases := Builtin()
		l.logger.Info("Using built-in corpus", zap.Int("cases", len(cases)))
		return &LoadResult{Cases: cases, TotalRows: int64(len(cases)), Valid: int64(len(cases))}, nil
	}

	start := time.Now()
	format := DetectFileFormat(path)
	l.logger.Info("Loading corpus", zap.String("file", path), zap.String("format", string(format)))

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer file.Close()

	result := &LoadResult{}
	seen := make(map[string]bool)
	add := func(c Case, rowErr error) {
		result.TotalRows++
		if rowErr == nil {
			rowErr = validateCase(&c)
		}
		if err := rowErr; err != nil {
			result.Invalid++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", result.TotalRows, err))
			l.logger.Debug("Invalid corpus row", zap.Int64("row", result.TotalRows), zap.Error(err))
			return
		}

		hash := computeTextHash(c.Text)
		if seen[hash] {
			result.Duplicates++
			return
		}
		seen[hash] = true

		result.Valid++
		result.Cases = append(result.Cases, c)
	}

	switch format {
	case FormatCSV:
		err = readCSV(ctx, file, add)
	case FormatParquet:
		err = readParquet(ctx, file, add)
	case FormatJSON:
		err = readJSON(ctx, file, add)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s corpus read failed: %w", format, err)
	}

	result.Duration = time.Since(start)
	if len(result.Cases) == 0 {
		return result, fmt.Errorf("corpus %s contains no valid cases", path)
	}

	l.logger.Info("Corpus loaded",
		zap.Int64("total_rows", result.TotalRows),
		zap.Int64("valid", result.Valid),
		zap.Int64("invalid", result.Invalid),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// readCSV reads text,expected,category rows after a header line
func readCSV(ctx context.Context, r io.Reader, add func(Case, error)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns, err := csvColumns(header)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		c := Case{}
		if i := columns["text"]; i < len(record) {
			c.Text = record[i]
		}
		if i := columns["category"]; i >= 0 && i < len(record) {
			c.Category = record[i]
		}
		if i := columns["expected"]; i < len(record) {
			expected, err := parseBool(record[i])
			if err != nil {
				add(c, fmt.Errorf("invalid expected value %q", record[i]))
				continue
			}
			c.Expected = expected
		}
		add(c, nil)
	}
}

func csvColumns(header []string) (map[string]int, error) {
	columns := map[string]int{"text": -1, "expected": -1, "category": -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, ok := columns[name]; ok {
			columns[name] = i
		}
	}
	if columns["text"] < 0 || columns["expected"] < 0 {
		return nil, fmt.Errorf("CSV header must contain text and expected columns, got %v", header)
	}
	return columns, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "pii":
		return true, nil
	case "0", "false", "no", "clean":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}

// readParquet reads rows matching the Case schema
func readParquet(ctx context.Context, r io.ReaderAt, add func(Case, error)) error {
	reader := parquet.NewReader(r)
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var c Case
		err := reader.Read(&c)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read Parquet record: %w", err)
		}
		add(c, nil)
	}
}

// readJSON reads one JSON object per line
func readJSON(ctx context.Context, r io.Reader, add func(Case, error)) error {
	decoder := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var c Case
		err := decoder.Decode(&c)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read JSON record: %w", err)
		}
		add(c, nil)
	}
}

// validateCase validates and normalizes a corpus case
func validateCase(c *Case) error {
	c.Category = strings.TrimSpace(c.Category)
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("empty text")
	}
	if len(c.Text) > MaxTextLength {
		return fmt.Errorf("text too long: %d bytes", len(c.Text))
	}
	if c.Category == "" {
		if c.Expected {
			c.Category = "pii"
		} else {
			c.Category = "control"
		}
	}
	return nil
}

// WriteParquet writes cases to a Parquet file with the Case schema
func WriteParquet(path string, cases []Case) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create Parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file, parquet.SchemaOf(new(Case)))
	for i := range cases {
		if err := writer.Write(&cases[i]); err != nil {
			return fmt.Errorf("failed to write Parquet record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return file.Close()
}

// computeTextHash computes SHA-256 hash of the given text
func computeTextHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
