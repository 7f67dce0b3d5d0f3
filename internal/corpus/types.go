package corpus

import (
	"path/filepath"
	"strings"
	"time"
)

// Case is one labeled PII detection example
type Case struct {
	Text     string `parquet:"text" json:"text"`
	Expected bool   `parquet:"expected" json:"expected"`
	Category string `parquet:"category" json:"category"`
}

// LoadResult represents the result of loading a corpus file
type LoadResult struct {
	Cases      []Case        `json:"cases"`
	TotalRows  int64         `json:"total_rows"`
	Valid      int64         `json:"valid"`
	Invalid    int64         `json:"invalid"`
	Duplicates int64         `json:"duplicates"`
	Duration   time.Duration `json:"duration"`
	Errors     []string      `json:"errors,omitempty"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// MaxTextLength bounds a single corpus example
const MaxTextLength = 10000

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
