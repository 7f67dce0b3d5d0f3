package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestBuiltin(t *testing.T) {
	cases := Builtin()

	var positives, negatives int
	texts := make(map[string]bool)
	for _, c := range cases {
		if c.Expected {
			positives++
		} else {
			negatives++
		}
		if c.Category == "" {
			t.Errorf("Case %q has no category", c.Text)
		}
		if texts[c.Text] {
			t.Errorf("Duplicate case %q", c.Text)
		}
		texts[c.Text] = true
	}

	if positives == 0 || negatives == 0 {
		t.Errorf("Corpus needs both classes, got %d positive and %d negative", positives, negatives)
	}
	for _, text := range []string{
		"john dot doe at example dot com",
		"one two three, four five, six seven eight nine",
	} {
		if !texts[text] {
			t.Errorf("Built-in corpus must include %q", text)
		}
	}
}

func TestDetectFileFormat(t *testing.T) {
	cases := map[string]FileFormat{
		"corpus.csv":     FormatCSV,
		"corpus.CSV":     FormatCSV,
		"corpus.parquet": FormatParquet,
		"corpus.jsonl":   FormatJSON,
		"corpus.json":    FormatJSON,
		"corpus":         FormatCSV,
	}
	for name, want := range cases {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	loader := NewLoader(nil)
	ctx := context.Background()

	t.Run("Builtin", func(t *testing.T) {
		result, err := loader.Load(ctx, "")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(result.Cases) != len(Builtin()) {
			t.Errorf("Expected built-in corpus, got %d cases", len(result.Cases))
		}
	})

	t.Run("CSV", func(t *testing.T) {
		path := writeFile(t, "corpus.csv", strings.Join([]string{
			"category,text,expected",
			`obfuscated_email,"john dot doe at example dot com",true`,
			`control,"What is the capital of France?",0`,
			`,"Call 555-123-4567",yes`,
			`control,"",false`,
			`control,"What is the capital of France?",0`,
			`control,"Is this PII?",maybe`,
		}, "\n"))

		result, err := loader.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if len(result.Cases) != 3 {
			t.Fatalf("Expected 3 valid cases, got %d: %+v", len(result.Cases), result.Cases)
		}
		if result.Invalid != 2 || result.Duplicates != 1 || result.TotalRows != 6 {
			t.Errorf("Unexpected tallies: %+v", result)
		}
		if !result.Cases[0].Expected || result.Cases[0].Category != "obfuscated_email" {
			t.Errorf("Unexpected first case: %+v", result.Cases[0])
		}
		if result.Cases[2].Category != "pii" {
			t.Errorf("Missing category should default from the label, got %q", result.Cases[2].Category)
		}
	})

	t.Run("CSVMissingColumns", func(t *testing.T) {
		path := writeFile(t, "bad.csv", "text,label\nhello,1\n")
		if _, err := loader.Load(ctx, path); err == nil {
			t.Error("Expected error for missing expected column")
		}
	})

	t.Run("JSONLines", func(t *testing.T) {
		path := writeFile(t, "corpus.jsonl", strings.Join([]string{
			`{"text":"My SSN is 123-45-6789","expected":true,"category":"ssn"}`,
			`{"text":"Describe the water cycle.","expected":false,"category":"control"}`,
		}, "\n"))

		result, err := loader.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(result.Cases) != 2 || result.Cases[0].Category != "ssn" || result.Cases[1].Expected {
			t.Errorf("Unexpected cases: %+v", result.Cases)
		}
	})

	t.Run("Parquet", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.parquet")
		want := Builtin()[:5]
		if err := WriteParquet(path, want); err != nil {
			t.Fatalf("WriteParquet failed: %v", err)
		}

		result, err := loader.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(result.Cases) != len(want) {
			t.Fatalf("Expected %d cases, got %d", len(want), len(result.Cases))
		}
		for i := range want {
			if result.Cases[i] != want[i] {
				t.Errorf("Case %d: got %+v, want %+v", i, result.Cases[i], want[i])
			}
		}
	})

	t.Run("NoValidCases", func(t *testing.T) {
		path := writeFile(t, "empty.csv", "text,expected\n")
		if _, err := loader.Load(ctx, path); err == nil {
			t.Error("Expected error for corpus without valid cases")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := loader.Load(ctx, filepath.Join(t.TempDir(), "nope.csv")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		path := writeFile(t, "corpus.csv", "text,expected\nhello,0\n")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := loader.Load(cancelled, path); err == nil {
			t.Error("Expected error for cancelled context")
		}
	})
}
