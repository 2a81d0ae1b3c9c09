package pool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ExportFormat specifies the output format for pool export
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures pool export behavior
type ExportOptions struct {
	// Format specifies the output format (yaml or json)
	Format ExportFormat

	// PrettyPrint enables indented output
	PrettyPrint bool

	// AddComments adds a YAML header (YAML only)
	AddComments bool
}

// DefaultExportOptions returns the default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:      FormatYAML,
		PrettyPrint: true,
		AddComments: true,
	}
}

// ImportOptions configures pool import behavior
type ImportOptions struct {
	// ValidateStrict performs full validation (default: true)
	ValidateStrict bool

	// GenerateNewID generates a new ID for the imported pool
	GenerateNewID bool

	// SkipMigration rejects files on an older schema instead of upgrading them
	SkipMigration bool
}

// DefaultImportOptions returns the default import options
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		ValidateStrict: true,
		GenerateNewID:  true,
	}
}

// Export serializes a pool to the specified format
func Export(p *Pool, opts ExportOptions) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}

	out := *p
	out.Strategies = append([]Entry(nil), p.Strategies...)

	out.Metadata.UpdatedAt = time.Now()
	if out.Metadata.ID == "" {
		out.Metadata.ID = uuid.New().String()
	}
	if out.Metadata.SchemaVersion == "" {
		out.Metadata.SchemaVersion = SchemaVersion
	}
	if out.Metadata.Source == "" {
		out.Metadata.Source = "export"
	}

	switch opts.Format {
	case FormatYAML:
		return exportToYAML(&out, opts)
	case FormatJSON:
		return exportToJSON(&out, opts)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

func exportToYAML(p *Pool, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# AlphaFuse Strategy Pool\n")
		buf.WriteString(fmt.Sprintf("# Schema Version: %s\n", p.Metadata.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", time.Now().Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}

	if err := encoder.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode pool to YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(p *Pool, opts ExportOptions) ([]byte, error) {
	var data []byte
	var err error

	if opts.PrettyPrint {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = json.Marshal(p)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode pool to JSON: %w", err)
	}

	return data, nil
}

// ExportToFile exports a pool to a file, picking the format from the extension
// when none is set
func ExportToFile(p *Pool, path string, opts ExportOptions) error {
	if opts.Format == "" {
		switch filepath.Ext(path) {
		case ".json":
			opts.Format = FormatJSON
		default:
			opts.Format = FormatYAML
		}
	}

	data, err := Export(p, opts)
	if err != nil {
		return fmt.Errorf("failed to export pool: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write pool file: %w", err)
	}

	return nil
}

// Import deserializes a pool from YAML or JSON bytes, migrating older schema
// versions to the current one
func Import(data []byte, opts ImportOptions) (*Pool, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pool data")
	}

	var p Pool
	var parseErr error

	// First non-whitespace character decides which decoder goes first
	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{'
		break
	}

	if isJSON {
		if err := json.Unmarshal(data, &p); err != nil {
			if yamlErr := yaml.Unmarshal(data, &p); yamlErr != nil {
				parseErr = fmt.Errorf("failed to parse as JSON (%v) or YAML (%v)", err, yamlErr)
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &p); err != nil {
			if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
				parseErr = fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", err, jsonErr)
			}
		}
	}

	if parseErr != nil {
		return nil, parseErr
	}

	if p.Metadata.SchemaVersion == "" {
		p.Metadata.SchemaVersion = "1.0"
	}

	if p.Metadata.SchemaVersion != SchemaVersion {
		if opts.SkipMigration {
			return nil, fmt.Errorf("%w: pool uses schema %s, current is %s",
				ErrIncompatibleVersion, p.Metadata.SchemaVersion, SchemaVersion)
		}
		if err := Migrate(&p); err != nil {
			return nil, fmt.Errorf("failed to migrate pool: %w", err)
		}
	}

	if opts.GenerateNewID {
		p.Metadata.ID = uuid.New().String()
	}

	p.Metadata.UpdatedAt = time.Now()
	if p.Metadata.Source == "" {
		p.Metadata.Source = "import"
	}

	validate := p.ValidateQuick
	if opts.ValidateStrict {
		validate = p.Validate
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("pool validation failed: %w", err)
	}

	return &p, nil
}

// ImportFromFile imports a pool from a file
func ImportFromFile(path string, opts ImportOptions) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool file: %w", err)
	}

	p, err := Import(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to import pool from %s: %w", path, err)
	}

	return p, nil
}

// ImportFromReader imports a pool from an io.Reader
func ImportFromReader(r io.Reader, opts ImportOptions) (*Pool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool data: %w", err)
	}

	return Import(data, opts)
}

func fileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
