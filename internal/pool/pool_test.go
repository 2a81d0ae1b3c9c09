package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

func TestNewDefaultPool(t *testing.T) {
	p := NewDefaultPool("default")

	assert.Equal(t, SchemaVersion, p.Metadata.SchemaVersion)
	assert.Equal(t, "default", p.Metadata.Name)
	assert.NotEmpty(t, p.Strategies)
	assert.NoError(t, p.Validate())
}

func TestParseParamGrid(t *testing.T) {
	tests := []struct {
		name        string
		payload     interface{}
		want        backtest.ParamGrid
		errContains string
	}{
		{
			name:    "nil payload runs defaults",
			payload: nil,
			want:    backtest.ParamGrid{},
		},
		{
			name:    "blank string runs defaults",
			payload: "  ",
			want:    backtest.ParamGrid{},
		},
		{
			name:    "mapping passes through",
			payload: map[string]interface{}{"short": []interface{}{5, 10}},
			want:    backtest.ParamGrid{"short": {5, 10}},
		},
		{
			name:    "scalar becomes single candidate",
			payload: map[string]interface{}{"period": 14},
			want:    backtest.ParamGrid{"period": {14}},
		},
		{
			name:    "json string",
			payload: `{"short": [5, 10], "long": [20]}`,
			want:    backtest.ParamGrid{"short": {5.0, 10.0}, "long": {20.0}},
		},
		{
			name:    "double encoded json string",
			payload: `"{\"buy_score\": [0.6, 0.7]}"`,
			want:    backtest.ParamGrid{"buy_score": {0.6, 0.7}},
		},
		{
			name:    "raw bytes",
			payload: []byte(`{"period": [20]}`),
			want:    backtest.ParamGrid{"period": {20.0}},
		},
		{
			name:        "not json",
			payload:     "short=5",
			errContains: "invalid param payload",
		},
		{
			name:        "json array",
			payload:     `[1, 2]`,
			errContains: "must be an object",
		},
		{
			name:        "empty candidate list",
			payload:     map[string]interface{}{"short": []interface{}{}},
			errContains: "no candidate values",
		},
		{
			name:        "unsupported type",
			payload:     42,
			errContains: "unsupported param payload type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParamGrid(tt.payload)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGridKey(t *testing.T) {
	a := backtest.ParamGrid{"long": {20.0}, "short": {5.0, 10.0}}
	b := backtest.ParamGrid{"short": {5, 10}, "long": {20}}

	assert.Equal(t, GridKey(a), GridKey(b))
	assert.Equal(t, "{}", GridKey(nil))
}

func TestPool_Validate(t *testing.T) {
	t.Run("missing class", func(t *testing.T) {
		p := NewDefaultPool("p")
		p.Strategies = append(p.Strategies, Entry{Name: "nameless"})

		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strategies[3].class")
	})

	t.Run("bad params", func(t *testing.T) {
		p := NewDefaultPool("p")
		p.Strategies[1].ParamConfigs = "{oops"

		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strategies[1].param_configs")
	})

	t.Run("duplicate class and params", func(t *testing.T) {
		p := NewDefaultPool("p")
		p.Strategies = append(p.Strategies, Entry{
			Name:         "EMA again",
			Class:        "ema_cross",
			ParamConfigs: `{"long": [20, 26, 30], "short": [10, 12, 15]}`,
		})

		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicates strategies[1]")
	})

	t.Run("same class different params is fine", func(t *testing.T) {
		p := NewDefaultPool("p")
		p.Strategies = append(p.Strategies, Entry{Class: "ema_cross", ParamConfigs: map[string]interface{}{"short": 5}})

		assert.NoError(t, p.Validate())
	})

	t.Run("empty pool", func(t *testing.T) {
		p := &Pool{Metadata: Metadata{SchemaVersion: SchemaVersion, Name: "empty"}}

		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one strategy")
	})

	t.Run("unsupported schema", func(t *testing.T) {
		p := NewDefaultPool("p")
		p.Metadata.SchemaVersion = "3.0"

		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported schema version 3.0")
	})
}

func TestPool_ValidateQuick(t *testing.T) {
	p := NewDefaultPool("p")
	assert.NoError(t, p.ValidateQuick())

	p.Strategies[0].Class = ""
	err := p.ValidateQuick()
	require.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "strategies[0].class")
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, format := range []ExportFormat{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			original := NewDefaultPool("round-trip")

			opts := DefaultExportOptions()
			opts.Format = format
			data, err := Export(original, opts)
			require.NoError(t, err)

			imported, err := Import(data, DefaultImportOptions())
			require.NoError(t, err)

			assert.Equal(t, "round-trip", imported.Metadata.Name)
			require.Len(t, imported.Strategies, len(original.Strategies))

			for i, e := range imported.Strategies {
				assert.Equal(t, original.Strategies[i].Class, e.Class)

				want, err := ParseParamGrid(original.Strategies[i].ParamConfigs)
				require.NoError(t, err)
				got, err := ParseParamGrid(e.ParamConfigs)
				require.NoError(t, err)
				assert.Equal(t, GridKey(want), GridKey(got))
			}
		})
	}
}

func TestExport_Nil(t *testing.T) {
	_, err := Export(nil, DefaultExportOptions())
	assert.Error(t, err)
}

func TestExport_YAMLHeader(t *testing.T) {
	data, err := Export(NewDefaultPool("p"), DefaultExportOptions())
	require.NoError(t, err)

	assert.Contains(t, string(data), "# AlphaFuse Strategy Pool")
	assert.Contains(t, string(data), "schema_version: \"1.1\"")
}

func TestImport_GenerateNewID(t *testing.T) {
	p := NewDefaultPool("p")
	p.Metadata.ID = "fixed-id"

	data, err := Export(p, ExportOptions{Format: FormatJSON})
	require.NoError(t, err)

	imported, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)
	assert.NotEqual(t, "fixed-id", imported.Metadata.ID)

	kept, err := Import(data, ImportOptions{ValidateStrict: true})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", kept.Metadata.ID)
}

func TestImport_InvalidData(t *testing.T) {
	_, err := Import(nil, DefaultImportOptions())
	assert.Error(t, err)

	_, err = Import([]byte("{not json"), DefaultImportOptions())
	assert.Error(t, err)

	_, err = Import([]byte("metadata: [unclosed"), DefaultImportOptions())
	assert.Error(t, err)
}

func TestImport_MigratesV10(t *testing.T) {
	data := []byte(`
metadata:
  schema_version: "1.0"
  name: legacy
strategies:
  - class: ema_cross
    params: '{"short": [5, 10], "long": [30]}'
  - name: Hold
    class: buy_and_hold
`)

	p, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, p.Metadata.SchemaVersion)
	assert.Equal(t, "ema_cross", p.Strategies[0].Name)
	assert.Nil(t, p.Strategies[0].Params)

	grid, err := ParseParamGrid(p.Strategies[0].ParamConfigs)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Size())
	assert.Equal(t, "Hold", p.Strategies[1].Name)

	_, err = Import(data, ImportOptions{SkipMigration: true})
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestImport_NewerSchemaRejected(t *testing.T) {
	data := []byte(`{"metadata": {"schema_version": "2.0", "name": "future"}, "strategies": [{"class": "ema_cross"}]}`)

	_, err := Import(data, DefaultImportOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestExportToFile_ImportFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pool.json")

	require.NoError(t, ExportToFile(NewDefaultPool("file"), path, ExportOptions{PrettyPrint: true}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), raw[0], "extension picks JSON")

	p, err := ImportFromFile(path, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, "file", p.Metadata.Name)

	_, err = ImportFromFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultImportOptions())
	assert.Error(t, err)
}

func TestFileSource_ActivePool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, ExportToFile(NewDefaultPool("live"), path, DefaultExportOptions()))

	src := NewFileSource(path)
	mod := time.Unix(1000, 0)
	src.statFile = func(string) (time.Time, error) { return mod, nil }

	entries, err := src.ActivePool(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Same mtime: served from cache even though the file changed underneath
	smaller := NewDefaultPool("live")
	smaller.Strategies = smaller.Strategies[:1]
	require.NoError(t, ExportToFile(smaller, path, DefaultExportOptions()))

	entries, err = src.ActivePool(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	mod = mod.Add(time.Second)
	entries, err = src.ActivePool(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSource_Errors(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := src.ActivePool(t.Context())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = src.ActivePool(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
