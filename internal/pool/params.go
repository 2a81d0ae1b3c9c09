package pool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// ParseParamGrid decodes a stored parameter payload into a grid. Accepted
// forms are a mapping, a JSON object string, or a JSON string that itself
// holds a JSON object (double encoded). Scalar values become single-value
// candidate lists. Nil or blank payloads yield an empty grid, which runs the
// strategy defaults.
func ParseParamGrid(payload interface{}) (backtest.ParamGrid, error) {
	switch v := payload.(type) {
	case nil:
		return backtest.ParamGrid{}, nil
	case backtest.ParamGrid:
		return checkGrid(v)
	case map[string][]interface{}:
		return checkGrid(backtest.ParamGrid(v))
	case map[string]interface{}:
		return gridFromMap(v)
	case json.RawMessage:
		return parseParamString(string(v))
	case []byte:
		return parseParamString(string(v))
	case string:
		return parseParamString(v)
	default:
		return nil, fmt.Errorf("unsupported param payload type %T", payload)
	}
}

func parseParamString(raw string) (backtest.ParamGrid, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return backtest.ParamGrid{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid param payload: %w", err)
	}

	if inner, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
			return nil, fmt.Errorf("invalid double-encoded param payload: %w", err)
		}
	}

	switch v := decoded.(type) {
	case nil:
		return backtest.ParamGrid{}, nil
	case map[string]interface{}:
		return gridFromMap(v)
	default:
		return nil, fmt.Errorf("param payload must be an object, got %T", decoded)
	}
}

func gridFromMap(m map[string]interface{}) (backtest.ParamGrid, error) {
	grid := make(backtest.ParamGrid, len(m))
	for name, raw := range m {
		switch values := raw.(type) {
		case []interface{}:
			grid[name] = values
		default:
			grid[name] = []interface{}{values}
		}
	}
	return checkGrid(grid)
}

func checkGrid(grid backtest.ParamGrid) (backtest.ParamGrid, error) {
	for name, values := range grid {
		if len(values) == 0 {
			return nil, fmt.Errorf("parameter %s has no candidate values", name)
		}
	}
	return grid, nil
}

// GridKey returns the canonical JSON form of a grid; equal grids give equal
// keys since map keys are emitted sorted
func GridKey(grid backtest.ParamGrid) string {
	if len(grid) == 0 {
		return "{}"
	}
	data, err := json.Marshal(grid)
	if err != nil {
		return fmt.Sprintf("%v", grid)
	}
	return string(data)
}
