package pool

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError contains details about validation failures
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ErrMissingRequiredField is returned when a required field is missing
var ErrMissingRequiredField = errors.New("missing required field")

// Validate checks the metadata and every entry, including that each
// parameter payload decodes and no (class, params) pair repeats.
// Returns nil if valid, or ValidationErrors with all issues found.
func (p *Pool) Validate() error {
	errs := p.validateMetadata()

	if len(p.Strategies) == 0 {
		errs = append(errs, ValidationError{
			Field:   "strategies",
			Message: "at least one strategy is required",
		})
	}

	seen := make(map[string]int, len(p.Strategies))
	for i, e := range p.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)

		if strings.TrimSpace(e.Class) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".class",
				Message: "strategy class is required",
			})
			continue
		}

		grid, err := ParseParamGrid(e.ParamConfigs)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".param_configs",
				Message: err.Error(),
			})
			continue
		}

		key := e.Class + "|" + GridKey(grid)
		if first, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicates strategies[%d] (same class and parameters)", first),
			})
			continue
		}
		seen[key] = i
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p *Pool) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if p.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: "schema version is required",
		})
	} else if !IsVersionSupported(p.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", p.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if p.Metadata.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "pool name is required",
		})
	} else if len(p.Metadata.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "pool name must be 100 characters or less",
		})
	}

	return errs
}

// ValidateQuick performs only the checks needed to run the pool
func (p *Pool) ValidateQuick() error {
	if p.Metadata.Name == "" {
		return fmt.Errorf("%w: metadata.name", ErrMissingRequiredField)
	}
	for i, e := range p.Strategies {
		if e.Class == "" {
			return fmt.Errorf("%w: strategies[%d].class", ErrMissingRequiredField, i)
		}
	}
	return nil
}
