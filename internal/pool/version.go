package pool

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ErrIncompatibleVersion is returned for pools that cannot be brought to the
// current schema
var ErrIncompatibleVersion = errors.New("incompatible pool schema version")

// SupportedSchemaVersions lists every schema version Import accepts
var SupportedSchemaVersions = []string{"1.0", "1.1"}

// MigrationFunc upgrades a pool from one schema version to the next
type MigrationFunc func(*Pool) error

type migration struct {
	to    string
	apply MigrationFunc
}

// migrations run in order; each applies when the pool is older than `to`
var migrations = []migration{
	{to: "1.1", apply: migrateFrom10To11},
}

// migrateFrom10To11 renames params to param_configs and gives unnamed
// entries their class as display name
func migrateFrom10To11(p *Pool) error {
	for i := range p.Strategies {
		e := &p.Strategies[i]
		if e.ParamConfigs == nil && e.Params != nil {
			e.ParamConfigs = e.Params
		}
		e.Params = nil
		if e.Name == "" {
			e.Name = e.Class
		}
	}
	return nil
}

func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		parsed, err = semver.NewVersion(v + ".0")
		if err != nil {
			return nil, fmt.Errorf("invalid schema version: %s", v)
		}
	}
	return parsed, nil
}

// Migrate upgrades a pool to the current schema version
func Migrate(p *Pool) error {
	if p == nil {
		return fmt.Errorf("pool cannot be nil")
	}

	if p.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	if err := CheckCompatibility(p); err != nil {
		return err
	}

	current, err := parseVersion(p.Metadata.SchemaVersion)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		to, err := parseVersion(m.to)
		if err != nil {
			return err
		}
		if !current.LessThan(to) {
			continue
		}
		if err := m.apply(p); err != nil {
			return fmt.Errorf("migration to %s failed: %w", m.to, err)
		}
		current = to
	}

	p.Metadata.SchemaVersion = SchemaVersion
	return nil
}

// CheckCompatibility checks if a pool can be migrated to the current version
func CheckCompatibility(p *Pool) error {
	if p == nil {
		return fmt.Errorf("pool cannot be nil")
	}

	if p.Metadata.SchemaVersion == "" {
		return fmt.Errorf("%w: missing schema version", ErrIncompatibleVersion)
	}

	current, err := parseVersion(p.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleVersion, err)
	}

	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return err
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("%w: pool requires schema version %s, but only %s is supported",
			ErrIncompatibleVersion, p.Metadata.SchemaVersion, SchemaVersion)
	}

	if current.Major() != target.Major() {
		return fmt.Errorf("%w: no migration path from version %s to %s",
			ErrIncompatibleVersion, p.Metadata.SchemaVersion, SchemaVersion)
	}

	return nil
}

// CompareVersions compares two version strings
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsVersionSupported reports whether version shares major.minor with a
// supported schema version
func IsVersionSupported(version string) bool {
	v, err := parseVersion(version)
	if err != nil {
		return false
	}

	for _, supported := range SupportedSchemaVersions {
		sv, err := parseVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}

	return false
}
