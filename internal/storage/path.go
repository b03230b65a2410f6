package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// SnapshotTimeLayout sorts lexically in chronological order.
const SnapshotTimeLayout = "20060102T150405Z"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SchemaSnapshotPrefix is the directory holding every snapshot of schemaName.
func SchemaSnapshotPrefix(schemaName string) (string, error) {
	if err := validatePathComponent(schemaName, "schema name"); err != nil {
		return "", err
	}
	return path.Join("schemas", schemaName) + "/", nil
}

func BuildSchemaSnapshotPath(schemaName string, takenAt time.Time) (string, error) {
	prefix, err := SchemaSnapshotPrefix(schemaName)
	if err != nil {
		return "", err
	}
	return prefix + takenAt.UTC().Format(SnapshotTimeLayout) + ".json", nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
