package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTableFilePath returns the object key of a materialized table:
// datasets/<dataset id>/tables/<table id>/part-<sequence>.parquet
func BuildTableFilePath(datasetID, tableID string, sequence int) (string, error) {
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableID, "table id"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(
		"datasets",
		datasetID,
		"tables",
		tableID,
		fmt.Sprintf("part-%05d.parquet", sequence),
	), nil
}

func DatasetPrefix(datasetID string) (string, error) {
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	return path.Join("datasets", datasetID) + "/", nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
