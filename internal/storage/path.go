package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildJournalPath returns the object key for one journal part, partitioned by
// UTC date and hour so query engines can prune by time.
func BuildJournalPath(service string, at time.Time, sequence int) (string, error) {
	if !pathComponentPattern.MatchString(service) {
		return "", fmt.Errorf("invalid service name: %q", service)
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}

	ts := at.UTC()
	return path.Join(
		"journal",
		service,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("part-%d-%05d.parquet", ts.UnixMilli(), sequence),
	), nil
}
