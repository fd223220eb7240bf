package migration

import "embed"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embeddedMigrations embed.FS

const (
	postgresDir = "migrations/postgres"
	sqliteDir   = "migrations/sqlite"
)

// SQLiteSchema returns the ordered up statements of the sqlite migration set.
// Package tests build their in-memory databases from it.
func SQLiteSchema() ([]string, error) {
	entries, err := embeddedMigrations.ReadDir(sqliteDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if len(name) < len(".up.sql") || name[len(name)-len(".up.sql"):] != ".up.sql" {
			continue
		}
		raw, err := embeddedMigrations.ReadFile(sqliteDir + "/" + name)
		if err != nil {
			return nil, err
		}
		out = append(out, string(raw))
	}
	return out, nil
}
