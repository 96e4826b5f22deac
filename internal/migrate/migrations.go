// Package migrate creates the store schema. Schema files are embedded SQL
// named NNN_description.sql and applied in version order inside a single
// transaction; the applied version lives in the schema_version table. The
// store is in-memory and always starts empty, so normally every file applies
// on boot — the version bookkeeping exists so additional files land cleanly.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type schemaFile struct {
	version int
	name    string
	stmts   string
}

func readSchemaFiles() ([]schemaFile, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	files := make([]schemaFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("schema file %s: missing version prefix", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: bad version prefix: %w", e.Name(), err)
		}
		data, err := schemaFS.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, schemaFile{version: v, name: e.Name(), stmts: string(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// Migrate applies any schema files newer than the stored version.
func Migrate(db *sql.DB) error {
	files, err := readSchemaFiles()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("schema_version table: %w", err)
	}
	version := 0
	switch err := tx.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err {
	case nil:
	case sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("schema_version row: %w", err)
		}
	default:
		return fmt.Errorf("schema_version row: %w", err)
	}

	for _, f := range files {
		if f.version <= version {
			continue
		}
		if _, err := tx.Exec(f.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", f.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, f.version); err != nil {
			return fmt.Errorf("record version %d: %w", f.version, err)
		}
		version = f.version
	}
	return tx.Commit()
}
