// Package migrations applies the embedded SQL schema to Postgres and ClickHouse.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var sqlFS embed.FS

// Dialect directories inside the embedded filesystem.
const (
	DialectPostgres   = "postgres"
	DialectClickhouse = "clickhouse"
)

// File is one migration script.
type File struct {
	Name string // e.g. 001_market_data.sql
	SQL  string
}

// Files returns the non-empty migrations of dialect in lexical order.
func Files(dialect string) ([]File, error) {
	entries, err := fs.ReadDir(sqlFS, dialect)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dialect, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	files := make([]File, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(sqlFS, dialect+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		files = append(files, File{Name: name, SQL: string(data)})
	}
	return files, nil
}
