// Package sqlstore holds the structured records extracted from documents
// and answers SQL queries over them.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docintel/docintel/log"
)

// defaultSampleRows is how many example rows TableInfo shows per table so
// the SQL-generating model can see the data format.
const defaultSampleRows = 2

// DB is the SQLite store for extracted structured data.
type DB struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (or creates) the store at path. Use ":memory:" for an
// ephemeral store.
func Open(path string, logger log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open structured store: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateTableFromSchema drops and recreates the table defined by a model-
// produced CREATE TABLE statement. The table name is sanitized before use
// since it derives from a free-form category name.
func (d *DB) CreateTableFromSchema(ctx context.Context, schemaSQL string) error {
	name, err := tableNameOf(schemaSQL)
	if err != nil {
		return err
	}
	sanitized := SanitizeTableName(name)
	if sanitized != name {
		schemaSQL = strings.Replace(schemaSQL, name, sanitized, 1)
	}

	d.logger.Info("recreating table %q", sanitized)
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", sanitized)); err != nil {
		return fmt.Errorf("failed to drop table %q: %w", sanitized, err)
	}
	if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create table %q: %w", sanitized, err)
	}
	return nil
}

// tableNameOf extracts the table name from a CREATE TABLE statement.
func tableNameOf(schemaSQL string) (string, error) {
	upper := strings.ToUpper(schemaSQL)
	idx := strings.Index(upper, "CREATE TABLE")
	if idx < 0 {
		return "", fmt.Errorf("not a CREATE TABLE statement")
	}
	rest := schemaSQL[idx+len("CREATE TABLE"):]
	paren := strings.Index(rest, "(")
	if paren < 0 {
		return "", fmt.Errorf("malformed CREATE TABLE statement")
	}
	name := strings.TrimSpace(rest[:paren])
	name = strings.TrimPrefix(name, "IF NOT EXISTS ")
	name = strings.Trim(name, `"`)
	if name == "" {
		return "", fmt.Errorf("malformed CREATE TABLE statement")
	}
	return name, nil
}

// SanitizeTableName converts a free-form category name into a valid table
// name: lowercase, snake_cased, "&" spelled out.
func SanitizeTableName(category string) string {
	name := strings.ToLower(strings.TrimSpace(category))
	name = strings.ReplaceAll(name, "&", "and")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// Insert writes one extracted record into the table. Nested values (maps,
// slices) are stored as JSON text. Columns are ordered deterministically.
func (d *DB) Insert(ctx context.Context, table string, record map[string]any) error {
	if len(record) == 0 {
		return fmt.Errorf("empty record for table %q", table)
	}

	columns := make([]string, 0, len(record))
	for col := range record {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns))
	for _, col := range columns {
		value := record[col]
		switch value.(type) {
		case map[string]any, []any:
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode value for column %q: %w", col, err)
			}
			values = append(values, string(data))
		default:
			values = append(values, value)
		}
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
		placeholders[i] = "?"
	}

	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if _, err := d.db.ExecContext(ctx, insertSQL, values...); err != nil {
		return fmt.Errorf("failed to insert into %q: %w", table, err)
	}
	return nil
}

// TableInfo renders every user table's DDL plus a few sample rows. The
// output is what the SQL-generating model sees.
func (d *DB) TableInfo(ctx context.Context) (string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return "", fmt.Errorf("failed to read table catalog: %w", err)
	}
	defer rows.Close()

	type table struct{ name, ddl string }
	var tables []table
	for rows.Next() {
		var t table
		if err := rows.Scan(&t.name, &t.ddl); err != nil {
			return "", fmt.Errorf("failed to scan table catalog: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t.ddl)

		sample, err := d.Run(ctx, fmt.Sprintf("SELECT * FROM %q LIMIT %d", t.name, defaultSampleRows))
		if err != nil {
			d.logger.Warn("failed to sample rows from %q: %v", t.name, err)
			continue
		}
		if sample != "" {
			fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n%s*/", defaultSampleRows, t.name, sample)
		}
	}
	return b.String(), nil
}

// Run executes an arbitrary SQL query and renders the result rows as
// text, one tuple per line.
func (d *DB) Run(ctx context.Context, query string) (string, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return "", err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(val)
			default:
				fields[i] = fmt.Sprint(val)
			}
		}
		fmt.Fprintf(&b, "(%s)\n", strings.Join(fields, ", "))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
