package modelstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Feature value kinds stored in the features table.
const (
	kindNull   = "null"
	kindString = "string"
	kindInt    = "int"
	kindFloat  = "float"
	kindBool   = "bool"
	kindRef    = "ref"
	kindList   = "list"
)

// SQLiteFactory stores models in SQLite databases. Locations have the form
// sqlite:<path>#<model>; without a fragment the model is named after the file.
type SQLiteFactory struct {
	Logger *slog.Logger
}

func (f *SQLiteFactory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

// ParseSQLiteLocation splits a sqlite location into database path and model
// name.
func ParseSQLiteLocation(location string) (path, model string) {
	rest := trimScheme(location, SchemeSQLite)
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, nameOf(rest)
}

// OpenSQLite opens a database and applies the model schema migrations.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := migrateModels(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateModels(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// OpenModel loads a model from its database. Targets that are not stored yet
// open as empty models.
func (f *SQLiteFactory) OpenModel(ctx context.Context, location, referenceModel string, asTarget bool) (core.Model, error) {
	path, name := ParseSQLiteLocation(location)
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	m, err := ReadModel(ctx, db, name, referenceModel)
	if errors.Is(err, sql.ErrNoRows) && asTarget {
		return NewModel(name, referenceModel, true), nil
	}
	if err != nil {
		return nil, err
	}
	m.SetTarget(asTarget)
	f.logger().Debug("opened model", slog.String("model", name), slog.String("path", path))
	return m, nil
}

// NewModel returns an empty model for location. The stored copy, if any, is
// replaced when the model is saved.
func (f *SQLiteFactory) NewModel(_ context.Context, location, referenceModel string) (core.Model, error) {
	_, name := ParseSQLiteLocation(location)
	return NewModel(name, referenceModel, true), nil
}

// SaveModel replaces the stored copy of the model.
func (f *SQLiteFactory) SaveModel(ctx context.Context, model core.Model, location string) error {
	m, ok := model.(*Model)
	if !ok {
		return fmt.Errorf("cannot save %T to sqlite", model)
	}
	path, name := ParseSQLiteLocation(location)
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := WriteModel(ctx, db, name, m); err != nil {
		return err
	}
	f.logger().Debug("saved model", slog.String("model", name), slog.String("path", path))
	return nil
}

// ReadModel loads the model stored under name. It returns sql.ErrNoRows when
// there is none.
func ReadModel(ctx context.Context, db *sql.DB, name, referenceModel string) (*Model, error) {
	var metamodel string
	err := db.QueryRowContext(ctx, `SELECT metamodel FROM models WHERE name = ?`, name).Scan(&metamodel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read model %s: %w", name, err)
	}
	if referenceModel != "" && metamodel != "" && metamodel != referenceModel {
		return nil, fmt.Errorf("model %s conforms to %s, not %s", name, metamodel, referenceModel)
	}
	if referenceModel == "" {
		referenceModel = metamodel
	}

	m := NewModel(name, referenceModel, false)
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := db.QueryContext(ctx, `SELECT id, type FROM elements WHERE model = ? ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read elements: %w", err)
	}
	for rows.Next() {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		if _, err := m.addLocked(id, typ); err != nil {
			_ = rows.Close()
			return nil, err
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx,
		`SELECT element_id, name, position, kind, value FROM features WHERE model = ? ORDER BY seq, position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			elemID, feature, kind string
			position              int
			raw                   sql.NullString
		)
		if err := rows.Scan(&elemID, &feature, &position, &kind, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		e, ok := m.byID[elemID]
		if !ok {
			return nil, fmt.Errorf("feature %s of unknown element %s", feature, elemID)
		}
		if kind == kindList {
			e.setLocked(feature, []any{})
			continue
		}
		v, err := decodeScalar(m, kind, raw.String)
		if err != nil {
			return nil, fmt.Errorf("element %s feature %s: %w", elemID, feature, err)
		}
		if position < 0 {
			e.setLocked(feature, v)
			continue
		}
		list, _ := e.features[feature].([]any)
		e.setLocked(feature, append(list, v))
	}
	return m, rows.Err()
}

// WriteModel replaces the stored model name with the content of m in a single
// transaction.
func WriteModel(ctx context.Context, db *sql.DB, name string, m *Model) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{
		`DELETE FROM features WHERE model = ?`,
		`DELETE FROM elements WHERE model = ?`,
		`DELETE FROM models WHERE name = ?`,
	} {
		if _, err = tx.ExecContext(ctx, q, name); err != nil {
			return fmt.Errorf("failed to clear model %s: %w", name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO models (name, metamodel) VALUES (?, ?)`, name, m.ReferenceModel()); err != nil {
		return fmt.Errorf("failed to insert model %s: %w", name, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seq := 0
	for i, e := range m.elements {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO elements (model, id, type, seq) VALUES (?, ?, ?, ?)`, name, e.id, e.typ, i); err != nil {
			return fmt.Errorf("failed to insert element %s: %w", e.id, err)
		}
		for _, feature := range e.order {
			seq++
			if err = insertFeature(ctx, tx, m, name, e.id, feature, seq, e.features[feature]); err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model %s: %w", name, err)
	}
	return nil
}

func insertFeature(ctx context.Context, tx *sql.Tx, m *Model, model, elemID, feature string, seq int, v any) error {
	const q = `INSERT INTO features (model, element_id, name, seq, position, kind, value) VALUES (?, ?, ?, ?, ?, ?, ?)`

	list, isList := v.([]any)
	if !isList {
		kind, raw, err := encodeScalar(m, v)
		if err != nil {
			return fmt.Errorf("element %s feature %s: %w", elemID, feature, err)
		}
		if _, err := tx.ExecContext(ctx, q, model, elemID, feature, seq, -1, kind, raw); err != nil {
			return fmt.Errorf("failed to insert feature %s: %w", feature, err)
		}
		return nil
	}
	if len(list) == 0 {
		if _, err := tx.ExecContext(ctx, q, model, elemID, feature, seq, -1, kindList, nil); err != nil {
			return fmt.Errorf("failed to insert feature %s: %w", feature, err)
		}
		return nil
	}
	for pos, item := range list {
		kind, raw, err := encodeScalar(m, item)
		if err != nil {
			return fmt.Errorf("element %s feature %s[%d]: %w", elemID, feature, pos, err)
		}
		if _, err := tx.ExecContext(ctx, q, model, elemID, feature, seq, pos, kind, raw); err != nil {
			return fmt.Errorf("failed to insert feature %s: %w", feature, err)
		}
	}
	return nil
}

func encodeScalar(owner *Model, v any) (kind string, raw any, err error) {
	switch x := v.(type) {
	case nil:
		return kindNull, nil, nil
	case string:
		return kindString, x, nil
	case int64:
		return kindInt, strconv.FormatInt(x, 10), nil
	case float64:
		return kindFloat, strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return kindBool, strconv.FormatBool(x), nil
	case core.Element:
		if x.Model() != core.Model(owner) {
			return "", nil, fmt.Errorf("cannot store reference into model %s", x.Model().Name())
		}
		return kindRef, x.ID(), nil
	case []any:
		return "", nil, errors.New("nested lists cannot be stored")
	}
	return "", nil, fmt.Errorf("unsupported feature value of type %T", v)
}

// decodeScalar parses a stored value. The caller holds m.mu.
func decodeScalar(m *Model, kind, raw string) (any, error) {
	switch kind {
	case kindNull:
		return nil, nil
	case kindString:
		return raw, nil
	case kindInt:
		return strconv.ParseInt(raw, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	case kindBool:
		return strconv.ParseBool(raw)
	case kindRef:
		e, ok := m.byID[raw]
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q", raw)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", kind)
}
