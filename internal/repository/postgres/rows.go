package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
)

var (
	ErrRowNotFound   = repository.ErrNotFound
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrEmptyRow      = errors.New("no fields given")
)

// Only these tables and columns can be reached through the row store.
// Identifiers are interpolated into SQL, so nothing else may get through.
var rowSchemas = map[string]map[string]bool{
	model.TableProfiles: columnSet(
		"id", "first_name", "last_name", "email", "phone", "role",
		"email_verified", "created_at", "updated_at",
	),
	model.TableDoctors: columnSet(
		"id", "specialization", "license_number", "qualification",
		"experience_years", "consultation_fee", "department",
		"created_at", "updated_at",
	),
}

func columnSet(cols ...string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}

// RowStore is a generic insert/update/select surface over the
// profile and doctor tables.
type RowStore struct {
	BaseRepository
}

func NewRowStore(base BaseRepository) *RowStore {
	return &RowStore{base}
}

func (s *RowStore) InsertRow(ctx context.Context, table string, fields model.JSONMap) error {
	query, err := buildInsert(table, fields)
	if err != nil {
		return err
	}
	if _, err := s.GetDB().NamedExecContext(ctx, query, map[string]interface{}(fields)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) UpdateRow(ctx context.Context, table, id string, fields model.JSONMap) error {
	query, err := buildUpdate(table, fields)
	if err != nil {
		return err
	}
	args := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		args[k] = v
	}
	args["where_id"] = id

	res, err := s.GetDB().NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrRowNotFound)
	}
	return nil
}

func (s *RowStore) SelectRow(ctx context.Context, table string, filter model.JSONMap) (model.JSONMap, error) {
	query, err := buildSelect(table, filter)
	if err != nil {
		return nil, err
	}
	q, args, err := sqlx.Named(query, map[string]interface{}(filter))
	if err != nil {
		return nil, err
	}
	q = s.GetDB().Rebind(q)

	row := make(map[string]interface{})
	err = s.GetDB().QueryRowxContext(ctx, q, args...).MapScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", table, ErrRowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}

	out := make(model.JSONMap, len(row))
	for k, v := range row {
		// lib/pq hands back numeric and text columns as []byte.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[k] = v
	}
	return out, nil
}

func checkColumns(table string, fields model.JSONMap) ([]string, error) {
	schema, ok := rowSchemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if len(fields) == 0 {
		return nil, ErrEmptyRow
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !schema[col] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

func buildInsert(table string, fields model.JSONMap) (string, error) {
	cols, err := checkColumns(table, fields)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table, strings.Join(cols, ", "), strings.Join(cols, ", :")), nil
}

func buildUpdate(table string, fields model.JSONMap) (string, error) {
	set := make(model.JSONMap, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	cols, err := checkColumns(table, set)
	if err != nil {
		return "", err
	}
	assignments := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		assignments = append(assignments, fmt.Sprintf("%s = :%s", c, c))
	}
	if _, ok := set["updated_at"]; !ok {
		assignments = append(assignments, "updated_at = NOW()")
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = :where_id",
		table, strings.Join(assignments, ", ")), nil
}

func buildSelect(table string, filter model.JSONMap) (string, error) {
	cols, err := checkColumns(table, filter)
	if err != nil {
		return "", err
	}
	conds := make([]string, 0, len(cols))
	for _, c := range cols {
		conds = append(conds, fmt.Sprintf("%s = :%s", c, c))
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1",
		table, strings.Join(conds, " AND ")), nil
}
