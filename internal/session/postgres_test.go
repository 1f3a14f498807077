package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---- mock DB types ----

// mockRow implements pgx.Row over one row of values.
type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(r.data[r.idx-1], dest) }

func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v != nil {
				t := v.(time.Time)
				*d = &t
			}
		case **float64:
			if v != nil {
				f := v.(float64)
				*d = &f
			}
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingErr      error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{err: pgx.ErrNoRows}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }

func summaryRow(s Summary) []any {
	var ended, rate any
	if !s.EndedAt.IsZero() {
		ended = s.EndedAt
	}
	if s.BreathingRate != nil {
		rate = *s.BreathingRate
	}
	return []any{
		s.ID, s.Pose, s.StartedAt, ended, s.Frames, s.ScoredFrames,
		s.MeanAccuracy, s.BestAccuracy, rate, s.ClipsRequested, s.ClipsPlayed,
	}
}

// ---- tests ----

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	var gotSQL string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if gotSQL != Schema {
		t.Fatal("Migrate must execute Schema")
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	err := NewPostgresStore(db).Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "session: migrate") {
		t.Fatalf("err = %v", err)
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	var (
		gotSQL  string
		gotArgs []any
	)
	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		gotSQL, gotArgs = sql, args
		return pgconn.CommandTag{}, nil
	}}
	s := NewPostgresStore(db)

	running := summaryAt("a", 0)
	running.EndedAt = time.Time{}
	if err := s.Save(context.Background(), running); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("Save must upsert, got SQL:\n%s", gotSQL)
	}
	if len(gotArgs) != 11 {
		t.Fatalf("got %d args, want 11", len(gotArgs))
	}
	if gotArgs[0] != "a" || gotArgs[3] != nil {
		t.Errorf("args id=%v ended=%v, want a and NULL", gotArgs[0], gotArgs[3])
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("conn reset")
	}
	if err := s.Save(context.Background(), running); err == nil || !strings.Contains(err.Error(), "conn reset") {
		t.Fatalf("err = %v", err)
	}
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()
	rate := 12.0
	want := summaryAt("a", 0)
	want.BreathingRate = &rate

	db := &mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
		if args[0] != "a" {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{values: summaryRow(want)}
	}}
	s := NewPostgresStore(db)

	got, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "a" || !got.EndedAt.Equal(want.EndedAt) || got.BreathingRate == nil || *got.BreathingRate != 12 {
		t.Fatalf("Get = %+v", got)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}

	db.queryRowFunc = func(context.Context, string, ...any) pgx.Row {
		return &mockRow{err: errors.New("timeout")}
	}
	if _, err := s.Get(context.Background(), "a"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want wrapped timeout", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()
	var (
		gotSQL  string
		gotArgs []any
		rows    *mockRows
	)
	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		gotSQL, gotArgs = sql, args
		rows = &mockRows{data: [][]any{summaryRow(summaryAt("b", 2)), summaryRow(summaryAt("a", 0))}}
		return rows, nil
	}}
	s := NewPostgresStore(db)

	list, err := s.List(context.Background(), 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("list = %+v", list)
	}
	if !strings.Contains(gotSQL, "LIMIT $1") || len(gotArgs) != 1 || gotArgs[0] != 5 {
		t.Errorf("limit not applied: %s %v", gotSQL, gotArgs)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}

	if _, err := s.List(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotSQL, "LIMIT") || len(gotArgs) != 0 {
		t.Errorf("unlimited list must not pass LIMIT: %s %v", gotSQL, gotArgs)
	}

	db.queryFunc = func(context.Context, string, ...any) (pgx.Rows, error) {
		return &mockRows{err: errors.New("broken pipe")}, nil
	}
	if _, err := s.List(context.Background(), 0); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("err = %v", err)
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	db.pingErr = errors.New("down")
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	t.Parallel()
	s := NewPostgresStore(&mockDB{})
	s.Close()
	s.Close()
}
