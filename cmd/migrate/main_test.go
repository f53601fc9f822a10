package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures_bot/pkg/db"
)

type fakeTx struct {
	execs []string
	fail  string
}

func (f *fakeTx) RunMaster(ctx context.Context, fn func(context.Context, db.Transaction) error) error {
	return fn(ctx, f)
}

func (f *fakeTx) Conn() db.Transaction { return f }

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if f.fail != "" && sql == f.fail {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestApplyInNameOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0002_index.sql": "CREATE INDEX b",
		"0001_table.sql": "CREATE TABLE a",
		"notes.txt":      "ignored",
	})
	tx := &fakeTx{}

	require.NoError(t, apply(context.Background(), tx, dir, zaptest.NewLogger(t)))
	assert.Equal(t, []string{"CREATE TABLE a", "CREATE INDEX b"}, tx.execs)
}

func TestApplyStopsOnError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0001_bad.sql": "CREATE TABLE",
		"0002_ok.sql":  "CREATE INDEX b",
	})
	tx := &fakeTx{fail: "CREATE TABLE"}

	err := apply(context.Background(), tx, dir, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_bad.sql")
	assert.Empty(t, tx.execs)
}

func TestApplyRepoMigrations(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, apply(context.Background(), tx, filepath.Join("..", "..", "migrations"), zaptest.NewLogger(t)))
	require.Len(t, tx.execs, 1)
	assert.Contains(t, tx.execs[0], "CREATE TABLE IF NOT EXISTS bot_events")
}
