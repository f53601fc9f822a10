// migrate прогоняет migrations/*.sql по порядку имён, каждый файл в своей транзакции.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures_bot/internal/modules/config"
	"futures_bot/pkg/db"
	"futures_bot/pkg/logger"
)

const defaultDir = "migrations"

func apply(ctx context.Context, tx db.TxManager, dir string, log *zap.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return errors.Wrap(err, "get file glob")
	}
	sort.Strings(files)

	for _, file := range files {
		body, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrap(err, "read migration")
		}
		err = tx.RunMaster(ctx, func(ctx context.Context, q db.Transaction) error {
			_, err := q.Exec(ctx, string(body))
			return err
		})
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("apply %s", file))
		}
		log.Info("migration applied", zap.String("file", file))
	}
	return nil
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if cfg.DB == "" {
		panic("has no db_dsn in config")
	}
	log, err := logger.New(cfg.Log.Level, cfg.Service.Name+"_migrate")
	if err != nil {
		panic(err)
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = defaultDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB, MaxConns: 1})
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	tx := db.NewPgTxManager(pool)
	defer tx.Close()

	if err := apply(ctx, tx, dir, log); err != nil {
		log.Error("migrate", zap.Error(err))
		tx.Close()
		os.Exit(1)
	}
	fmt.Println("done")
}
