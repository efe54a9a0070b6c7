package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/readlist/config"
	"github.com/robertmeta/readlist/library"
	"github.com/robertmeta/readlist/logger"
	"github.com/robertmeta/readlist/persist"
	"github.com/robertmeta/readlist/store"
)

const closeTimeout = 10 * time.Second

// session is one command's view of the configured reading list.
type session struct {
	cfg    *config.Config
	log    logger.Logger
	lib    *library.Library
	sqlite *store.Store
	close  func() error
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("driver") {
		cfg.Driver = c.String("driver")
	}
	if c.IsSet("db") {
		cfg.Driver = config.DriverSQLite
		cfg.SQLitePath = c.String("db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	log.Debug("config loaded", logger.String("driver", cfg.Driver), logger.String("cfg", fmt.Sprintf("%+v", cfg.Redacted())))

	s := &session{cfg: cfg, log: log}

	var backend persist.Backend
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		st, err := store.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		backend, s.sqlite, s.close = st, st, st.Close
	case config.DriverRedis:
		client, err := store.ConnectRedis(c.Context, cfg.RedisOptions(), log)
		if err != nil {
			return nil, err
		}
		r := store.NewRedis(client, cfg.Redis.Prefix)
		backend, s.close = r, r.Close
	default:
		backend, s.close = persist.NewMemory(), func() error { return nil }
	}

	lib, err := library.Open(c.Context, backend,
		library.WithLogger(log),
		library.WithCellOptions(persist.WithWriteTimeout(cfg.WriteTimeout)),
	)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.lib = lib
	return s, nil
}

// shutdown waits for pending writes and releases the backend.
func (s *session) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := errors.Join(s.lib.Close(ctx), s.close())
	_ = s.log.Sync()
	return err
}

// withLibrary runs fn against an open session. The result is printed as
// JSON only once every write has reached the backend; a nil result prints
// nothing.
func withLibrary(c *cli.Context, fn func(s *session) (interface{}, error)) error {
	s, err := openSession(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	result, runErr := fn(s)
	if err := s.shutdown(); err != nil && runErr == nil {
		return cli.Exit(fmt.Sprintf("Failed to save changes: %v", err), ExitDataError)
	}
	if runErr != nil {
		return runErr
	}
	if result == nil {
		return nil
	}
	return outputJSON(c, result)
}
