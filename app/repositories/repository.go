package repositories

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"postingapp/app/config"
	"postingapp/app/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repositories bundles the post and user stores backed by one database.
type Repositories struct {
	Posts PostRepository
	Users UserRepository

	badgerDB *badger.DB
	close    func() error
}

// Open connects the driver named in cfg and returns the repositories over it.
func Open(cfg config.StoreConfig, log *zap.Logger) (*Repositories, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		db, err := OpenBadger(cfg.Path, cfg.InMemory, log)
		if err != nil {
			return nil, err
		}
		repos, err := NewBadgerRepositories(db)
		if err != nil {
			return nil, multierr.Append(err, db.Close())
		}
		return repos, nil
	case config.DriverSQLite, config.DriverPostgres:
		db, err := openGorm(cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Posts: NewGormPostRepository(db),
			Users: NewGormUserRepository(db),
			close: sqlDB.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// OpenBadger opens a badger database at path, or an in-memory one.
func OpenBadger(path string, inMemory bool, log *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(1)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if log != nil {
		opts = opts.WithLogger(logger.NewBadger(log))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return db, nil
}

// NewBadgerRepositories wraps an open badger database. Close releases the ID
// sequences and then closes db.
func NewBadgerRepositories(db *badger.DB) (*Repositories, error) {
	posts, err := NewBadgerPostRepository(db)
	if err != nil {
		return nil, err
	}
	users, err := NewBadgerUserRepository(db)
	if err != nil {
		return nil, multierr.Append(err, posts.Close())
	}
	return &Repositories{
		Posts:    posts,
		Users:    users,
		badgerDB: db,
		close: func() error {
			return multierr.Combine(posts.Close(), users.Close(), db.Close())
		},
	}, nil
}

func openGorm(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dsn := cfg.Path
		if cfg.InMemory {
			dsn = "file::memory:"
		}
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	if cfg.InMemory {
		// Every new connection to :memory: is a fresh database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Driver, err)
	}
	return db, nil
}

// Badger returns the underlying badger database, or nil for SQL drivers.
func (r *Repositories) Badger() *badger.DB {
	return r.badgerDB
}

func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
