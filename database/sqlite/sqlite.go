package sqlite

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
)

// SqliteRepo keeps play counters in memory and writes changed entries to sqlite periodically.
type SqliteRepo struct {
	// Read db handle
	dbReadHandle *sqlx.DB
	// Handle specifically for writes
	dbWriteHandle *sqlx.DB
	// in-memory play counters, changed entries are written every syncInterval.
	plays map[string]model.PlayRecord
	// ids changed since the last sync
	dirty map[string]bool
	// last time the play counters were synced to the database
	playsSyncTime time.Time
	logger        *zap.Logger
	// mutex to protect access to in-memory stores
	mu sync.Mutex
}

// ConfigFile holds configuration options
type ConfigFile struct {
	Filename string `mapstructure:"filename"`
}

const syncInterval = 10 * time.Second

// New opens a sqlite database, creates the schema if necessary and loads the play counters.
func New(o *ConfigFile, logger *zap.Logger) (*SqliteRepo, error) {
	if o == nil || o.Filename == "" {
		return nil, fmt.Errorf("database filename not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbHandle, err := sqlx.Connect("sqlite3", o.Filename)
	if err != nil {
		return nil, err
	}
	dbHandle.SetMaxOpenConns(max(4, runtime.NumCPU()))

	writeDB, err := sqlx.Connect("sqlite3", o.Filename)
	if err != nil {
		return nil, err
	}
	// sqlite needs to have a single writer
	writeDB.SetMaxOpenConns(1)

	if err := dbInitSchema(writeDB, logger); err != nil {
		return nil, err
	}

	s := &SqliteRepo{
		dbReadHandle:  dbHandle,
		dbWriteHandle: writeDB,
		plays:         make(map[string]model.PlayRecord),
		dirty:         make(map[string]bool),
		logger:        logger.Named("sqlite"),
	}
	if err := s.loadPlaysFromDB(); err != nil {
		return nil, err
	}
	return s, nil
}

// StartBackgroundJobs starts the periodic sync of in-memory play counters to the database.
func (s *SqliteRepo) StartBackgroundJobs(ctx context.Context) {
	go s.playsBackgroundJob(ctx, syncInterval)
}

// Close writes pending play counters and closes the database handles.
func (s *SqliteRepo) Close() error {
	err := s.writePlaysToDB()
	s.dbReadHandle.Close()
	s.dbWriteHandle.Close()
	return err
}
