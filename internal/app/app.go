package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"goalkeeper/internal/config"
	"goalkeeper/internal/db"
	"goalkeeper/internal/domain"
	"goalkeeper/internal/events"
	"goalkeeper/internal/goals"
	"goalkeeper/internal/migrate"
)

const journalTimeout = 2 * time.Second

// App bundles the goal store with the services that observe it.
type App struct {
	Store   *goals.Store
	Journal *events.Journal
	Config  *config.Config
	Log     zerolog.Logger

	db     *sql.DB
	cancel context.CancelFunc
}

type Options struct {
	Now func() time.Time
}

// New builds the store described by cfg and subscribes the journal (when
// enabled) and a debug change log to it.
func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Store:  goals.New(goals.Options{IDs: IDSource(cfg), Now: opts.Now}),
		Config: cfg,
		Log:    log,
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if cfg.Journal.Enabled {
		conn, err := db.Open(db.Config{})
		if err != nil {
			cancel()
			return nil, err
		}
		v, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			cancel()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		a.db = conn
		a.Journal = &events.Journal{DB: conn}
		a.Store.Subscribe(a.Journal.Listener(ctx, log, journalTimeout))
		log.Debug().Int("schema_version", v).Msg("journal ready")
	}
	a.Store.Subscribe(changeLogger(log))
	return a, nil
}

// IDSource picks the identifier scheme configured in cfg.
func IDSource(cfg *config.Config) goals.IDSource {
	if cfg.IDs.Scheme == config.SchemeUUID {
		return goals.NewUUIDIDs(cfg.Namespace())
	}
	return goals.NewCounterIDs(cfg.IDs.Prefix)
}

func changeLogger(log zerolog.Logger) goals.Listener {
	return func(c domain.Change) {
		log.Debug().
			Int64("seq", c.Seq).
			Str("kind", string(c.Kind)).
			Str("goal_id", c.GoalID).
			Bool("completed", c.Goal.Completed).
			Msg("goal changed")
	}
}

// Close stops the journal listener and drops the in-memory journal.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
