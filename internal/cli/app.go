package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/feedtray/feedtray/internal/config"
	"github.com/feedtray/feedtray/internal/fetch"
	"github.com/feedtray/feedtray/internal/manager"
	"github.com/feedtray/feedtray/internal/parse"
	"github.com/feedtray/feedtray/internal/store"
)

type App struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.Store
	client  *fetch.Client
	parser  *parse.Parser
	manager *manager.Manager
}

func NewApp(cfg config.Config, dbPath string) (*App, error) {
	cfg.DBPath = dbPath
	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := store.NewStore(db)
	client := fetch.NewClient(cfg)
	parser := parse.NewParser()
	mgr := manager.New(s, client, parser, cfg, stderrNotifier{})

	return &App{
		cfg:     cfg,
		db:      db,
		store:   s,
		client:  client,
		parser:  parser,
		manager: mgr,
	}, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// stderrNotifier is the terminal stand-in for a desktop notification
// center: one line per batch on stderr, keeping stdout parseable.
type stderrNotifier struct{}

func (stderrNotifier) Notify(ctx context.Context, batch manager.Batch) {
	fmt.Fprintf(os.Stderr, "%d new article(s) from %s\n",
		len(batch.Articles), strings.Join(batch.SourceTitles, ", "))
}
