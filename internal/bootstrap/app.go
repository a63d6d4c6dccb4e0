package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"resumate/internal/appstate"
	"resumate/internal/editor"
	"resumate/internal/extract"
	"resumate/internal/header"
	"resumate/internal/jobfetch"
	"resumate/internal/keywords"
	"resumate/internal/llm"
	openai "resumate/internal/llm/openai"
	"resumate/internal/peersync"
	"resumate/internal/projects"
	"resumate/internal/services/health"
	"resumate/internal/shared/config"
	"resumate/internal/shared/server"
	"resumate/internal/shared/server/middleware"
	"resumate/internal/shared/storage/db"
	"resumate/internal/shared/storage/kv"
	"resumate/internal/shared/storage/object"
	localstore "resumate/internal/shared/storage/object/local"
	s3store "resumate/internal/shared/storage/object/s3"
	"resumate/internal/shared/telemetry"
	"resumate/internal/snapshot"
	"resumate/internal/tuning"
)

// App holds shared dependencies.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	DB        *sql.DB
	Store     kv.Store
	Backups   object.Store
	LLM       llm.Client
	Keywords  []string
	State     *appstate.State
	Projects  *projects.Service
	Snapshots *snapshot.Service
	Tuner     *tuning.Tuner
	Peers     *peersync.Manager
	Relay     *peersync.Relay
	Health    *health.Service

	closers []func()
}

// Build prepares every dependency and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()
	app := &App{Config: cfg, Health: health.NewService()}

	if err := app.buildStore(ctx); err != nil {
		return nil, err
	}
	backups, err := buildBackups(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Backups = backups

	dictionary, err := loadKeywords(cfg.KeywordsFile)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Keywords = dictionary

	if err := app.buildServices(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.buildPeers(); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Health:          app.Health,
		EditorHandler:   editor.NewHandler(app.State),
		ProjectHandler:  projects.NewHandler(app.Projects),
		SnapshotHandler: snapshot.NewHandler(app.Snapshots),
		TuneHandler:     tuning.NewHandler(app.Tuner),
		PeerHandler:     peersync.NewHandler(app.Peers),
		PeerRelay:       app.Relay,
		JobHandler:      jobfetch.NewHandler(jobfetch.NewFetcher(0), app.State),
		ExtractHandler:  extract.NewHandler(app.State),
		RateLimiter:     middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close flushes pending state writes and releases connections in reverse order.
func (a *App) Close() {
	if a.Peers != nil {
		_ = a.Peers.Close()
	}
	if a.State != nil {
		if err := a.State.Close(); err != nil {
			telemetry.Warn("bootstrap.state_flush_failed", map[string]any{"error": err})
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildStore(ctx context.Context) error {
	schemas := []kv.Schema{projects.Schema, appstate.Schema}

	var (
		dialect db.Dialect
		dsn     string
		opts    db.Options
	)
	switch a.Config.StoreDriver {
	case "memory":
		telemetry.Info("bootstrap.store", map[string]any{"driver": "memory"})
		a.Store = kv.NewMemoryStore(schemas...)
		return nil
	case "postgres":
		if strings.TrimSpace(a.Config.DatabaseURL) == "" {
			return errors.New("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		dialect, dsn, opts = db.DialectPostgres, a.Config.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions())
	default:
		if dir := filepath.Dir(a.Config.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialect, dsn, opts = db.DialectSQLite, a.Config.SQLitePath, db.DefaultSQLiteOptions()
	}

	sqlDB, err := db.Connect(ctx, dialect, dsn, opts)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		_ = sqlDB.Close()
		return err
	}
	telemetry.Info("bootstrap.store", map[string]any{"driver": string(dialect)})

	a.DB = sqlDB
	a.Store = kv.NewSQLStore(sqlDB, schemas...)
	a.closers = append(a.closers, func() { _ = a.Store.Close() })
	a.Health.Register("database", sqlDB.PingContext)
	return nil
}

func buildBackups(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		if strings.TrimSpace(cfg.LocalStoreDir) == "" {
			return nil, nil
		}
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func loadKeywords(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return keywords.Default(), nil
	}
	list, err := keywords.LoadDictionary(path)
	if err != nil {
		return nil, err
	}
	telemetry.Info("bootstrap.keywords", map[string]any{"path": path, "count": len(list)})
	return list, nil
}

func (a *App) buildServices(ctx context.Context) error {
	st, err := appstate.New(a.Store)
	if err != nil {
		return err
	}
	if err := st.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if _, err := st.Seed(ctx, a.Keywords, header.Render); err != nil {
		return fmt.Errorf("seed state: %w", err)
	}
	a.State = st

	repo, err := projects.NewKVRepo(a.Store)
	if err != nil {
		return err
	}
	a.Projects = projects.NewService(repo, st)
	if _, err := a.Projects.ListNames(ctx); err != nil {
		return fmt.Errorf("index projects: %w", err)
	}

	a.Snapshots = &snapshot.Service{
		Store:    a.Store,
		State:    st,
		Projects: a.Projects,
		Keywords: a.Keywords,
		Backups:  a.Backups,
	}

	a.LLM = openai.NewClient(a.Config.LLMAPIURL, a.Config.LLMTimeout)
	a.Tuner = tuning.NewTuner(a.LLM, st, a.Config.TuneFlushInterval)
	return nil
}

func (a *App) buildPeers() error {
	a.Relay = peersync.NewRelay()

	var transport peersync.Transport
	switch a.Config.PeerTransport {
	case "websocket":
		base := strings.TrimSpace(a.Config.PeerRelayURL)
		if base == "" {
			base = "ws://127.0.0.1" + server.Addr("", a.Config.Port) + "/api/v1/peer/relay"
		}
		transport = peersync.NewWebSocketTransport(base)
	case "redis":
		rt, err := peersync.NewRedisTransport(a.Config.RedisAddr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rt.Close)
		a.Health.Register("redis", rt.Ping)
		transport = rt
	default:
		transport = peersync.NewMemoryHub()
	}
	telemetry.Info("bootstrap.peer_transport", map[string]any{"transport": a.Config.PeerTransport})

	a.Peers = peersync.NewManager(transport, a.Snapshots)
	return nil
}
