// Package commentbox wires the comment widget host together from environment
// configuration.
package commentbox

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/commentbox/authentication"
	"github.com/nasermirzaei89/commentbox/authorization"
	"github.com/nasermirzaei89/commentbox/authorization/casbin"
	"github.com/nasermirzaei89/commentbox/db/sqlite3"
	"github.com/nasermirzaei89/commentbox/discuss"
	"github.com/nasermirzaei89/commentbox/discuss/memory"
	"github.com/nasermirzaei89/commentbox/random"
	"github.com/nasermirzaei89/commentbox/server"
	"github.com/nasermirzaei89/commentbox/web"
	"github.com/nasermirzaei89/commentbox/widget"
	"github.com/nasermirzaei89/env"
)

const (
	CommentStoreSQLite = "sqlite"
	CommentStoreMemory = "memory"

	defaultJanitorInterval        = time.Minute
	defaultSessionCleanupInterval = time.Hour
)

type App struct {
	server                 *server.Server
	handler                *web.Handler
	registry               *web.Registry
	authSvc                *authentication.Service
	db                     *sql.DB
	janitorInterval        time.Duration
	sessionCleanupInterval time.Duration
}

//go:embed policy.csv
var defaultAuthorizationPolicyContent string

type UnknownCommentStoreError struct {
	Store string
}

func (err UnknownCommentStoreError) Error() string {
	return fmt.Sprintf("unknown comment store %q", err.Store)
}

func NewApp(ctx context.Context) (*App, error) {
	db, err := sqlite3.NewDB(ctx, env.GetString("DB_DSN", "file::memory:?cache=shared"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	err = sqlite3.MigrateUp(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	userRepo := sqlite3.NewUserRepository(db)
	sessionRepo := sqlite3.NewSessionRepository(db)

	authzSvc, err := newAuthorizationService(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization service: %w", err)
	}

	authzClient := authorization.NewClient(authzSvc)

	authSvc := authentication.NewService(
		userRepo,
		sessionRepo,
		authzClient,
		env.GetStringSlice("MANAGER_USERNAMES", []string{}),
	)

	if err := authSvc.LoadBloomFilter(ctx, 10_000, 0.01); err != nil {
		return nil, fmt.Errorf("failed to load bloom filter: %w", err)
	}

	commentStore, err := newCommentStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment store: %w", err)
	}

	api := discuss.NewAuthorizationMiddleware(authzClient, commentStore)

	sessionName := env.GetString("SESSION_NAME", "commentbox-"+random.Hex(4))
	cookieStore := sessions.NewCookieStore(secretFromEnv("SESSION_KEY"))

	csrfAuthKeys := secretFromEnv("CSRF_AUTH_KEY")
	csrfTrustedOrigins := env.GetStringSlice("CSRF_TRUSTED_ORIGINS", []string{})

	registry := web.NewRegistry(
		getDuration("WIDGET_IDLE_TIMEOUT", web.DefaultIdleTimeout),
		getInt("WIDGET_MAX_INSTANCES", web.DefaultMaxWidgets),
	)

	srv := newServer()

	httpHandler, err := web.NewHandler(
		authSvc,
		api,
		registry,
		newWidgetConfig(),
		cookieStore,
		sessionName,
		csrfAuthKeys,
		csrfTrustedOrigins,
		!srv.TLS.Enabled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP handler: %w", err)
	}

	app := &App{
		server:                 srv,
		handler:                httpHandler,
		registry:               registry,
		authSvc:                authSvc,
		db:                     db,
		janitorInterval:        max(getDuration("WIDGET_JANITOR_INTERVAL", defaultJanitorInterval), time.Second),
		sessionCleanupInterval: max(getDuration("SESSION_CLEANUP_INTERVAL", defaultSessionCleanupInterval), time.Second),
	}

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	// Handle SIGINT (CTRL+C) and SIGTERM gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if app.db != nil {
			err := app.db.Close()
			if err != nil {
				slog.ErrorContext(ctx, "failed to close database", "error", err)
			}
		}
	}()

	var wg sync.WaitGroup

	wg.Go(func() {
		app.registry.RunJanitor(ctx, app.janitorInterval)
	})

	wg.Go(func() {
		app.runSessionCleanup(ctx)
	})

	err := app.server.Run(ctx, app.handler)

	stop()
	wg.Wait()
	app.registry.Close()

	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func (app *App) runSessionCleanup(ctx context.Context) {
	ticker := time.NewTicker(app.sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := app.authSvc.DeleteExpiredSessions(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to delete expired sessions", "error", err)

				continue
			}

			if count > 0 {
				slog.InfoContext(ctx, "deleted expired sessions", "count", count)
			}
		}
	}
}

func newCommentStore(ctx context.Context, db *sql.DB) (discuss.API, error) {
	store := env.GetString("COMMENT_STORE", CommentStoreSQLite)

	switch store {
	case CommentStoreSQLite:
		return discuss.NewService(sqlite3.NewCommentRepository(db)), nil
	case CommentStoreMemory:
		delay := getDuration("MEMORY_STORE_DELAY", memory.DefaultDelay)

		slog.InfoContext(ctx, "using in-memory comment store", "delay", delay)

		return memory.NewStore(memory.WithDelay(delay)), nil
	default:
		return nil, &UnknownCommentStoreError{Store: store}
	}
}

func newWidgetConfig() web.WidgetConfig {
	sort := discuss.Sort(env.GetString("WIDGET_SORT", string(discuss.SortLatest)))
	if !sort.IsValid() {
		slog.Warn("unknown widget sort, defaulting to latest", "sort", sort)

		sort = discuss.SortLatest
	}

	return web.WidgetConfig{
		PageSize:        getInt("WIDGET_PAGE_SIZE", widget.DefaultPageSize),
		Sort:            sort,
		Theme:           widget.Theme(env.GetString("WIDGET_THEME", string(widget.ThemeLight))),
		Responsive:      env.GetBool("WIDGET_RESPONSIVE", true),
		Locale:          env.GetString("WIDGET_LOCALE", ""),
		DefaultObjectID: env.GetString("WIDGET_DEFAULT_OBJECT_ID", memory.SeedObjectID),
	}
}

func newServer() *server.Server {
	server := &server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	return server
}

// secretFromEnv returns the configured secret or a random one. Random secrets
// do not survive a restart, so sessions are lost with them.
func secretFromEnv(key string) []byte {
	value := env.GetString(key, "")
	if value == "" {
		slog.Warn("secret not configured, using a random one", "key", key)

		return random.Key(32)
	}

	return []byte(value)
}

func getInt(key string, defaultValue int) int {
	value := env.GetString(key, "")
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", value, "default", defaultValue)

		return defaultValue
	}

	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := env.GetString(key, "")
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", defaultValue)

		return defaultValue
	}

	return d
}

func GetLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}

func newAuthorizationService(ctx context.Context, db *sql.DB) (*authorization.Service, error) {
	provider, err := casbin.NewSQLAuthorizationProvider(db, "sqlite3", casbin.DefaultRuleTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization provider: %w", err)
	}

	authzSvc, err := authorization.NewService(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization service: %w", err)
	}

	policyContent, err := loadPolicyContent()
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policy content: %w", err)
	}

	policy, err := authorization.ParsePolicy(policyContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization policy: %w", err)
	}

	err = authzSvc.Seed(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to seed authorization policy: %w", err)
	}

	return authzSvc, nil
}

func loadPolicyContent() (string, error) {
	policyFilePath := env.GetString("AUTHORIZATION_POLICY_FILE", "")

	if policyFilePath == "" {
		return defaultAuthorizationPolicyContent, nil
	}

	content, err := os.ReadFile(policyFilePath) // nolint:gosec
	if err != nil {
		return "", fmt.Errorf("failed to read policy file %q: %w", policyFilePath, err)
	}

	return string(content), nil
}
