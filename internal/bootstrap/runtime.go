// Package bootstrap builds the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"facefeed/internal/biometric"
	"facefeed/internal/cache"
	"facefeed/internal/config"
	"facefeed/internal/database"
	"facefeed/internal/identity"
	"facefeed/internal/media"
	"facefeed/internal/middleware"
	"facefeed/internal/notifications"
	"facefeed/internal/repository"
	"facefeed/internal/server"
	"facefeed/internal/service"
	"facefeed/internal/storage"
	"facefeed/internal/validation"

	"github.com/redis/go-redis/v9"
)

const upstreamTimeout = 10 * time.Second

// Options control runtime initialization behavior.
type Options struct {
	// Migrate applies pending SQL migrations after connecting.
	Migrate bool
	// SkipRedis leaves Redis unconfigured, e.g. for one-off commands.
	SkipRedis bool
}

// Runtime is the set of connections a command owns. Redis is nil when it is
// skipped or unreachable.
type Runtime struct {
	Config *config.Config
	DB     *database.Handles
	Tx     *database.TxManager
	Redis  *redis.Client
	Cache  *cache.Cache
	Deps   service.Deps
}

// InitRuntime connects to the database and Redis and builds the repositories.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	handles, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.Migrate {
		if err := database.RunMigrations(ctx, handles.Primary); err != nil {
			_ = handles.Close()
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	}

	rt := &Runtime{
		Config: cfg,
		DB:     handles,
		Tx:     database.NewTxManager(handles.Primary, handles.Replica),
	}

	if !opts.SkipRedis && cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			middleware.Logger.Warn("Redis unavailable, continuing without cache and fan-out",
				slog.String("addr", cfg.RedisURL), slog.String("error", err.Error()))
		} else {
			rt.Redis = rdb
			rt.Cache = cache.New(rdb)
		}
	}

	hosts := slices.Clone(validation.DefaultVideoHosts)
	if h := cfg.BlobPublicHost(); h != "" {
		hosts = append(hosts, h)
	}
	rt.Deps = NewDeps(rt.Tx, rt.Cache, hosts)
	return rt, nil
}

// NewDeps wires the repositories and shared services over tm.
func NewDeps(tm *database.TxManager, c *cache.Cache, videoHosts []string) service.Deps {
	users := repository.NewUserRepository(tm, c)
	perms := repository.NewPermissionRepository(tm)
	return service.Deps{
		Tx:          tm,
		Posts:       repository.NewPostRepository(tm, c),
		Comments:    repository.NewCommentRepository(tm),
		Likes:       repository.NewLikeRepository(tm),
		Users:       users,
		Engagement:  repository.NewEngagementRepository(tm),
		Settings:    repository.NewSettingsRepository(tm),
		Permissions: perms,
		Activity:    service.NewActivityLog(repository.NewActivityRepository(tm)),
		Authz:       service.NewAuthorizer(users, perms),
		VideoHosts:  videoHosts,
	}
}

// Close releases the database and Redis connections.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return errors.Join(errs...)
}

// ServerOptions builds everything the HTTP server needs on top of the
// runtime. The biometric provider is probed in the background; until the
// probe finishes face verification reports itself as pending.
func (rt *Runtime) ServerOptions(ctx context.Context) (server.Options, error) {
	cfg := rt.Config

	verifier, err := identity.NewSessionVerifier(identity.VerifierConfig{
		PublicKeyPEM: cfg.IdentityJWTKey,
		Secret:       cfg.IdentityJWTSecret,
		Issuer:       cfg.IdentityIssuer,
	})
	if err != nil {
		return server.Options{}, fmt.Errorf("session verifier: %w", err)
	}

	var directory identity.Directory
	if cfg.IdentitySecretKey != "" {
		directory = identity.NewHTTPDirectory(cfg.IdentityAPIURL, cfg.IdentitySecretKey, upstreamTimeout)
	} else {
		middleware.Logger.Warn("IDENTITY_SECRET_KEY not set, using an empty in-memory user directory")
		directory = identity.NewMemoryDirectory()
	}

	var bioClient biometric.Client
	if cfg.BiometricAppID != "" && cfg.BiometricAPIKey != "" {
		bioClient = biometric.NewHTTPClient(cfg.BiometricAPIURL, cfg.BiometricAppID, cfg.BiometricAPIKey, upstreamTimeout)
	}
	loader := biometric.NewLoader(bioClient)
	go func() {
		r := loader.Initialize(ctx)
		if !r.Ready() {
			attrs := []any{slog.String("state", string(r.State)), slog.Int("attempts", r.Attempts)}
			if r.Err != nil {
				attrs = append(attrs, slog.String("error", r.Err.Error()))
			}
			middleware.Logger.Warn("Biometric provider unavailable", attrs...)
		}
	}()

	store, err := storage.New(cfg)
	if err != nil {
		return server.Options{}, fmt.Errorf("blob storage: %w", err)
	}
	mediaSvc := media.NewService(store, cfg.MediaMaxMB)

	hub := notifications.NewHub(notifications.NewNotifier(rt.Redis))

	opts := server.Options{
		Config:          cfg,
		DB:              rt.DB.Primary,
		Redis:           rt.Redis,
		Deps:            rt.Deps,
		Sessions:        repository.NewSessionRepository(rt.Tx),
		Verifier:        verifier,
		Directory:       directory,
		Biometric:       loader,
		BiometricClient: bioClient,
		Media:           mediaSvc,
		Hub:             hub,
	}
	if local, ok := store.(*storage.LocalStore); ok {
		opts.UploadsDir = local.Dir()
	}
	return opts, nil
}
