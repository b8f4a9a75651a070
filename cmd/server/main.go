// Command server runs the billing API: checkout, provider callbacks,
// webhooks and the admin console endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	billingmod "github.com/theBullfish/replier-web/modules/billing"
	"github.com/theBullfish/replier-web/pkg/clientip"
	"github.com/theBullfish/replier-web/pkg/config"
	"github.com/theBullfish/replier-web/pkg/email"
	"github.com/theBullfish/replier-web/pkg/environment"
	"github.com/theBullfish/replier-web/pkg/httpserver"
	"github.com/theBullfish/replier-web/pkg/jwt"
	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/pg"
	"github.com/theBullfish/replier-web/pkg/ratelimiter"
	"github.com/theBullfish/replier-web/pkg/redis"
	"github.com/theBullfish/replier-web/pkg/requestid"
	"github.com/theBullfish/replier-web/pkg/secrets"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

type appConfig struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	BaseURL         string        `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	ClientIPHeaders []string      `env:"CLIENT_IP_HEADERS" envSeparator:","`
	DedupeTTL       time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"72h"`
	DedupeCapacity  int           `env:"WEBHOOK_DEDUPE_CAPACITY" envDefault:"10000"`
	SettingsKey     string        `env:"SETTINGS_ENCRYPTION_KEY"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	env := environment.Parse(cfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, "replier-billing"),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			jwt.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, env, log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, env environment.Environment, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		pgCfg    pg.Config
		redisCfg redis.Config
		httpCfg  httpserver.Config
		mailCfg  email.Config
		payCfg   payment.HTTPConfig
		jwtCfg   jwt.Config
		rateCfg  ratelimiter.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&mailCfg) },
		func() error { return config.Load(&payCfg) },
		func() error { return config.Load(&jwtCfg) },
		func() error { return config.Load(&rateCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}
	checks := []func(context.Context) error{pg.Healthcheck(pool)}

	var (
		dedupe     billing.Deduplicator = billing.NewMemoryDeduplicator(cfg.DedupeCapacity)
		limitStore ratelimiter.Store
	)
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		dedupe = redis.NewDeduplicator(client, "webhook:")
		limitStore = redis.NewRateLimitStore(client, "ratelimit:")
		checks = append(checks, redis.Healthcheck(client))
	} else {
		log.Warn("redis is not configured, webhook dedupe and rate limits are per process")
		mem := ratelimiter.NewMemoryStore()
		go mem.Run(ctx, 10*time.Minute)
		limitStore = mem
	}
	limiter, err := ratelimiter.NewBucket(limitStore, rateCfg)
	if err != nil {
		return err
	}

	var storeOpts []settings.PgStoreOption
	if cfg.SettingsKey != "" {
		key, err := secrets.ParseKey(cfg.SettingsKey)
		if err != nil {
			return err
		}
		cipher, err := secrets.NewCipher(key, "settings")
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, settings.WithSealer(cipher))
	} else if env.IsProduction() {
		return errors.New("SETTINGS_ENCRYPTION_KEY is required in production")
	}

	settingsSvc := settings.NewService(
		settings.NewPgStore(pool, storeOpts...),
		settings.WithDefaults(settings.Defaults(cfg.BaseURL)),
		settings.WithLogger(log),
	)

	sender, err := email.New(mailCfg)
	if err != nil {
		return err
	}

	providers := payment.NewSelector(
		payment.WithHTTPConfig(payCfg),
		payment.WithSiteURL(cfg.BaseURL),
		payment.WithLogger(log),
	)
	billingSvc := billing.NewService(
		billing.NewPgStore(pool),
		settingsSvc,
		providers,
		billing.WithLogger(log),
		billing.WithDeduplicator(dedupe, cfg.DedupeTTL),
		billing.WithNotifier(billing.NewEmailNotifier(sender)),
	)

	tokens, err := jwt.New(jwtCfg)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		clientip.Middleware(cfg.ClientIPHeaders...),
		environment.Middleware(env),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestid.Header},
			ExposedHeaders:   []string{requestid.Header},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	r.Get("/health", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, checks...))

	mod := billingmod.New(billingSvc, settingsSvc,
		billingmod.WithAuthentication(jwt.Middleware(tokens)),
		billingmod.WithAdminAuthorization(jwt.RequireRole(billingmod.AdminRole)),
		billingmod.WithRateLimiter(limiter),
		billingmod.WithLogger(log),
	)
	r.Mount("/", mod.Handle())

	srv := httpserver.New(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func() {
			log.Info("billing api ready",
				slog.String("base_url", strings.TrimRight(cfg.BaseURL, "/")),
				slog.Bool("redis", redisCfg.Enabled()),
			)
		}),
	)
	return srv.Run(ctx, r)
}
