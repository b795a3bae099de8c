package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	authgin "github.com/open-rails/openidkit/adapters/gin"
	"github.com/open-rails/openidkit/adapters/ginutil"
	"github.com/open-rails/openidkit/core"
	redisstore "github.com/open-rails/openidkit/storage/redis"
)

type config struct {
	ListenAddr string
	ConfigFile string
	DevMode    bool
	RedisURL   string
	LogLevel   string
	Protect    string
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg := loadConfig()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	cmd := "serve"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		cmd = strings.TrimSpace(os.Args[1])
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(cfg)
	case "check":
		err = runCheck(cfg)
	default:
		err = fmt.Errorf("unknown command %q (supported: serve, check)", cmd)
	}
	if err != nil {
		log.WithError(err).Fatal("openid-devserver")
	}
}

func loadConfig() *config {
	return &config{
		ListenAddr: envOr("OPENID_LISTEN_ADDR", ":8080"),
		ConfigFile: strings.TrimSpace(os.Getenv("OPENID_CONFIG_FILE")),
		DevMode:    envBool("OPENID_DEV_MODE", false),
		RedisURL:   strings.TrimSpace(os.Getenv("REDIS_URL")),
		LogLevel:   envOr("OPENID_LOG_LEVEL", "info"),
		Protect:    strings.TrimSpace(os.Getenv("OPENID_ME_PROVIDER")),
	}
}

func newRegistry(ctx context.Context, cfg *config) (*core.Registry, error) {
	v := viper.New()
	if cfg.ConfigFile != "" {
		v.SetConfigFile(cfg.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.ConfigFile, err)
		}
	}
	providers, err := core.LoadProviders(v, core.DefaultConfigKey)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no providers under %q (set OPENID_CONFIG_FILE)", core.ErrConfiguration, core.DefaultConfigKey)
	}
	return core.NewRegistry(ctx, core.Config{
		Providers:   providers,
		Development: cfg.DevMode,
		Logger:      log.StandardLogger(),
	})
}

func runServe(cfg *config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := authgin.NewService(reg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.RedisURL != "" {
		kv, err := redisstore.NewKVFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer kv.Close()
		svc.WithEphemeralStore(kv, core.EphemeralRedis)
	}

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), ginutil.RequestLogger(log.StandardLogger()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ephemeral": svc.EphemeralMode()})
	})
	svc.Mount(r)

	if name := protectedProvider(cfg, reg); name != "" {
		r.GET("/me", svc.AuthRequired(name), func(c *gin.Context) {
			p, _ := authgin.PrincipalFromGin(c)
			c.JSON(http.StatusOK, gin.H{"provider": name, "principal": p})
		})
		log.WithField("provider", name).Info("openid: /me protected")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("openid-devserver listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runCheck waits for every issuer's discovery and reports the result.
func runCheck(cfg *config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	var failed int
	for _, issuer := range reg.Issuers() {
		doc, err := reg.AwaitDiscovery(ctx, issuer)
		entry := log.WithField("issuer", issuer)
		if err != nil {
			failed++
			entry.WithError(err).Error("discovery failed")
			continue
		}
		entry.WithFields(log.Fields{
			"token_endpoint": doc.TokenEndpoint,
			"jwks_uri":       doc.JWKSURI,
			"end_session":    doc.EndSessionEndpoint != "",
		}).Info("discovery ok")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d issuers failed discovery", failed, len(reg.Issuers()))
	}
	return nil
}

// protectedProvider picks OPENID_ME_PROVIDER, else the first JWT provider.
func protectedProvider(cfg *config, reg *core.Registry) string {
	if cfg.Protect != "" {
		return cfg.Protect
	}
	if jwks := reg.JWKProviders(); len(jwks) > 0 {
		return jwks[0].Name
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
