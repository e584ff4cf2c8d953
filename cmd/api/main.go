package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claviger.org/internal/config"
	"claviger.org/internal/fieldcrypt"
	"claviger.org/internal/httpapi"
	"claviger.org/internal/obs"
	"claviger.org/internal/pool"
	"claviger.org/internal/rbac"
	"claviger.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	p, err := pool.Open(pool.Config{
		DSN:              cfg.DatabaseURL,
		BaseSize:         cfg.PoolBaseSize,
		Overflow:         cfg.PoolOverflow,
		CheckoutTimeout:  cfg.CheckoutTimeout,
		MaxConnAge:       cfg.MaxConnAge,
		FailureThreshold: cfg.BreakerThreshold,
		RecoveryCooldown: cfg.BreakerCooldown,
	})
	if err != nil {
		log.Fatalf("open pool: %v", err)
	}

	store, err := pg.New(p)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	codec := fieldcrypt.Disabled()
	if cfg.EncryptionEnabled {
		cipher, err := fieldcrypt.NewCipher(fieldcrypt.DeriveKey([]byte(cfg.EncryptionSecret), fieldcrypt.DefaultSalt))
		if err != nil {
			log.Fatalf("field cipher: %v", err)
		}
		codec, err = fieldcrypt.NewCodec(cipher, true)
		if err != nil {
			log.Fatalf("field codec: %v", err)
		}
	}

	resolver, err := rbac.NewResolver(store, codec)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	api := httpapi.New(resolver, httpapi.ReadyProbe{Pinger: p}, version,
		httpapi.WithJWTSecret(cfg.JWTSecret),
		httpapi.WithRateLimit(cfg.RateLimitBurst, int(cfg.RateLimitRPS)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting claviger-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = p.Close()
	log.Println("Stopped")
}
