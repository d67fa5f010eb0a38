package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/launchpad/internal/engine"
	"github.com/terminal-bench/launchpad/internal/gateway"
	"github.com/terminal-bench/launchpad/internal/journal"
	"github.com/terminal-bench/launchpad/internal/metrics"
	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/messaging"
)

type config struct {
	Port          string
	JWTSecret     string
	NATSUrl       string
	DatabaseURL   string
	RedisAddr     string
	EtcdEndpoints string
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
}

func loadConfig() config {
	return config{
		Port:          getEnv("PORT", "8010"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		NATSUrl:       os.Getenv("NATS_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		EtcdEndpoints: os.Getenv("ETCD_ENDPOINTS"),
		InfluxURL:     os.Getenv("INFLUXDB_URL"),
		InfluxToken:   os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:     getEnv("INFLUXDB_ORG", "launchpad"),
		InfluxBucket:  getEnv("INFLUXDB_BUCKET", "settlement"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// oracleDefaults reads boot-time oracle bounds from etcd, falling back
// to the built-in defaults when etcd is not configured or the keys are
// absent.
func oracleDefaults(ctx context.Context, endpoints string) oracle.Config {
	cfg := oracle.DefaultConfig()
	if endpoints == "" {
		return cfg
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoints},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Printf("etcd unavailable, using oracle defaults: %v", err)
		return cfg
	}
	defer cli.Close()

	if v := etcdValue(ctx, cli, "launchpad/oracle/max_staleness_seconds"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.MaxStaleness = time.Duration(secs) * time.Second
		}
	}
	if v := etcdValue(ctx, cli, "launchpad/oracle/max_conf_bps"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil && bps > 0 {
			cfg.MaxConfBps = bps
		}
	}
	return cfg
}

func etcdValue(ctx context.Context, cli *clientv3.Client, key string) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := cli.Get(ctx, key)
	if err != nil || len(resp.Kvs) == 0 {
		return ""
	}
	return string(resp.Kvs[0].Value)
}

func main() {
	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	quotes := oracle.NewGuardedSource(
		oracle.NewRedisSource(cfg.RedisAddr),
		5, 30*time.Second,
	)

	eng := engine.New(engine.Options{
		Bank:           engine.NewMemoryBank(),
		Quotes:         quotes,
		OracleDefaults: oracleDefaults(ctx, cfg.EtcdEndpoints),
	})

	var msgClient *messaging.Client
	if cfg.NATSUrl != "" {
		var err error
		msgClient, err = messaging.NewClient(messaging.Config{
			URL:            cfg.NATSUrl,
			Name:           "launchpad",
			ReconnectWait:  time.Second,
			MaxReconnects:  60,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer msgClient.Close()
	}

	var jrnl *journal.Journal
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		jrnl = journal.New(db)
		if err := jrnl.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate journal: %v", err)
		}
	}

	var rec *metrics.Recorder
	if cfg.InfluxURL != "" {
		rec = metrics.NewRecorder(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer rec.Close()
	}

	gw := gateway.New(gateway.Config{JWTSecret: cfg.JWTSecret}, eng, msgClient, jrnl, rec)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gw.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Launchpad listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Launchpad stopped: %v", err)
	}
	log.Println("Launchpad stopped")
}
