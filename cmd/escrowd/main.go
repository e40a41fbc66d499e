package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	backend "github.com/moonpact/escrowd"
	"github.com/moonpact/escrowd/suirpc"
	"golang.org/x/sync/errgroup"
)

var cfg struct {
	dbPath     string
	port       int
	rpcURL     string
	packageID  string
	coinTypes  string
	issuer     string
	jwtSecret  string
	listingTTL time.Duration
}

func init() {
	flag.StringVar(&cfg.dbPath, "db", "escrowd.db", "database path")
	flag.IntVar(&cfg.port, "port", 8080, "http port")
	flag.StringVar(&cfg.rpcURL, "rpc", "https://fullnode.testnet.sui.io", "node rpc endpoint")
	flag.StringVar(&cfg.packageID, "package", "", "escrow contract package id")
	flag.StringVar(&cfg.coinTypes, "coins", "0x2::sui::SUI", "comma separated coin types for the balances view")
	flag.StringVar(&cfg.issuer, "issuer", "escrowd", "token issuer")
	flag.StringVar(&cfg.jwtSecret, "secret", "", "token signing secret")
	flag.DurationVar(&cfg.listingTTL, "ttl", time.Minute, "listing cache ttl")

	flag.Parse()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if cfg.packageID == "" {
		slog.Error("package id is required")
		return
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.dbPath))
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		return
	}

	slog.Info("escrowd launch", "package", cfg.packageID, "rpc", cfg.rpcURL)

	svr := backend.NewServer(db, suirpc.NewClient(cfg.rpcURL), backend.Config{
		PackageID:  cfg.packageID,
		CoinTypes:  strings.Split(cfg.coinTypes, ","),
		Issuer:     cfg.issuer,
		JWTSecret:  []byte(cfg.jwtSecret),
		ListingTTL: cfg.listingTTL,
	})

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		return s.ListenAndServe()
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.Shutdown(ctx)
	})

	g.Go(func() error {
		return runGC(ctx, db, time.Minute)
	})

	g.Go(func() error {
		return svr.Run(ctx)
	})

	_ = g.Wait()
}

func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
			_ = db.RunValueLogGC(0.7)
		}
	}
}
