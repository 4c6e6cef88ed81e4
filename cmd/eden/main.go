package main

import (
	"context"
	"errors"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/eden/adapters/events"
	"github.com/layer-3/eden/adapters/ledger"
	"github.com/layer-3/eden/adapters/store"
	"github.com/layer-3/eden/adapters/tokenizer"
	"github.com/layer-3/eden/config"
	"github.com/layer-3/eden/logger"
	"github.com/layer-3/eden/ports"
	"github.com/layer-3/eden/service"
	transport "github.com/layer-3/eden/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("eden stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		challenges ports.ChallengeStore = store.NewMemoryChallengeStore()
		identities ports.IdentityStore  = store.NewMemoryIdentityStore()
		eventPub   ports.EventPublisher = events.Discard{}
	)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		challenges = store.NewRedisChallengeStore(redisClient)
		identities = store.NewRedisIdentityStore(redisClient)

		if cfg.Events.Enabled {
			publisher, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{
					Client: redisClient,
				},
				logger.NewWatermillAdapter(lg),
			)
			if err != nil {
				return err
			}
			defer publisher.Close()
			eventPub = events.NewWatermillPublisher(publisher, cfg.Events.StreamPrefix)
		}
	}

	bookingLedger, err := newLedger(cfg.Ledger, lg)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		service.AuthConfig{
			Domain:       cfg.Auth.Domain,
			Statement:    cfg.Auth.Statement,
			ChainID:      cfg.Auth.ChainID,
			ChallengeTTL: cfg.Auth.ChallengeTTL,
		},
		challenges,
		service.NewIdentityResolver(identities, cfg.Auth.IdentitySalt),
		tokenizer.NewHMACTokenizer([]byte(cfg.Session.Secret), cfg.Session.Lifetime),
		eventPub,
		lg,
	)
	bookingService := service.NewBookingService(
		store.NewMemoryBookingStore(),
		bookingLedger,
		eventPub,
		lg,
		cfg.Ledger.Timeout,
	)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           transport.SetupRouter(authService, bookingService, lg, cfg.HTTP.SecureCookies),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return authService.RunSweeper(gctx, cfg.Auth.SweepInterval)
	})

	return g.Wait()
}

func newLedger(cfg config.Ledger, lg *zap.Logger) (ports.Ledger, error) {
	if !cfg.Configured() {
		lg.Warn("ledger not configured, bookings will stay pending")
		return ledger.Unconfigured{}, nil
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	l, err := ledger.NewEthereumLedger(client, cfg.ContractAddress, key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, err
	}
	lg.Info("ledger configured",
		zap.String("contract", cfg.ContractAddress),
		zap.String("operator", l.Operator().Hex()))
	return l, nil
}
