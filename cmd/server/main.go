package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/ticketforge/mint-engine/internal/authorization"
	"github.com/ticketforge/mint-engine/internal/chain"
	"github.com/ticketforge/mint-engine/internal/clock"
	"github.com/ticketforge/mint-engine/internal/config"
	"github.com/ticketforge/mint-engine/internal/database"
	"github.com/ticketforge/mint-engine/internal/handler"
	"github.com/ticketforge/mint-engine/internal/lock"
	"github.com/ticketforge/mint-engine/internal/minting"
	"github.com/ticketforge/mint-engine/internal/queue"
	"github.com/ticketforge/mint-engine/internal/repository"
	"github.com/ticketforge/mint-engine/internal/router"
	"github.com/ticketforge/mint-engine/internal/signer"
	"github.com/ticketforge/mint-engine/internal/ticket"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal(err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		log.Fatalf("eth rpc: %v", err)
	}
	defer eth.Close()
	registry, err := chain.NewScopeRegistry(eth, cfg.ScopeRegistry)
	if err != nil {
		log.Fatalf("scope registry: %v", err)
	}

	key, err := signer.LoadKey(cfg.SignerKey)
	if err != nil {
		log.Fatalf("signer key: %v", err)
	}

	categories := repository.NewCategoryRepo(db)
	auths := repository.NewAuthorizationRepo(db)
	actionSets := repository.NewActionSetRepo(db)
	tickets := repository.NewTicketRepo(db)
	users := repository.NewUserRepo(db)
	currencies := repository.NewCurrencyRepo(db)
	groups := repository.NewGroupRepo(db)
	clk := clock.NewSystem()

	issuer := signer.NewIssuer(key, categories, currencies, groups, auths, clk,
		signer.WithGrace(cfg.AuthorizationGrace), signer.WithLogger(logger))

	opts := []authorization.ReconcilerOption{authorization.WithLogger(logger)}
	if rdb := config.NewRedisClient(cfg.Redis); rdb != nil && cfg.Lock.Enabled {
		defer rdb.Close()
		opts = append(opts, authorization.WithLocker(lock.NewRedisLocker(rdb, lock.Config{
			Prefix:     cfg.Lock.Prefix,
			TTL:        cfg.Lock.TTL,
			Wait:       cfg.Lock.Wait,
			RetryEvery: cfg.Lock.RetryEvery,
		})))
	} else {
		logger.Warn("seat locks disabled")
	}
	reconciler := authorization.NewReconciler(categories, auths, issuer, actionSets, clk, opts...)

	composer := minting.NewComposer(minting.Deps{
		Scope:          cfg,
		Scopes:         registry,
		ActionSets:     actionSets,
		Authorizations: auths,
		Token:          chain.NewToken(eth),
		Mint:           chain.NewMintController(),
		Currencies:     currencies,
		Groups:         groups,
		Tickets:        ticket.NewPredictor(tickets),
		Users:          users,
		Logger:         logger,
	})
	callbacks := minting.NewCallbackHandler(tickets, auths, logger)

	redisOpt := cfg.Redis.AsynqOpt()
	jobs := asynq.NewClient(redisOpt)
	defer jobs.Close()

	workers := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      queue.Queues,
		Logger:      asynqLogger{logger},
	})
	handlers := queue.NewHandlers(reconciler, composer, callbacks, actionSets, queue.NewPublisher(cfg.AMQPURL, logger), logger,
		func() string { return time.Now().UTC().Format(time.RFC3339) })
	mux := asynq.NewServeMux()
	handlers.Register(mux)
	if err := workers.Start(mux); err != nil {
		log.Fatalf("asynq: %v", err)
	}
	defer workers.Shutdown()

	consumer := queue.NewStatusConsumer(cfg.AMQPURL, jobs, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("status consumer stopped", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	router.RegisterRoutes(e, db)
	router.RegisterCarts(e, handler.NewCartHandler(actionSets, jobs), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "scope", cfg.Scope(), "granter", issuer.Granter().Hex())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// asynqLogger routes asynq's internal logs through slog.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug("asynq", "msg", args) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info("asynq", "msg", args) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn("asynq", "msg", args) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error("asynq", "msg", args) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error("asynq", "msg", args)
	os.Exit(1)
}
