package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/logging"
	"github.com/iwvelando/portfolio-evaluator/internal/rpc"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/server"
	"github.com/iwvelando/portfolio-evaluator/internal/workers"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	configLocation := flag.String("config", constants.DefaultServerConfigFile, "path to server configuration file")
	addressFlag := flag.String("address", "", "HTTP listen address override")
	rpcAddressFlag := flag.String("rpc-address", "", "RPC listen address override")
	maxRequestFlag := flag.String("max-request-size", "", "maximum request body size override (e.g. 8M)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}
	if *addressFlag != "" {
		cfg.Address = *addressFlag
	}
	if *rpcAddressFlag != "" {
		cfg.RPCAddress = *rpcAddressFlag
	}
	if *maxRequestFlag != "" {
		size, err := server.ParseSize(*maxRequestFlag)
		if err != nil {
			fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"invalid max request size\", \"error\": \"%v\"}\n", err)
			os.Exit(1)
		}
		cfg.SetRequestSizeBytes(size)
	}

	logger, err := logging.New(cfg.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg); err != nil {
		logger.Fatal("server stopped with error",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}

func run(logger *zap.Logger, cfg *server.Config) error {
	s, err := sampler.New(cfg.Sampler, cfg.HorizonInDays)
	if err != nil {
		return fmt.Errorf("failed to build sampler: %w", err)
	}

	pool := workers.NewPool(cfg.Workers)
	defer pool.Close()

	service := batch.NewService(logger, s, pool, cfg.Parallelism)

	rpcServer, err := rpc.NewServer(logger, service)
	if err != nil {
		return err
	}
	rpcListener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.RPCAddress, err)
	}

	httpServer := &http.Server{
		Addr: cfg.Address,
		Handler: server.NewHandler(logger, service, server.Options{
			MaxRequestSize: cfg.RequestSizeBytes(),
			Version:        version,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpcServer.Serve(gctx, rpcListener)
	})
	g.Go(func() error {
		logger.Info("http server listening",
			zap.String("op", "main.run"),
			zap.String("address", cfg.Address),
			zap.Int("workers", pool.Size()),
			zap.String("version", version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down",
			zap.String("op", "main.run"),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
