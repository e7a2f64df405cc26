package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/graphdoc/internal/config"
	"github.com/totegamma/graphdoc/internal/infra/cache"
	"github.com/totegamma/graphdoc/internal/infra/database"
	"github.com/totegamma/graphdoc/internal/infra/repository"
	"github.com/totegamma/graphdoc/internal/infra/tracing"
	"github.com/totegamma/graphdoc/internal/present/rest"
	"github.com/totegamma/graphdoc/internal/service"
	"github.com/totegamma/graphdoc/internal/usecase"
	"github.com/totegamma/graphdoc/pagination"
	"github.com/totegamma/graphdoc/schemas"
	"github.com/totegamma/graphdoc/serializer"
)

func main() {
	configPath := flag.String("config", "/etc/graphdoc/config.yaml", "path to the config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()), slog.String("module", "main"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := tracing.Setup(ctx, "graphdoc", conf.Server.TraceEndpoint)
		if err != nil {
			panic(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	schema, err := schemas.Load(conf.SchemaPath)
	if err != nil {
		panic(err)
	}

	registry := serializer.NewRegistry(serializer.WithDescriptorCache(conf.API.DescriptorCacheTTL))
	if err := schema.Register(registry, conf.API.BaseURL); err != nil {
		panic(err)
	}
	builder := serializer.NewBuilder(
		registry,
		serializer.WithBaseURL(conf.API.BaseURL),
		serializer.WithMaxDepth(conf.API.MaxDepth),
	)

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}

	err = database.MigratePostgres(db)
	if err != nil {
		panic("failed to migrate database")
	}

	rdb, err := database.NewRedis(ctx, conf.Server.RedisAddr, "", conf.Server.RedisDB)
	if err != nil {
		panic(err)
	}
	defer rdb.Close()

	signalService := service.NewSignalService(rdb)

	opts := []usecase.ResourceOption{
		usecase.WithSignal(signalService),
		usecase.WithHydrationDepth(conf.API.HydrationDepth),
		usecase.WithPageDefaults(pagination.Defaults{
			Size:    conf.API.DefaultPageSize,
			MaxSize: conf.API.MaxPageSize,
		}),
	}
	if conf.Server.MemcachedAddr != "" && conf.API.DocumentCacheTTL > 0 {
		mc := cache.NewMemcached(conf.Server.MemcachedAddr)
		opts = append(opts, usecase.WithDocumentCache(cache.NewDocumentCache(mc, conf.API.DocumentCacheTTL)))
	}

	recordRepo := repository.NewRecordRepository(db)
	resourceUsecase := usecase.NewResourceUsecase(recordRepo, schema, builder, opts...)
	handler := rest.NewHandler(conf.API.BaseURL, schema, resourceUsecase, signalService)

	e := echo.New()
	e.HideBanner = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("graphdoc"))
	}
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler.RegisterRoutes(e)

	for _, endpoint := range schema.Endpoints() {
		slog.Info("serving collection",
			slog.String("tag", endpoint.Tag),
			slog.String("type", endpoint.Type),
			slog.String("endpoint", endpoint.Endpoint),
			slog.String("module", "main"),
		)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.Shutdown(shutdownCtx)
	}()

	if err := e.Start(conf.Server.Listen); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}
