package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"ResaleScanner/internal/config"
	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/infrastructure/lambda"
	"ResaleScanner/internal/infrastructure/storage"
	"ResaleScanner/internal/logging"
	"ResaleScanner/internal/metrics"
	"ResaleScanner/internal/ports"
	"ResaleScanner/internal/remote"
	"ResaleScanner/internal/shutdown"
	"ResaleScanner/internal/throttle"
	"ResaleScanner/internal/usecase"
)

// Deps overrides adapters normally built from config. Zero values are built.
type Deps struct {
	Transport ports.FunctionTransport
	Store     ports.RecordStore
	Shutdown  *shutdown.Coordinator
	Clock     throttle.Clock
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	shutdown   *shutdown.Coordinator
	lock       *flock.Flock
	closers    []func() error
	controller *usecase.SearchCycleController
}

// New validates cfg and builds the scanner.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, deps Deps) (_ *Application, err error) {
	if baseLogger == nil {
		baseLogger = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		registry: prometheus.NewRegistry(),
		shutdown: deps.Shutdown,
	}
	if a.shutdown == nil {
		a.shutdown = shutdown.New(ctx, baseLogger.With("component", "shutdown"))
		a.closers = append(a.closers, func() error { a.shutdown.Close(); return nil })
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	if cfg.Lock.Path != "" {
		a.lock = flock.New(cfg.Lock.Path)
	}

	m := metrics.New(a.registry)

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
		return loaded, nil
	}

	transport := deps.Transport
	if transport == nil {
		loaded, err := loadAWS()
		if err != nil {
			return nil, err
		}
		transport = lambda.NewFromConfig(loaded, cfg.AWS.Endpoint)
	}

	store := deps.Store
	if store == nil {
		opened, closeStore, err := openStore(ctx, cfg, loadAWS)
		if err != nil {
			return nil, err
		}
		store = opened
		if closeStore != nil {
			a.closers = append(a.closers, closeStore)
		}
	}

	clock := deps.Clock
	if clock == nil {
		clock = throttle.SystemClock{}
	}

	limiter := throttle.NewLimiter(cfg.Throttle.SourceSpacing, cfg.Throttle.SourceJitter, cfg.Throttle.PublishSpacing,
		throttle.WithClock(clock),
		throttle.WithLogger(baseLogger.With("component", "throttle")),
		throttle.WithObserver(m),
	)

	client := remote.NewClient(transport, baseLogger.With("component", "remote"), m)
	service := remote.NewService(client, RemoteFunctions(cfg.Functions))

	keys := domain.Keyspace{
		Namespace:    cfg.Keyspace.Namespace,
		Operator:     cfg.Keyspace.Operator,
		OriginPrefix: cfg.Keyspace.OriginPrefix,
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Functions: service,
		Store:     store,
		Limiter:   limiter,
		Keys:      keys,
		Listing:   listingSettings(cfg),
		Clock:     clock,
		Cooldown:  cfg.Scanner.Cooldown,
		Logger:    baseLogger.With("component", "pipeline"),
		Metrics:   m,
	})

	a.controller = usecase.NewCycleController(usecase.CycleDeps{
		Functions: service,
		Pipeline:  pipeline,
		Dedup:     usecase.NewDedupFilter(store, keys),
		Limiter:   limiter,
		Stopper:   a.shutdown,
		Clock:     clock,
		Cooldown:  cfg.Scanner.Cooldown,
		ItemType:  cfg.Scanner.ItemType,
		MinAge:    cfg.Scanner.MinAge,
		MaxListed: cfg.Scanner.MaxListed,
		Logger:    baseLogger.With("component", "cycle"),
		Metrics:   m,
	})

	return a, nil
}

// Run holds the instance lock and loops until shutdown or a fatal error.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if a.lock != nil {
		ok, err := a.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another scanner holds %s", a.cfg.Lock.Path)
		}
		defer func() {
			if err := a.lock.Unlock(); err != nil {
				a.logger.Warn("failed to release lock", "error", err)
			}
		}()
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(serveCtx, a.cfg.Metrics.Addr, a.registry, a.logger.With("component", "metrics")); err != nil {
				a.logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	a.logger.Info("scanner started",
		"deploy_env", a.cfg.DeployEnv,
		"store", a.cfg.Store.Driver,
		"max_listed", a.cfg.Scanner.MaxListed)

	if err := a.controller.Run(a.shutdown.WorkContext()); err != nil {
		a.logger.Error("Container accidentally ended.", "error", err)
		return err
	}
	a.logger.Info("Container ended.")
	return nil
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg config.Config, loadAWS func() (aws.Config, error)) (ports.RecordStore, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverDynamo:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, nil, err
		}
		return storage.NewDynamoStoreFromConfig(awsCfg, cfg.AWS.Endpoint, cfg.Store.Table), nil, nil
	case config.DriverPostgres, config.DriverSQLite:
		store, err := storage.OpenSQLStore(storage.Dialect(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, errors.Join(err, store.Close())
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// RemoteFunctions maps configured references to their pipeline roles.
func RemoteFunctions(f config.FunctionsConfig) remote.Functions {
	return remote.Functions{
		Planner:         remote.Function{Role: remote.RolePlanner, Ref: f.Planner},
		Search:          remote.Function{Role: remote.RoleSearch, Ref: f.Search},
		Detail:          remote.Function{Role: remote.RoleDetail, Ref: f.Detail},
		Eligibility:     remote.Function{Role: remote.RoleEligibility, Ref: f.Eligibility},
		Images:          remote.Function{Role: remote.RoleImages, Ref: f.Images},
		Moderation:      remote.Function{Role: remote.RoleModeration, Ref: f.ModerationRef()},
		Content:         remote.Function{Role: remote.RoleContent, Ref: f.Content},
		ContentFallback: remote.Function{Role: remote.RoleContentFallback, Ref: f.ContentFallback},
		ShortenTitle:    remote.Function{Role: remote.RoleShortenTitle, Ref: f.ShortenTitle},
		ChooseStore:     remote.Function{Role: remote.RoleChooseStore, Ref: f.ChooseStore},
		Offer:           remote.Function{Role: remote.RoleOffer, Ref: f.Offer},
		Publish:         remote.Function{Role: remote.RolePublish, Ref: f.Publish},
	}
}

func listingSettings(cfg config.Config) usecase.ListingSettings {
	return usecase.ListingSettings{
		Platform:         cfg.Listing.Platform,
		OriginURLPrefix:  cfg.Listing.OriginURLPrefix,
		Category:         cfg.Listing.Category,
		StoreCategory:    cfg.Listing.StoreCategory,
		Condition:        cfg.Listing.Condition,
		MarketplaceID:    cfg.Listing.MarketplaceID,
		Format:           cfg.Listing.Format,
		MerchantLocation: cfg.Listing.MerchantLocation,
		DeployEnv:        cfg.DeployEnv,
		Location:         cfg.Scanner.Location(),
	}
}
