package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Chengenchong/PayLentine-Backend/internal/approval"
	"github.com/Chengenchong/PayLentine-Backend/internal/auth"
	"github.com/Chengenchong/PayLentine-Backend/internal/config"
	"github.com/Chengenchong/PayLentine-Backend/internal/funding"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
	"github.com/Chengenchong/PayLentine-Backend/internal/limits"
	"github.com/Chengenchong/PayLentine-Backend/internal/middleware"
	"github.com/Chengenchong/PayLentine-Backend/internal/notification"
	"github.com/Chengenchong/PayLentine-Backend/internal/payments"
	"github.com/Chengenchong/PayLentine-Backend/internal/policy"
	"github.com/Chengenchong/PayLentine-Backend/internal/reverify"
	"github.com/Chengenchong/PayLentine-Backend/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Container holds the application services. Every store is backed by
// Postgres when Deps.DB is set and kept in memory otherwise.
type Container struct {
	IdentityRepo identity.Repository
	Identity     *identity.Service
	Auth         *auth.Service
	Ledger       ledger.Ledger
	Wallets      *wallet.Service
	Limits       limits.Evaluator
	Policy       *policy.Service
	Approvals    *approval.Service
	Payments     *payments.Service
	Funding      *funding.Service
	Sweeper      *approval.Sweeper
}

// NewContainer builds the services for d.
func NewContainer(d Deps) (*Container, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var (
		identityRepo identity.Repository
		policyRepo   policy.Repository
		approvalRepo approval.Repository
		led          ledger.Ledger
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		policyRepo = policy.NewPostgresRepository(d.DB)
		approvalRepo = approval.NewPostgresRepository(d.DB)
		led = ledger.NewPostgresLedger(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		policyRepo = policy.NewMemoryRepository()
		approvalRepo = approval.NewMemoryRepository()
		led = ledger.NewInMemory()
	}

	var (
		usedProofs reverify.UsedStore
		locks      *redsync.Redsync
	)
	if d.Cache != nil {
		usedProofs = reverify.NewRedisUsedStore(d.Cache)
		locks = redsync.New(goredis.NewPool(d.Cache))
	} else {
		usedProofs = reverify.NewMemoryUsedStore()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo)
	proofs := reverify.NewService(d.Cfg.ReverifySecret, d.Cfg.ReverifyTTL, usedProofs)
	limitsSvc := limits.NewTierEvaluator(identitySvc, led)
	policySvc := policy.NewService(policyRepo, identitySvc, proofs, d.Logger)
	approvalSvc := approval.NewService(approvalRepo, d.Cfg.PendingTTL, d.Logger)

	fundingSvc, err := funding.NewService(led, limitsSvc, funding.StaticAcquirer{}, notifier, d.Cfg.DefaultCurrency, d.Logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		IdentityRepo: identityRepo,
		Identity:     identitySvc,
		Auth:         auth.NewService(d.Cfg, identitySvc, identityRepo, proofs),
		Ledger:       led,
		Wallets:      wallet.NewService(led, d.Cfg.DefaultCurrency),
		Limits:       limitsSvc,
		Policy:       policySvc,
		Approvals:    approvalSvc,
		Payments:     payments.NewService(led, identitySvc, limitsSvc, policySvc, approvalSvc, notifier, d.Logger),
		Funding:      fundingSvc,
		Sweeper:      approval.NewSweeper(approvalSvc, d.Cfg.SweepInterval, locks, notifier, d.Logger),
	}, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, c *Container) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	authHandler := auth.NewHandler(c.Identity, c.Auth)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger))

	protected := api.Group("", middleware.JWTAuth(c.Auth), middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	paymentHandler := payments.NewHandler(c.Payments)

	RegisterSessionRoutes(protected, authHandler)
	RegisterProfileRoute(protected, c.Identity)
	RegisterWalletRoutes(protected, wallet.NewHandler(c.Wallets))
	RegisterFundingRoutes(protected, funding.NewHandler(c.Funding))
	RegisterPaymentRoutes(protected, paymentHandler)
	RegisterApprovalRoutes(protected, approval.NewHandler(c.Approvals), paymentHandler)
	RegisterPolicyRoutes(protected, policy.NewHandler(c.Policy), limits.NewHandler(c.Limits, d.Cfg.DefaultCurrency))
}
