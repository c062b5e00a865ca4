package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/admin"
	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/auth"
	"github.com/jsyadav90/abcd-backend2/internal/branchassign"
	"github.com/jsyadav90/abcd-backend2/internal/config"
	"github.com/jsyadav90/abcd-backend2/internal/database"
	"github.com/jsyadav90/abcd-backend2/internal/directory"
	"github.com/jsyadav90/abcd-backend2/internal/hierarchy"
	"github.com/jsyadav90/abcd-backend2/internal/logger"
	"github.com/jsyadav90/abcd-backend2/internal/session"
	"github.com/jsyadav90/abcd-backend2/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}

	dbSink := audit.NewDBSink(db)
	var sinks []audit.Sink
	if cfg.RabbitMQURL != "" {
		ch, closeAMQP, err := audit.DialAMQP(cfg.RabbitMQURL, cfg.ActivityExchange)
		if err != nil {
			log.Fatal("rabbitmq", zap.Error(err))
		}
		defer func() { _ = closeAMQP() }()
		sinks = append(sinks, audit.NewAMQPSink(ch, cfg.ActivityExchange, cfg.ActivityRoutingKey))
		log.Info("activity publisher enabled", zap.String("exchange", cfg.ActivityExchange))
	}
	rec := audit.NewRecorder(log, dbSink, sinks...)

	store := directory.NewStore(db)
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := session.NewService(store, issuer, rec, log.Named("session"), session.Options{
		MaxDevices: cfg.MaxAllowedDevices,
	})
	engine := hierarchy.NewEngine(store, rec, log.Named("hierarchy"), hierarchy.Options{
		BranchScopeExemptRank: cfg.BranchScopeExemptRank,
		RemoveMaxRank:         cfg.ReportingRemoveMaxRank,
		ClosureQuery:          cfg.HierarchyClosureQuery,
	})
	branches := branchassign.NewService(store, rec, log.Named("branchassign"))
	users := &admin.UserAdmin{
		Store:                 store,
		Sessions:              sessions,
		Audit:                 rec,
		BranchScopeExemptRank: cfg.BranchScopeExemptRank,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apperror.FiberErrorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/login", limiter.New(limiter.Config{
		Max:        cfg.LoginRateLimit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many login attempts, slow down")
		},
	}), auth.LoginHandler(sessions))
	api.Post("/auth/refresh", auth.RefreshHandler(sessions))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(issuer))

	protected.Get("/auth/me", auth.MeHandler(store))
	protected.Post("/auth/logout", auth.LogoutHandler(sessions))
	protected.Post("/auth/logout-all", auth.LogoutAllHandler(sessions))
	protected.Post("/auth/logout-users", auth.RequirePermission(store, config.PermSessionsTerminate), auth.LogoutUsersHandler(sessions))
	protected.Post("/auth/logout-subordinates", auth.RequirePermission(store, config.PermSessionsTerminate), auth.LogoutSubordinatesHandler(sessions))

	// Reporting hierarchy
	protected.Put("/users/:id/reporting", auth.RequirePermission(store, config.PermHierarchyManage), hierarchy.AssignReportingHandler(engine))
	protected.Delete("/users/:id/reporting", hierarchy.RemoveReportingHandler(engine))
	protected.Get("/users/:id/ancestors", auth.RequirePermission(store, config.PermHierarchyView), hierarchy.AncestorsHandler(engine))
	protected.Get("/users/:id/subordinates", auth.RequirePermission(store, config.PermHierarchyView), hierarchy.SubordinatesHandler(engine))

	// Branch assignment
	protected.Post("/users/:id/branches", auth.RequirePermission(store, config.PermBranchAssign), branchassign.BranchesHandler(branches))

	// Admin directory
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequirePermission(store, config.PermDirectoryManage))

	adminRoutes.Post("/branches", admin.CreateBranchHandler(store, rec))
	adminRoutes.Get("/branches", admin.ListBranchesHandler(store))
	adminRoutes.Get("/branches/:id", admin.GetBranchHandler(store))
	adminRoutes.Put("/branches/:id", admin.UpdateBranchHandler(store, rec))
	adminRoutes.Delete("/branches/:id", admin.DeleteBranchHandler(store, rec))

	adminRoutes.Post("/roles", admin.CreateRoleHandler(store, rec, cfg.Permissions))
	adminRoutes.Get("/roles", admin.ListRolesHandler(store))
	adminRoutes.Get("/permissions", admin.ListPermissionsHandler(cfg.Permissions))

	adminRoutes.Post("/users", users.RegisterHandler())
	adminRoutes.Get("/users", users.ListHandler())
	adminRoutes.Get("/users/:id", users.GetHandler())
	adminRoutes.Put("/users/:id", users.UpdateHandler())
	adminRoutes.Delete("/users/:id", users.DeleteHandler())
	adminRoutes.Post("/users/:id/restore", users.RestoreHandler())

	// Audit logs
	protected.Get("/audit-logs", auth.RequirePermission(store, config.PermAuditView), audit.ListAuditLogsHandler(dbSink))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info("server listening", zap.String("port", cfg.HTTPPort))
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal("listen", zap.Error(err))
	}
}
