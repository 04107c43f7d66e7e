package http

import (
	"log/slog"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/imagestore"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Accounts handlers.AccountService
	Images   imagestore.Store
	Tokens   middlewares.TokenVerifier
	Notifier notifications.Notifier
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Check

	// ShuttingDown is optional.
	ShuttingDown func() bool
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))

	// health
	h := handlers.NewHealthHandler(log, deps.Checks)
	if deps.ShuttingDown != nil {
		h.WithDraining(deps.ShuttingDown)
	}
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPIDoc)

	// accounts
	accounts := handlers.NewAccountsHandler(deps.Accounts, log, cfg.RequestTimeout)
	authMw := middlewares.NewAuthMiddleware(deps.Tokens)

	// the limit covers the image plus the form fields around it
	bodyLimit := cfg.MaxUploadBytes + 1<<20

	api := r.Group("/api")
	api.POST("/signup", middlewares.MaxBodyBytes(bodyLimit), middlewares.RequireJSONOrMultipart(), accounts.SignUp)
	api.POST("/login", middlewares.MaxBodyBytes(1<<20), middlewares.RequireJSON(), accounts.Login)

	r.GET("/user-details", authMw.RequireAuth(), accounts.GetMe)
	r.GET("/user-details/:id", accounts.GetByID)
	r.PUT("/update-profile/:userId", middlewares.MaxBodyBytes(bodyLimit), middlewares.RequireJSONOrMultipart(), accounts.UpdateProfile)
	r.DELETE("/delete-user/:userId", accounts.DeleteUser)
	r.GET("/get-users", accounts.ListUsers)

	// images
	uploads := handlers.NewUploadsHandler(deps.Images, log)
	r.GET("/uploads/:name", uploads.Serve)

	// apk distribution
	apk := handlers.NewAPKHandler(handlers.APKConfig{
		Path:          cfg.APKPath,
		PublicBaseURL: cfg.PublicBaseURL,
		Testers:       cfg.TesterEmails,
	}, deps.Notifier, log)
	r.GET("/download-apk", apk.Download)
	r.GET("/send-apk", apk.SendAPK)

	return r
}
