package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/config"
	"github.com/krishx009/HomeoCare/internal/service"
	"github.com/krishx009/HomeoCare/pkg/auth"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

// RouterDeps wires the API. Auth may be nil when doctors are authenticated
// by an external identity provider; only Verifier is then required.
type RouterDeps struct {
	Patients      *service.PatientService
	Consultations *service.ConsultationService
	Auth          *service.AuthService
	Verifier      auth.Verifier
	Metrics       *metrics.Collector
	Log           *zap.Logger
	CORS          config.CORSConfig
	RateLimit     config.RateLimitConfig
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(),
		Recovery(d.Log),
		Tracing(),
		Metrics(d.Metrics),
		RequestLogger(d.Log),
		CORS(d.CORS),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				d.Log.Warn("readiness check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")
	api.Use(RateLimit(d.RateLimit.RequestsPerSecond, d.RateLimit.BurstSize))

	authenticated := Authenticate(d.Verifier)

	if d.Auth != nil {
		ah := NewAuthHandler(d.Auth)
		public := api.Group("/auth", AuthRateLimit(d.RateLimit.AuthRequestsPerMinute))
		{
			public.POST("/register", ah.Register)
			public.POST("/login", ah.Login)
			public.POST("/refresh", ah.Refresh)
		}
		account := api.Group("/auth", authenticated)
		{
			account.POST("/mfa/enroll", ah.EnrollMFA)
			account.POST("/mfa/verify", ah.VerifyMFA)
			account.POST("/password", ah.ChangePassword)
		}
	}

	ph := NewPatientHandler(d.Patients)
	ch := NewConsultationHandler(d.Consultations)

	patients := api.Group("/patients", authenticated)
	{
		patients.POST("", ph.Create)
		patients.GET("", ph.List)
		patients.GET("/search", ph.Search)
		patients.GET("/today", ph.Today)
		patients.GET("/followups-due", ch.FollowupsDue)
		patients.GET("/:id", ph.Get)
		patients.PUT("/:id", ph.Update)
		patients.DELETE("/:id", ph.Delete)
		patients.POST("/:id/consultations", ch.Create)
		patients.GET("/:id/consultations", ch.List)
	}

	consultations := api.Group("/consultations", authenticated)
	{
		consultations.GET("/stats", ch.Stats)
		consultations.GET("/:consultationId", ch.Get)
		consultations.PUT("/:consultationId/followup", ch.RecordFollowUp)
	}

	api.GET("/remedies", authenticated, ch.Remedies)

	return r
}
