package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CCNLMonitor/internal/domain"
)

// Monitor is the orchestrator surface exposed over HTTP.
type Monitor interface {
	HealthCheck(ctx context.Context) domain.HealthReport
	Statistics() domain.Statistics
	RunMonitoringCycle(ctx context.Context) domain.CycleResult
}

// VersionReader serves agreement version history.
type VersionReader interface {
	GetVersionHistory(ctx context.Context, agreementID string) ([]domain.AgreementVersion, error)
}

type versionView struct {
	ID                string         `json:"id"`
	AgreementID       string         `json:"agreement_id"`
	VersionNumber     int            `json:"version_number"`
	EffectiveDate     time.Time      `json:"effective_date"`
	ExpiryDate        *time.Time     `json:"expiry_date,omitempty"`
	DocumentURL       string         `json:"document_url,omitempty"`
	SalaryData        domain.Section `json:"salary_data"`
	WorkingConditions domain.Section `json:"working_conditions"`
	IsCurrent         bool           `json:"is_current"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Server exposes health, statistics and version history for dashboards.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter constructs a Gin engine with registered routes. versions may be nil.
func NewRouter(monitor Monitor, versions VersionReader) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		report := monitor.HealthCheck(c.Request.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Statistics())
	})

	r.POST("/cycles", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.RunMonitoringCycle(c.Request.Context()))
	})

	if versions != nil {
		r.GET("/agreements/:id/versions", func(c *gin.Context) {
			history, err := versions.GetVersionHistory(c.Request.Context(), c.Param("id"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if len(history) == 0 {
				c.JSON(http.StatusNotFound, gin.H{"error": "agreement has no versions"})
				return
			}
			out := make([]versionView, 0, len(history))
			for _, v := range history {
				out = append(out, versionView{
					ID:                v.ID,
					AgreementID:       v.AgreementID,
					VersionNumber:     v.VersionNumber,
					EffectiveDate:     v.EffectiveDate,
					ExpiryDate:        v.ExpiryDate,
					DocumentURL:       v.DocumentURL,
					SalaryData:        v.SalaryData,
					WorkingConditions: v.WorkingConditions,
					IsCurrent:         v.IsCurrent,
					CreatedAt:         v.CreatedAt,
				})
			}
			c.JSON(http.StatusOK, out)
		})
	}

	return r
}

// NewServer binds the router to addr.
func NewServer(addr string, monitor Monitor, versions VersionReader, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(monitor, versions),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("status server listening", "addr", s.http.Addr)
		}
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
