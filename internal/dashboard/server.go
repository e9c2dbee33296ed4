package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bookflow/config"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Server hosts the monitoring dashboard: recent metric events and logs, host
// resources, output buffer occupancy and the live reconstructed books.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	books             BookSource
	buffers           metrics.BufferSource
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer returns nil when the dashboard is disabled. books and buffers
// may be nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, books BookSource, buffers metrics.BufferSource) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:               cfg,
		log:               log,
		books:             books,
		buffers:           buffers,
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     metrics.RegisterMetricHandler(metricStore.handle),
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, "/", log),
	}, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.resourceSampler.stop()
}

// Address reports the network address the dashboard listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fs.Sub(embeddedFS, "assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	api := router.Group("/api")
	api.GET("/metrics", s.handleMetrics)
	api.GET("/logs", s.handleLogs)
	api.GET("/resources", s.handleResources)
	api.GET("/channels", s.handleChannels)
	api.GET("/books", s.handleBooks)
	api.GET("/books/:instrument", s.handleBook)

	return router, nil
}

func (s *Server) handleMetrics(c *gin.Context) {
	f := metrics.MetricFilter{Vendor: c.Query("vendor"), Instrument: c.Query("instrument")}
	if component := c.Query("component"); component != "" {
		f.Components = []string{component}
	}
	snapshot := s.metricStore.snapshot(f)
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component":  m.Component,
			"name":       m.Name,
			"value":      m.Value,
			"type":       m.Type,
			"vendor":     m.Vendor,
			"instrument": m.Instrument,
			"stream":     m.Stream,
			"fields":     m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleLogs(c *gin.Context) {
	threshold := logrus.TraceLevel
	if q := c.Query("level"); q != "" {
		lvl, err := logrus.ParseLevel(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		threshold = lvl
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot(threshold)})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}

func (s *Server) handleChannels(c *gin.Context) {
	payload := []gin.H{}
	if s.buffers != nil {
		for _, b := range s.buffers.Buffers() {
			payload = append(payload, gin.H{"name": b.Name, "length": b.Len, "capacity": b.Cap})
		}
	}
	c.JSON(http.StatusOK, gin.H{"channels": payload})
}

func (s *Server) handleBooks(c *gin.Context) {
	payload := []gin.H{}
	if s.books != nil {
		for _, st := range s.books.Books() {
			payload = append(payload, bookSummary(st))
		}
	}
	c.JSON(http.StatusOK, gin.H{"books": payload})
}

// handleBook accepts BTC-USD or BTC_USD in the path.
func (s *Server) handleBook(c *gin.Context) {
	inst, err := models.ParseInstrument(c.Param("instrument"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.books != nil {
		for _, st := range s.books.Books() {
			if st.Instrument == inst {
				c.JSON(http.StatusOK, bookDetail(st))
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no book for " + inst.String()})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
