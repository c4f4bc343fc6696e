package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-terminal/src/config"
	"market-terminal/src/downloader"
	"market-terminal/src/gateway"
	"market-terminal/src/helpers"
	"market-terminal/src/logger"
	"market-terminal/src/models"
	"market-terminal/src/news"
	"market-terminal/src/streaming"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config *config.Config
	Logger *logger.Logger
	engine *gin.Engine

	supervisor *gateway.ConnectionSupervisor
	downloader *downloader.BatchOrchestrator
	streams    *streaming.StreamRegistry
	dashboard  *streaming.DashboardAggregator
	news       *news.NewsManager

	// Optional probe into the gRPC control plane, surfaced on /api/health.
	controlProbe func() bool

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MDashboardSummary
	register   chan *Client
	unregister chan *Client
	hubMutex   sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(
	cfg *config.Config,
	log *logger.Logger,
	supervisor *gateway.ConnectionSupervisor,
	dl *downloader.BatchOrchestrator,
	streams *streaming.StreamRegistry,
	dashboard *streaming.DashboardAggregator,
	nm *news.NewsManager,
) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.Default(),
		supervisor: supervisor,
		downloader: dl,
		streams:    streams,
		dashboard:  dashboard,
		news:       nm,
		clients:    make(map[*Client]struct{}),
		// Buffered channel to prevent lock/blocking
		broadcast:  make(chan *models.MDashboardSummary, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// Connection lifecycle
	s.engine.POST("/api/connection/connect", s.postConnect)
	s.engine.POST("/api/connection/disconnect", s.postDisconnect)
	s.engine.GET("/api/connection/status", s.getConnectionStatus)
	s.engine.GET("/api/connection/requests", s.getPendingRequests)

	// Historical downloads
	s.engine.POST("/api/download/multiple", s.postDownloadMultiple)
	s.engine.GET("/api/download/status/:job", s.getDownloadStatus)
	s.engine.GET("/api/download/jobs", s.getDownloadJobs)

	// Live streaming
	s.engine.POST("/api/streaming/start", s.postStreamStart)
	s.engine.POST("/api/streaming/stop", s.postStreamStop)
	s.engine.GET("/api/streaming/list", s.getStreamList)
	s.engine.GET("/api/streaming/data/:id", s.getStreamData)
	s.engine.GET("/api/streaming/dashboard", s.getDashboard)
	s.engine.DELETE("/api/streaming/:id", s.deleteStream)

	// News
	s.engine.POST("/api/news/request", s.postNewsRequest)
	s.engine.GET("/api/news/:req_id", s.getNews)
	s.engine.GET("/api/news/:req_id/search", s.getNewsSearch)

	// Operational endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.runHub()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Connection handlers
// -----------------------------------------------------------------------------

type connectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"client_id"`
}

func (s *APIServer) postConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Host == "" {
		req.Host = s.Config.Gateway.Host
	}
	if req.Port == 0 {
		req.Port = s.Config.Gateway.Port
	}
	if req.ClientID == 0 {
		req.ClientID = s.Config.Gateway.ClientID
	}

	identity := models.MIdentity{Host: req.Host, Port: req.Port, ClientID: req.ClientID}
	if err := s.supervisor.Connect(c.Request.Context(), identity, s.Config.ConnectionTimeout()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.supervisor.Status())
}

// -----------------------------------------------------------------------------

func (s *APIServer) postDisconnect(c *gin.Context) {
	s.supervisor.Disconnect()
	c.JSON(http.StatusOK, s.supervisor.Status())
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConnectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.supervisor.Status())
}

// -----------------------------------------------------------------------------

func (s *APIServer) getPendingRequests(c *gin.Context) {
	pending := s.supervisor.PendingRequests()
	c.JSON(http.StatusOK, gin.H{"count": len(pending), "requests": pending})
}

// -----------------------------------------------------------------------------
// Download handlers
// -----------------------------------------------------------------------------

type downloadRequest struct {
	Symbols  []string `json:"symbols"`
	SecType  string   `json:"sec_type"`
	Exchange string   `json:"exchange"`
	Currency string   `json:"currency"`
	Duration string   `json:"duration"`
	BarSize  string   `json:"bar_size"`
	What     string   `json:"what_to_show"`
	UseRTH   bool     `json:"use_rth"`
	EndDate  string   `json:"end_date"`
}

func (s *APIServer) postDownloadMultiple(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols list cannot be empty"})
		return
	}

	params := models.MBatchParams{
		SecType:    req.SecType,
		Exchange:   req.Exchange,
		Currency:   req.Currency,
		Duration:   req.Duration,
		BarSize:    req.BarSize,
		WhatToShow: req.What,
		UseRTH:     req.UseRTH,
		EndDate:    req.EndDate,
	}

	jobID, err := s.downloader.Submit(c.Request.Context(), req.Symbols, params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "symbols": len(req.Symbols)})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getDownloadStatus(c *gin.Context) {
	status, ok := s.downloader.Status(c.Param("job"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getDownloadJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.downloader.List()})
}

// -----------------------------------------------------------------------------
// Streaming handlers
// -----------------------------------------------------------------------------

type streamStartRequest struct {
	Symbol  string `json:"symbol"`
	SecType string `json:"sec_type"`
}

func (s *APIServer) postStreamStart(c *gin.Context) {
	var req streamStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	id, err := s.streams.Start(c.Request.Context(), req.Symbol, req.SecType)
	if err != nil {
		s.respondError(c, err)
		return
	}

	info, _ := s.streams.Info(id)
	// Push the membership change to websocket clients ahead of the next tick.
	s.Broadcast(s.dashboard.Snapshot())
	c.JSON(http.StatusOK, info)
}

// -----------------------------------------------------------------------------

type streamStopRequest struct {
	StreamID int64 `json:"stream_id"`
}

func (s *APIServer) postStreamStop(c *gin.Context) {
	var req streamStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.streams.Stop(c.Request.Context(), req.StreamID); err != nil {
		s.respondError(c, err)
		return
	}
	s.Broadcast(s.dashboard.Snapshot())
	c.JSON(http.StatusOK, gin.H{"stream_id": req.StreamID, "state": models.StreamStopped})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getStreamList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": s.streams.List()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getStreamData(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}

	summary, ok := s.dashboard.StreamSummary(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown stream id"})
		return
	}
	ticks, _ := s.streams.Series(id)

	c.JSON(http.StatusOK, gin.H{
		"stream":    summary.MStreamInfo,
		"analytics": summary.Analytics,
		"ticks":     ticks,
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.dashboard.Snapshot())
}

// -----------------------------------------------------------------------------

func (s *APIServer) deleteStream(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}

	if !s.streams.Purge(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "stream is unknown or still active"})
		return
	}
	s.Broadcast(s.dashboard.Snapshot())
	c.JSON(http.StatusOK, gin.H{"purged": id})
}

// -----------------------------------------------------------------------------
// News handlers
// -----------------------------------------------------------------------------

func (s *APIServer) postNewsRequest(c *gin.Context) {
	var query models.MNewsQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	summary, err := s.news.Fetch(c.Request.Context(), query)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getNews(c *gin.Context) {
	reqID, err := strconv.ParseInt(c.Param("req_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	summary, ok := s.news.Get(reqID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown news request id"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getNewsSearch(c *gin.Context) {
	reqID, err := strconv.ParseInt(c.Param("req_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	keyword := c.Query("q")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	matches, ok := s.news.Search(reqID, keyword)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown news request id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keyword": keyword, "count": len(matches), "items": matches})
}

// -----------------------------------------------------------------------------
// Operational handlers
// -----------------------------------------------------------------------------

// SetControlProbe wires the gRPC control plane's running check into the
// health surface.
func (s *APIServer) SetControlProbe(probe func() bool) {
	s.controlProbe = probe
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.hubMutex.RLock()
	connections := len(s.clients)
	s.hubMutex.RUnlock()

	body := gin.H{
		"status":      "ok",
		"connection":  s.supervisor.State(),
		"connections": connections,
		"streams":     s.streams.ActiveCount(),
	}
	if s.controlProbe != nil {
		body["control_plane"] = s.controlProbe()
	}
	c.JSON(http.StatusOK, body)
}

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

// respondError translates the error taxonomy into HTTP status codes.
func (s *APIServer) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var gwErr *helpers.GatewayError
	switch {
	case helpers.IsCapacity(err):
		status = http.StatusTooManyRequests
	case helpers.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case helpers.IsConnectionLost(err):
		status = http.StatusServiceUnavailable
	case errors.As(err, &gwErr):
		status = http.StatusBadGateway
	default:
		var connErr *helpers.ConnectionError
		if errors.As(err, &connErr) {
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
