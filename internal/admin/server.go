// Package admin exposes a session controller over a small HTTP API.
package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/scenebridge/internal/bridge"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/observability"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type Server struct {
	Name    string
	Started time.Time

	ctrl   *bridge.Controller
	router *gin.Engine
}

type startRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func New(name string, ctrl *bridge.Controller, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logging.Component("admin"), "/health", "/ready", "/metrics"))
	r.Use(observability.RequestMetrics(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:    name,
		Started: time.Now(),
		ctrl:    ctrl,
		router:  r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"bridge":  s.Name,
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := s.ctrl.IsSessionActive()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "bridge": s.Name})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctrl.Status())
	})

	r.GET("/registry/:namespace", func(c *gin.Context) {
		var ns registry.Namespace
		switch c.Param("namespace") {
		case "items":
			ns = registry.Items
		case "assets":
			ns = registry.Assets
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown namespace"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pairs": s.ctrl.Registry().Snapshot(ns)})
	})

	r.GET("/scene", func(c *gin.Context) {
		c.JSON(http.StatusOK, sceneSummary(s.ctrl.Store().Snapshot()))
	})

	r.POST("/session/start", func(c *gin.Context) {
		req := startRequest{
			Address: s.ctrl.Config().Address,
			Port:    s.ctrl.Config().Port,
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if err := s.ctrl.StartSession(req.Address, req.Port); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.ctrl.Status())
	})

	r.POST("/session/stop", func(c *gin.Context) {
		s.ctrl.StopSession()
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	})

	r.POST("/push", func(c *gin.Context) {
		s.push(c, false)
	})

	r.POST("/push/selected", func(c *gin.Context) {
		s.push(c, true)
	})
}

func (s *Server) push(c *gin.Context, selected bool) {
	var (
		err error
		sum any
	)
	if selected {
		sum, err = s.ctrl.PushSelected()
	} else {
		sum, err = s.ctrl.PushAll()
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "summary": sum})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrSessionInactive), errors.Is(err, bridge.ErrPushInProgress):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrAddressRequired), errors.Is(err, bridge.ErrInvalidPort):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type nodeSummary struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Children []nodeSummary `json:"children,omitempty"`
}

func sceneSummary(snap scene.Snapshot) gin.H {
	roots := make([]nodeSummary, 0, len(snap.Forest))
	for _, t := range snap.Forest {
		roots = append(roots, summarize(t))
	}
	return gin.H{
		"generation": snap.Generation,
		"roots":      roots,
		"nodes":      scene.CountNodes(snap.Forest),
		"meshes":     len(snap.Meshes),
		"cameras":    len(snap.Cameras),
		"lights":     len(snap.Lights),
		"textures":   len(snap.Textures),
		"materials":  len(snap.Materials),
	}
}

func summarize(t *scene.TreeNode) nodeSummary {
	out := nodeSummary{Name: t.Name, Kind: t.Kind.String()}
	for _, c := range t.Children {
		out.Children = append(out.Children, summarize(c))
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
