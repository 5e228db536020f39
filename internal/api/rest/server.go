// Package rest exposes the Instance Loop's inbound message set as an
// HTTP + WebSocket API, built on gin instead of bare net/http so
// route-level JSON binding and validation come for free.
package rest

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lucid-cells/cellrun/internal/compiler"
	"github.com/lucid-cells/cellrun/internal/config"
	"github.com/lucid-cells/cellrun/internal/instance"
	"github.com/lucid-cells/cellrun/internal/mdloader"
	"github.com/lucid-cells/cellrun/internal/observer"
	"github.com/lucid-cells/cellrun/internal/storage"
)

// Server owns every running instance and the gin engine serving them.
type Server struct {
	cfg   *config.Config
	store storage.Store
	log   zerolog.Logger
	hub   *observer.Hub

	mu        sync.RWMutex
	instances map[string]*instance.Instance

	Router *gin.Engine
}

func New(cfg *config.Config, store storage.Store, log zerolog.Logger) *Server {
	hub := observer.NewHub(log)
	go hub.Run()

	s := &Server{
		cfg:       cfg,
		store:     store,
		log:       log,
		hub:       hub,
		instances: make(map[string]*instance.Instance),
	}

	r := gin.New()
	r.Use(gin.Recovery(), loggingMiddleware(log), gzip.Gzip(gzip.DefaultCompression))
	s.Router = r
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.Router
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	instances := r.Group("/instances")
	{
		instances.POST("", s.createInstance)
		instances.GET("/:id/cells", s.getCells)
		instances.GET("/:id/state/:branch/:counter", s.getState)
		instances.GET("/:id/events", s.streamEvents)
	}

	mutating := r.Group("/instances")
	mutating.Use(bearerAuth(s.cfg.JWTSecret))
	{
		mutating.POST("/:id/play", s.play)
		mutating.POST("/:id/pause", s.pause)
		mutating.POST("/:id/step", s.step)
		mutating.POST("/:id/revert", s.revert)
		mutating.POST("/:id/cells", s.mutateCells)
	}
}

func (s *Server) instanceByID(id string) (*instance.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.instances[id]
	return ins, ok
}

type createInstanceRequest struct {
	Markdown string `json:"markdown" binding:"required"`
}

func (s *Server) createInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.New()
	comp := compiler.New(s.cfg.OpenAIKey)
	comp.Router = s.Router
	mgr := observer.NewManager()
	mgr.Add(observer.NewHubObserver(s.hub, id.String()))
	ins := instance.New(id, comp, s.store, mgr, s.log)

	program, err := mdloader.Load(id.String(), req.Markdown)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ins.LoadProgram(c.Request.Context(), program); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.instances[id.String()] = ins
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"instance_id": id.String()})
}

func (s *Server) getCells(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	cells := ins.FetchCells()
	out := make([]gin.H, len(cells))
	for i, cell := range cells {
		out[i] = gin.H{"id": cell.ID, "kind": cell.Kind, "name": cell.Name, "needs_update": cell.NeedsUpdate}
	}
	c.JSON(http.StatusOK, gin.H{"cells": out})
}

func (s *Server) getState(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	var counter int64
	if _, err := fmt.Sscan(c.Param("counter"), &counter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counter"})
		return
	}
	snap, err := ins.FetchStateAt(c.Param("branch"), counter)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	fresh := snap.Fresh()
	out := make(map[int]any, len(fresh))
	for _, opID := range fresh {
		if v, ok := snap.Output(opID); ok {
			out[opID] = v.ToJSON()
		}
	}
	c.JSON(http.StatusOK, gin.H{"branch": snap.Branch, "counter": snap.Counter, "fresh": out})
}

func (s *Server) play(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	ins.Play(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"playing": true})
}

func (s *Server) pause(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	ins.Pause()
	c.JSON(http.StatusOK, gin.H{"playing": false})
}

func (s *Server) step(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	if err := ins.Step(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stepped": true})
}

type revertRequest struct {
	Branch  string `json:"branch" binding:"required"`
	Counter int64  `json:"counter"`
}

func (s *Server) revert(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newBranch, err := ins.Revert(c.Request.Context(), req.Branch, req.Counter)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"branch": newBranch})
}

type mutateCellsRequest struct {
	Markdown string `json:"markdown" binding:"required"`
}

func (s *Server) mutateCells(c *gin.Context) {
	ins, ok := s.instanceByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	var req mutateCellsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	program, err := mdloader.Load(c.Param("id"), req.Markdown)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ins.LoadProgram(c.Request.Context(), program); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades to a WebSocket and subscribes the connection to
// this instance's runtime events via the shared hub.
func (s *Server) streamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.instanceByID(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := s.hub.Register(conn, id)
	defer s.hub.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
