// Package api exposes the HTTP control surface: device CRUD and commands,
// tag and event snapshots, the receive boundary for external readers, the
// database report, and the actions configuration.
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/pipeline"
	"github.com/smartx-rfid/smartx/pkg/registry"
	"github.com/smartx-rfid/smartx/pkg/sink"
	"github.com/smartx-rfid/smartx/pkg/store"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// Server wires the control surface to the registry and the pipeline, and
// owns the actions-driven parts (database engine, sink set).
type Server struct {
	dir  string
	reg  *registry.Manager
	pipe *pipeline.Pipeline

	mu      sync.Mutex
	actions *config.Actions
	db      *store.Store
}

// NewServer builds the control surface over a config directory.
func NewServer(dir string, reg *registry.Manager, pipe *pipeline.Pipeline) *Server {
	return &Server{dir: dir, reg: reg, pipe: pipe, actions: &config.Actions{StorageDays: config.DefaultStorageDays}}
}

// ApplyActions swaps in a new actions config: the database engine is
// reopened, the sink set rebuilt, and both replaced atomically. A failing
// engine disables the database sink but keeps everything else running.
func (s *Server) ApplyActions(a *config.Actions) {
	var db *store.Store
	if a.DatabaseURL != "" {
		var err error
		db, err = store.Open(a.DatabaseURL)
		if err != nil {
			util.Errorf("database disabled: %v", err)
			db = nil
		}
	}

	var rec sink.Recorder
	if db != nil {
		rec = db
	}
	s.pipe.SetSinks(sink.Build(a, rec))

	s.mu.Lock()
	old := s.db
	s.actions = a
	s.db = db
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Store returns the current database engine, nil when unconfigured.
func (s *Server) Store() *store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Actions returns the current actions config.
func (s *Server) Actions() *config.Actions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions
}

// Close releases the database engine.
func (s *Server) Close() {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db != nil {
		db.Close()
	}
}

// Router assembles the gin engine with all control routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	devices := r.Group("/api/devices")
	{
		devices.GET("/get_device_list", s.handleDeviceList)
		devices.GET("/get_device_config/:device", s.handleDeviceConfig)
		devices.GET("/get_device_types_list", s.handleDeviceTypes)
		devices.GET("/get_example_config/:device", s.handleExampleConfig)
		devices.POST("/create_device/:device", s.handleCreateDevice)
		devices.PUT("/update_device/:device", s.handleUpdateDevice)
		devices.DELETE("/delete_device/:device", s.handleDeleteDevice)
	}

	rfid := r.Group("/api/rfid")
	{
		rfid.POST("/start/:device", s.handleStart)
		rfid.POST("/stop/:device", s.handleStop)
		rfid.POST("/clear/:device", s.handleClear)
		rfid.POST("/clear_all", s.handleClearAll)
		rfid.GET("/get_device_state/:device", s.handleDeviceState)
		rfid.POST("/write_epc/:device", s.handleWriteEPC)
		rfid.POST("/write_gpo/:device", s.handleWriteGPO)
	}

	inventory := r.Group("/api/inventory")
	{
		inventory.GET("/get_tags", s.handleTags)
		inventory.GET("/get_tag_count", s.handleTagCount)
		inventory.GET("/get_epcs", s.handleEPCs)
		inventory.GET("/get_gtin_counts", s.handleGTINCounts)
	}

	events := r.Group("/api/events")
	{
		events.GET("/get_events", s.handleEvents)
		events.GET("/get_report", s.handleReport)
	}

	receive := r.Group("/api/receive")
	{
		receive.POST("/tags/:device", s.handleReceiveTags)
		receive.POST("/events/:device", s.handleReceiveEvents)
	}

	actions := r.Group("/api/actions")
	{
		actions.GET("/get_actions", s.handleGetActions)
		actions.POST("/set_actions", s.handleSetActions)
	}

	return r
}

func (s *Server) examplesDir() string { return filepath.Join(s.dir, "examples") }
func (s *Server) actionsPath() string { return filepath.Join(s.dir, "actions.json") }

// fail maps the core error kinds to HTTP statuses.
func fail(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, util.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, util.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, util.ErrNotConnected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, util.ErrInvalidConfig), errors.Is(err, util.ErrValidationFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, util.ErrUnsupported):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"msg": err.Error()})
}

func deviceParam(c *gin.Context) string {
	return strings.ToUpper(c.Param("device"))
}
