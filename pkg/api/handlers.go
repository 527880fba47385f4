package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

func (s *Server) handleDeviceList(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Names())
}

func (s *Server) handleDeviceConfig(c *gin.Context) {
	cfg, err := s.reg.Config(deviceParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", cfg.Raw())
}

func (s *Server) handleDeviceTypes(c *gin.Context) {
	c.JSON(http.StatusOK, []config.ReaderKind{
		config.KindUR4, config.KindX714, config.KindR700,
		config.KindICARD, config.KindSerial, config.KindTCP,
	})
}

func (s *Server) handleExampleConfig(c *gin.Context) {
	example, err := config.LoadExample(s.examplesDir(), c.Param("device"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", example)
}

func (s *Server) handleCreateDevice(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, err)
		return
	}
	stored, err := s.reg.Create(c.Param("device"), data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": stored + " created", "device": stored})
}

func (s *Server) handleUpdateDevice(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.reg.Update(deviceParam(c), data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

func (s *Server) handleDeleteDevice(c *gin.Context) {
	if err := s.reg.Delete(deviceParam(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

func (s *Server) handleStart(c *gin.Context) {
	d, err := s.reg.Driver(deviceParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := d.StartInventory(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

func (s *Server) handleStop(c *gin.Context) {
	d, err := s.reg.Driver(deviceParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := d.StopInventory(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

// handleClear evicts a device's tags from the cache and forwards the
// clear to the driver for readers that track tags on-device.
func (s *Server) handleClear(c *gin.Context) {
	name := deviceParam(c)
	d, err := s.reg.Driver(name)
	if err != nil {
		fail(c, err)
		return
	}
	removed := s.pipe.ClearTags(name)
	if err := d.ClearTags(c.Request.Context()); err != nil && !errors.Is(err, util.ErrUnsupported) {
		util.WithDevice(name).Warnf("device-side clear: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success", "removed": removed})
}

func (s *Server) handleClearAll(c *gin.Context) {
	removed := s.pipe.ClearTags("")
	c.JSON(http.StatusOK, gin.H{"msg": "success", "removed": removed})
}

func (s *Server) handleDeviceState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.reg.State(deviceParam(c))})
}

func (s *Server) handleWriteEPC(c *gin.Context) {
	var req tag.WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, util.NewValidationError(err.Error()))
		return
	}
	d, err := s.reg.Driver(deviceParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := d.WriteEPC(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

func (s *Server) handleWriteGPO(c *gin.Context) {
	var req tag.GPORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, util.NewValidationError(err.Error()))
		return
	}
	d, err := s.reg.Driver(deviceParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := d.WriteGPO(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

func (s *Server) handleTags(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Cache().Snapshot())
}

func (s *Server) handleTagCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.pipe.Cache().Count()})
}

func (s *Server) handleEPCs(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Cache().EPCs())
}

func (s *Server) handleGTINCounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Cache().GTINCounts())
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Ring().Snapshot())
}

// handleReceiveTags accepts one reading or a list from an external
// source and feeds them through the pipeline as if a driver emitted
// them.
func (s *Server) handleReceiveTags(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, err)
		return
	}
	readings, err := decodeOneOrMany[tag.Reading](data)
	if err != nil {
		fail(c, util.NewValidationError(err.Error()))
		return
	}

	device := deviceParam(c)
	for _, r := range readings {
		r.Device = device
		s.pipe.OnEvent(device, tag.EventTypeTag, r)
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success", "received_count": len(readings)})
}

type receivedEvent struct {
	EventType string      `json:"event_type"`
	EventData interface{} `json:"event_data"`
}

func (s *Server) handleReceiveEvents(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, err)
		return
	}
	events, err := decodeOneOrMany[receivedEvent](data)
	if err != nil {
		fail(c, util.NewValidationError(err.Error()))
		return
	}

	device := deviceParam(c)
	for _, e := range events {
		s.pipe.OnEvent(device, e.EventType, e.EventData)
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success", "received_count": len(events)})
}

func (s *Server) handleReport(c *gin.Context) {
	db := s.Store()
	if db == nil {
		fail(c, util.NewNotFoundError("database"))
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="report.zip"`)
	if err := db.WriteReport(c.Writer); err != nil {
		util.Errorf("writing report: %v", err)
	}
}

func (s *Server) handleGetActions(c *gin.Context) {
	c.JSON(http.StatusOK, s.Actions())
}

// handleSetActions persists the new actions config and reloads the
// database engine and sink set atomically.
func (s *Server) handleSetActions(c *gin.Context) {
	a := &config.Actions{StorageDays: config.DefaultStorageDays}
	if err := c.ShouldBindJSON(a); err != nil {
		fail(c, util.NewValidationError(err.Error()))
		return
	}
	if err := a.Save(s.actionsPath()); err != nil {
		fail(c, err)
		return
	}
	s.ApplyActions(a)
	c.JSON(http.StatusOK, gin.H{"msg": "success", "data": a})
}

// decodeOneOrMany accepts either a JSON array or a single object.
func decodeOneOrMany[T any](data []byte) ([]T, error) {
	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
