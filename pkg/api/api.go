// Package api serves the HTTP control surface: device status, switch
// commands, a websocket event stream and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blelink/blelink-go/pkg/device"
	"github.com/blelink/blelink-go/pkg/discovery"
	"github.com/blelink/blelink-go/pkg/eventbus"
	"github.com/blelink/blelink-go/pkg/metrics"
	"github.com/blelink/blelink-go/pkg/switches"
)

// Defaults.
const (
	DefaultCommandTimeout = 15 * time.Second
	DefaultPingInterval   = 20 * time.Second
)

// Devices is the device collection served by the API. *device.Hub
// implements it.
type Devices interface {
	Statuses() []device.Status
	Device(address string) (*device.Device, bool)
	Switches() []*switches.Switch
	Switch(id string) (*switches.Switch, *device.Device, bool)
}

// Proxies lists discovered Bluetooth proxies. *discovery.Directory
// implements it.
type Proxies interface {
	All() []discovery.Proxy
}

// Config configures the router.
type Config struct {
	Devices Devices

	// Proxies is optional.
	Proxies Proxies

	// Bus feeds /api/v1/events. Optional.
	Bus *eventbus.Bus

	// Gatherer serves /metrics. Optional.
	Gatherer prometheus.Gatherer

	// Metrics records request counts. Optional.
	Metrics *metrics.Recorder

	// CommandTimeout bounds a switch command.
	CommandTimeout time.Duration

	PingInterval time.Duration

	Logger *slog.Logger
}

type server struct {
	config Config
	logger *slog.Logger
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewRouter wires all routes.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &server{config: cfg, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), requestMetrics(cfg.Metrics))

	r.GET("/healthz", s.health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/devices", s.listDevices)
		v1.GET("/devices/:address", s.getDevice)
		v1.GET("/switches", s.listSwitches)
		v1.GET("/switches/:id", s.getSwitch)
		v1.POST("/switches/:id/on", s.setSwitch(true))
		v1.POST("/switches/:id/off", s.setSwitch(false))
		v1.GET("/proxies", s.listProxies)
		v1.GET("/events", s.eventStream)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func (s *server) health(c *gin.Context) {
	statuses := s.config.Devices.Statuses()
	available := 0
	for _, st := range statuses {
		if st.Available {
			available++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"devices":   len(statuses),
		"available": available,
	})
}

func (s *server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.config.Devices.Statuses())
}

func (s *server) getDevice(c *gin.Context) {
	d, ok := s.config.Devices.Device(c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": device.ErrUnknownDevice.Error()})
		return
	}
	c.JSON(http.StatusOK, d.Status())
}

func (s *server) listSwitches(c *gin.Context) {
	all := s.config.Devices.Switches()
	out := make([]switches.State, 0, len(all))
	for _, sw := range all {
		out = append(out, sw.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) getSwitch(c *gin.Context) {
	sw, _, ok := s.config.Devices.Switch(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": device.ErrUnknownSwitch.Error()})
		return
	}
	c.JSON(http.StatusOK, sw.Snapshot())
}

func (s *server) setSwitch(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sw, _, ok := s.config.Devices.Switch(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": device.ErrUnknownSwitch.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.CommandTimeout)
		defer cancel()

		if err := sw.Set(ctx, on); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, switches.ErrUnavailable):
				status = http.StatusServiceUnavailable
			case errors.Is(err, context.DeadlineExceeded):
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"error": err.Error(), "switch": sw.Snapshot()})
			return
		}
		c.JSON(http.StatusOK, sw.Snapshot())
	}
}

func (s *server) listProxies(c *gin.Context) {
	if s.config.Proxies == nil {
		c.JSON(http.StatusOK, []discovery.Proxy{})
		return
	}
	c.JSON(http.StatusOK, s.config.Proxies.All())
}

func (s *server) eventStream(c *gin.Context) {
	if s.config.Bus == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event stream disabled"})
		return
	}
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsub := s.config.Bus.Subscribe()
	defer unsub()

	// Reads are only drained to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
