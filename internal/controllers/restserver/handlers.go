package restserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
)

type LatestResponse struct {
	Station     string                                  `json:"station"`
	Sensor      string                                  `json:"sensor"`
	LastUpdated *time.Time                              `json:"lastUpdated,omitempty"`
	Scopes      map[publish.Scope][]publish.Measurement `json:"scopes"`
}

type ScopeResponse struct {
	Scope        publish.Scope         `json:"scope"`
	Enabled      bool                  `json:"enabled"`
	Interval     string                `json:"interval,omitempty"`
	Query        string                `json:"query,omitempty"`
	Measurements []publish.Measurement `json:"measurements"`
}

type StatusResponse struct {
	Station string               `json:"station"`
	Healthy bool                 `json:"healthy"`
	Uptime  string               `json:"uptime"`
	Scopes  []health.ScopeStatus `json:"scopes"`
}

type FieldResponse struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Kind     string `json:"kind"`
	Decimals int    `json:"decimals"`
}

// GetLatest returns the newest measurement of every metric in every scope.
func (c *Controller) GetLatest(w http.ResponseWriter, req *http.Request) {
	resp := LatestResponse{
		Station: c.station,
		Sensor:  c.sensor,
		Scopes:  make(map[publish.Scope][]publish.Measurement),
	}
	if updated := c.latest.Updated(); !updated.IsZero() {
		resp.LastUpdated = &updated
	}
	for _, scope := range c.latest.Scopes() {
		resp.Scopes[scope] = c.latest.Scope(scope)
	}
	c.write(w, req, http.StatusOK, resp)
}

// GetScopeMetrics returns the newest measurements of one scope.
func (c *Controller) GetScopeMetrics(w http.ResponseWriter, req *http.Request) {
	scope, err := publish.ParseScope(mux.Vars(req)["scope"])
	if err != nil {
		c.writeError(w, req, http.StatusNotFound, err.Error())
		return
	}

	resp := ScopeResponse{Scope: scope, Measurements: c.latest.Scope(scope)}
	for _, t := range c.tasks {
		if t.Scope != scope {
			continue
		}
		resp.Enabled = t.Enabled()
		if resp.Enabled {
			resp.Interval = t.Interval.String()
			resp.Query = t.Query
		}
	}
	c.write(w, req, http.StatusOK, resp)
}

// GetStatus returns poll health. Unhealthy pollers answer 503.
func (c *Controller) GetStatus(w http.ResponseWriter, req *http.Request) {
	resp := StatusResponse{
		Station: c.station,
		Healthy: c.status.Healthy(),
		Uptime:  time.Since(c.started).Round(time.Second).String(),
		Scopes:  c.status.Snapshot(),
	}
	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.write(w, req, code, resp)
}

// GetFields lists the transmitter fields the decoder knows.
func (c *Controller) GetFields(w http.ResponseWriter, req *http.Request) {
	specs := wxt.Fields()
	resp := make([]FieldResponse, 0, len(specs))
	for _, f := range specs {
		resp = append(resp, FieldResponse{
			Code:     f.Code,
			Name:     f.Name,
			Unit:     f.Unit,
			Kind:     f.Kind.String(),
			Decimals: f.Decimals,
		})
	}
	c.write(w, req, http.StatusOK, resp)
}

func (c *Controller) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := c.formatter.WriteResponse(w, req, status, data); err != nil {
		c.logger.Errorf("error writing %s response: %v", req.URL.Path, err)
	}
}

func (c *Controller) writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := c.formatter.WriteError(w, req, status, msg); err != nil {
		c.logger.Errorf("error writing %s error response: %v", req.URL.Path, err)
	}
}
