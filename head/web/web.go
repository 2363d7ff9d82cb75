// Package web is HTTP JSON control surface of the emulator.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
)

const (
	DefaultStreamInterval = 1 * time.Second
	maxBodySize           = 4 << 10
)

// Controller is the part of emulator exposed over HTTP.
type Controller interface {
	Snapshot() bsi.Snapshot
	CurrentSettings() bsi.SettingsView
	ForceRebroadcast(bsi.Kind) error
	SetLanguage(code uint8) error
	SetUnits(celsius bool)
	SetHour24(hour24 bool)
	SetTime(epoch int64, hour24 bool) error
	SetTimeKeepFormat(epoch int64) error
	ReconfigureBus(context.Context, can.Profile) error
}

// ProfileFunc resolves bus profile by name.
type ProfileFunc func(name string) (can.Profile, error)

type Server struct {
	StreamInterval time.Duration

	log      *log2.Log
	ctl      Controller
	profile  ProfileFunc
	mux      *http.ServeMux
	srv      *http.Server
	upgrader websocket.Upgrader
}

type SettingsRequest struct {
	Language *uint8 `json:"language"`
	Celsius  *bool  `json:"celsius"`
	Hour24   *bool  `json:"h24"`
}

type TimeRequest struct {
	Epoch int64 `json:"epoch"`
	// nil keeps current 12/24h flag
	Hour24 *bool `json:"h24"`
}

type BusRequest struct {
	Profile string `json:"profile"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(ctl Controller, profile ProfileFunc, log *log2.Log) *Server {
	s := &Server{
		StreamInterval: DefaultStreamInterval,
		log:            log,
		ctl:            ctl,
		profile:        profile,
		mux:            http.NewServeMux(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
		},
	}
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/ws", s.handleStream)
	s.mux.HandleFunc("POST /api/rebroadcast", s.handleRebroadcast)
	s.mux.HandleFunc("POST /api/settings", s.handleSettings)
	s.mux.HandleFunc("POST /api/time", s.handleTime)
	s.mux.HandleFunc("POST /api/bus", s.handleBus)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Serve blocks until Shutdown or listener error.
func (s *Server) Serve(ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Infof("web: listen %s", ln.Addr().String())
	err := s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Annotate(err, "web serve")
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "web listen %s", addr)
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handleRebroadcast(w http.ResponseWriter, r *http.Request) {
	kind, err := bsi.ParseKind(r.URL.Query().Get("kind"))
	if err == nil {
		err = s.ctl.ForceRebroadcast(kind)
	}
	s.reply(w, err)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := s.readJSON(r, &req); err != nil {
		s.reply(w, err)
		return
	}
	if req.Language != nil {
		if err := s.ctl.SetLanguage(*req.Language); err != nil {
			s.reply(w, err)
			return
		}
	}
	if req.Celsius != nil {
		s.ctl.SetUnits(*req.Celsius)
	}
	if req.Hour24 != nil {
		s.ctl.SetHour24(*req.Hour24)
	}
	s.reply(w, nil)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	var req TimeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.reply(w, err)
		return
	}
	if req.Hour24 == nil {
		s.reply(w, s.ctl.SetTimeKeepFormat(req.Epoch))
		return
	}
	s.reply(w, s.ctl.SetTime(req.Epoch, *req.Hour24))
}

func (s *Server) handleBus(w http.ResponseWriter, r *http.Request) {
	var req BusRequest
	if err := s.readJSON(r, &req); err != nil {
		s.reply(w, err)
		return
	}
	p, err := s.profile(req.Profile)
	if err == nil {
		err = s.ctl.ReconfigureBus(r.Context(), p)
	}
	s.reply(w, err)
}

// handleStream pushes state snapshot every StreamInterval until client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with error status
		s.log.Debugf("web: ws upgrade err=%v", err)
		return
	}
	defer conn.Close()

	// reader detects close, client messages are ignored
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	tmr := time.NewTicker(s.StreamInterval)
	defer tmr.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(s.StreamInterval + time.Second))
		if err := conn.WriteJSON(s.ctl.Snapshot()); err != nil {
			s.log.Debugf("web: ws write err=%v", err)
			return
		}
		select {
		case <-tmr.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewNotValid(err, "request body")
	}
	return nil
}

// reply writes fresh snapshot on success, error with mapped status otherwise.
func (s *Server) reply(w http.ResponseWriter, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, s.ctl.Snapshot())
		return
	}
	s.log.Debugf("web: request err=%v", err)
	s.writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.IsNotValid(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Cause(err) == can.ErrNotRunning:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("web: response encode err=%v", err)
	}
}
