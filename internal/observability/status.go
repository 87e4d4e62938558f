package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/convergectl/internal/scenario"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const statusNode = "status"

// ActorStatus is the last known step outcome for one actor.
type ActorStatus struct {
	Name      string `json:"name"`
	LastPhase string `json:"last_phase,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Snapshot is the JSON body served by /status.
type Snapshot struct {
	RunID      string        `json:"run_id,omitempty"`
	State      string        `json:"state"`
	Phase      string        `json:"phase,omitempty"`
	PhaseIndex int           `json:"phase_index"`
	Phases     int           `json:"phases"`
	Actors     []ActorStatus `json:"actors"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Error      string        `json:"error,omitempty"`
}

const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateConverged = "converged"
	StateFailed    = "failed"
)

// Tracker folds scenario events into a Snapshot.
type Tracker struct {
	mu    sync.Mutex
	snap  Snapshot
	index map[string]int
	now   func() time.Time
}

var _ scenario.Observer = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{
		snap:  Snapshot{State: StateIdle, PhaseIndex: -1, Phases: len(scenario.Phases())},
		index: make(map[string]int),
		now:   time.Now,
	}
}

func (t *Tracker) Observe(ev scenario.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case scenario.EventRunStarted:
		t.snap = Snapshot{
			RunID:      ev.RunID,
			State:      StateRunning,
			PhaseIndex: -1,
			Phases:     t.snap.Phases,
			StartedAt:  t.now(),
		}
		t.index = make(map[string]int, len(ev.Actors))
		for i, name := range ev.Actors {
			t.index[name] = i
			t.snap.Actors = append(t.snap.Actors, ActorStatus{Name: name})
		}
	case scenario.EventPhaseStarted:
		t.snap.Phase = ev.Phase
		t.snap.PhaseIndex = ev.PhaseIndex
	case scenario.EventStepFinished:
		i, ok := t.index[ev.Actor]
		if !ok {
			return
		}
		t.snap.Actors[i].LastPhase = ev.Phase
		if ev.Err != nil {
			t.snap.Actors[i].Error = ev.Err.Error()
		}
	case scenario.EventRunFinished:
		t.snap.FinishedAt = t.now()
		t.snap.State = StateConverged
		if ev.Err != nil {
			t.snap.State = StateFailed
			t.snap.Error = ev.Err.Error()
		}
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.snap
	out.Actors = append([]ActorStatus(nil), t.snap.Actors...)
	return out
}

// StatusServer exposes run progress over HTTP while a scenario runs.
type StatusServer struct {
	Addr    string
	Tracker *Tracker

	router  *gin.Engine
	started time.Time
	server  *http.Server
}

func NewStatusServer(addr string, tracker *Tracker, corsOrigins []string) *StatusServer {
	RegisterMetrics()
	if tracker == nil {
		tracker = NewTracker()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestObserver(statusNode, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &StatusServer{
		Addr:    addr,
		Tracker: tracker,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *StatusServer) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *StatusServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "convergectl",
		})
	})
	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Tracker.Snapshot())
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start listens on Addr and serves in the background. The bound address
// is returned so ":0" can be used.
func (s *StatusServer) Start() (string, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return "", err
	}
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("status server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return ln.Addr().String(), nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
