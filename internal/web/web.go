package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"schedcore/internal/config"
	"schedcore/internal/conflict"
	"schedcore/internal/ics"
	appLog "schedcore/internal/log"
	"schedcore/internal/model"
	"schedcore/internal/nlp"
	"schedcore/internal/recurrence"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the analysis engines over HTTP.
type Server struct {
	cfg      *config.Config
	analyzer *nlp.Analyzer
	detector *conflict.Detector
	fetcher  *ics.Fetcher
	mux      *http.ServeMux
	now      func() time.Time

	// Memoized /api/analyze responses keyed by request hash.
	cache *lru.Cache[string, *nlp.Analysis]
}

type Option func(*Server)

// WithClock overrides the clock used for relative dates and cache keys.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(cfg *config.Config, analyzer *nlp.Analyzer, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("web: config is nil")
	}
	if analyzer == nil {
		return nil, errors.New("web: analyzer is nil")
	}
	cache, err := lru.New[string, *nlp.Analysis](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		detector: conflict.NewDetector(cfg.ConflictOptions()),
		fetcher:  ics.NewFetcher(cfg.CacheDir, 0),
		mux:      http.NewServeMux(),
		now:      time.Now,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedcore", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/recurrence", s.handleRecurrence)
	s.mux.HandleFunc("POST /api/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type analyzeRequest struct {
	Text string `json:"text"`
	// ExistingEvents, when omitted, are read from the configured calendars.
	ExistingEvents []model.Event       `json:"existing_events,omitempty"`
	Timezone       string              `json:"timezone,omitempty"`
	UserPattern    *model.UserPattern  `json:"user_pattern,omitempty"`
	WorkingHours   *model.WorkingHours `json:"working_hours,omitempty"`
}

// handleAnalyze runs one full analysis.
//
// POST /api/analyze {"text": "...", "existing_events": [...]}
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	loc := s.cfg.Location()
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone "+strconv.Quote(req.Timezone))
			return
		}
		loc = l
	}
	pattern := req.UserPattern
	if pattern == nil {
		pattern = s.cfg.UserPattern
	}
	hours := s.cfg.WorkingHours()
	if req.WorkingHours != nil {
		hours = *req.WorkingHours
	}

	now := s.now()
	existing := req.ExistingEvents
	if existing == nil {
		existing = s.calendarEvents(r.Context(), now, loc).Events
	}

	key, err := cacheKey(req.Text, existing, loc.String(), pattern, hours, now.Truncate(time.Minute))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash request")
		return
	}
	if cached, ok := s.cache.Get(key); ok {
		appLog.Debug("api analyze cache hit")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), req.Text, existing, nlp.Options{
		Location:     loc,
		UserPattern:  pattern,
		WorkingHours: hours,
	})
	if err != nil {
		var ie *nlp.InputError
		switch {
		case errors.As(err, &ie):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: ie.Error(), Reason: ie.Reason})
		case model.IsCapabilityError(err):
			appLog.Error("api analyze: parser unavailable", err)
			writeError(w, http.StatusBadGateway, "text parser unavailable")
		default:
			appLog.Error("api analyze failed", err)
			writeError(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	s.cache.Add(key, res)
	appLog.Info("api analyze", "events", len(res.Events), "conflicts", res.Conflicts.TotalConflicts, "parser", res.Parser)
	writeJSON(w, http.StatusOK, res)
}

type recurrenceResponse struct {
	recurrence.Result
	RRule       string      `json:"rrule,omitempty"`
	Description string      `json:"description,omitempty"`
	Occurrences []time.Time `json:"occurrences,omitempty"`
}

// handleRecurrence infers a rule from text, or decodes a given rule, and
// lists its next occurrences.
//
// GET /api/recurrence?text=every+other+monday&from=2026-03-10T09:00:00Z&count=5
// GET /api/recurrence?rule=FREQ=WEEKLY;BYDAY=MO
func (s *Server) handleRecurrence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("text"))
	raw := strings.TrimSpace(q.Get("rule"))
	if text == "" && raw == "" {
		writeError(w, http.StatusBadRequest, "text or rule is required")
		return
	}

	from := s.now()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		from = t
	}
	count := parseIntDefault(q.Get("count"), 5)
	if count < 0 || count > 100 {
		writeError(w, http.StatusBadRequest, "count must be within 0..100")
		return
	}

	engine := recurrence.NewEngine(recurrence.WithClock(s.now))
	var resp recurrenceResponse
	if raw != "" {
		rule, err := recurrence.ParseRule(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Result = recurrence.Result{HasRecurrence: true, Rule: &rule, Confidence: 1}
	} else {
		resp.Result = engine.Parse(text)
	}

	if resp.HasRecurrence && resp.Rule != nil {
		rule := *resp.Rule
		if str, err := engine.GenerateRule(rule); err == nil {
			resp.RRule = str
		}
		if d, err := engine.GenerateDescription(rule); err == nil {
			resp.Description = d
		}
		resp.Occurrences = engine.NextOccurrences(rule, from.In(s.cfg.Location()), count)
	}
	writeJSON(w, http.StatusOK, resp)
}

type conflictsRequest struct {
	Events []*model.EventCandidate `json:"events"`
}

// handleConflicts runs conflict detection over the posted events and
// returns the analysis together with each event's conflict references.
//
// POST /api/conflicts {"events": [...]}
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	for i, ev := range req.Events {
		if ev == nil {
			writeError(w, http.StatusBadRequest, "events["+strconv.Itoa(i)+"] is null")
			return
		}
		if err := ev.Interval.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "events["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		ev.Conflicts = nil
	}

	an := s.detector.Analyze(req.Events)
	writeJSON(w, http.StatusOK, struct {
		conflict.Analysis
		Events []*model.EventCandidate `json:"events"`
	}{an, req.Events})
}

// handleEvents lists events of the configured calendars inside a window.
//
// GET /api/events?days=7&backfill=1
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	loc := s.cfg.Location()
	now := s.now().In(loc)
	win := ics.Window{Start: now.AddDate(0, 0, -backfill), End: now.AddDate(0, 0, days)}
	res := s.loadCalendars(r.Context(), win, loc)

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:        res.Events,
		TruncatedUIDs: res.Truncated,
		RangeStart:    win.Start,
		RangeEnd:      win.End,
		TimeZone:      loc.String(),
	})
}

type eventsResponse struct {
	Events        []model.Event `json:"events"`
	TruncatedUIDs []string      `json:"truncated_uids,omitempty"`
	RangeStart    time.Time     `json:"range_start"`
	RangeEnd      time.Time     `json:"range_end"`
	TimeZone      string        `json:"timezone"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// decodeBody reads a JSON body into v and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// cacheKey hashes everything an analysis depends on.
func cacheKey(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
