// Package mockerp is a stand-in for the ERP backend used in development and
// tests. It accepts preview and import jobs, advances them on a schedule, and
// reports progress through both the status endpoints and the realtime hub.
package mockerp

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/vrsandeep/bom-preview/internal/auth"
	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/payload"
	"github.com/vrsandeep/bom-preview/internal/websocket"
	"github.com/vrsandeep/bom-preview/internal/workbook"
)

const maxUploadSize = 20 << 20

// Options tune how the mock behaves.
type Options struct {
	// Step is the interval between job progress steps.
	Step time.Duration
	// Users maps usernames to passwords accepted by login. Empty allows anyone.
	Users map[string]string
	// PushResult publishes the full preview result on the topic instead of a
	// "finished" status, as some backends do.
	PushResult bool
	// SilentPush suppresses realtime messages, leaving only polling.
	SilentPush bool
	// FailResults makes the result endpoints answer 500.
	FailResults bool
}

// Server is the mock backend.
type Server struct {
	opts     Options
	hub      *websocket.Hub
	accounts *auth.Accounts

	mu       sync.Mutex
	jobs     map[string]*job
	sessions map[string]string
	csrf     string

	scheduler *gocron.Scheduler
	resultHit map[string]int
}

func New(opts Options) (*Server, error) {
	if opts.Step <= 0 {
		opts.Step = 500 * time.Millisecond
	}
	accounts, err := auth.NewAccounts(opts.Users)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:      opts,
		hub:       websocket.NewHub(),
		accounts:  accounts,
		jobs:      make(map[string]*job),
		sessions:  make(map[string]string),
		csrf:      uuid.New().String(),
		resultHit: make(map[string]int),
	}, nil
}

// Start runs the hub and the job scheduler.
func (s *Server) Start() error {
	go s.hub.Run()

	sch := gocron.NewScheduler(time.UTC)
	sch.SingletonModeAll()
	if _, err := sch.Every(s.opts.Step).WaitForSchedule().Do(s.Advance); err != nil {
		return err
	}
	sch.StartAsync()
	s.scheduler = sch
	log.Printf("[mockerp] advancing jobs every %s", s.opts.Step)
	return nil
}

// Close stops the job scheduler.
func (s *Server) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Router sets up and returns the backend's routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/method", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/frappe.auth.get_logged_user", s.handleLoggedUser)
		r.Get("/frappe.sessions.get_csrf_token", s.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(s.csrfMiddleware)
			r.Post("/rbiiot.api.import_bom_api.handle_file_preview", s.handlePreviewEnqueue)
			r.Post("/rbiiot.api.upload_bom_api.import_bom_from_preview", s.handleImportEnqueue)
		})

		r.Get("/rbiiot.api.import_bom_api.get_bom_preview_status", s.handleStatus(kindPreview))
		r.Get("/rbiiot.api.import_bom_api.get_bom_preview_result", s.handleResult(kindPreview))
		r.Get("/rbiiot.api.upload_bom_api.get_bom_import_status", s.handleStatus(kindImport))
		r.Get("/rbiiot.api.upload_bom_api.get_bom_import_result", s.handleResult(kindImport))
	})

	r.Get("/socket.io", s.hub.ServeWs)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// Advance moves every active job one stage forward and publishes the change.
func (s *Server) Advance() {
	s.mu.Lock()
	type update struct {
		topic string
		data  interface{}
	}
	var updates []update
	for _, j := range s.jobs {
		if !j.step() {
			continue
		}
		data := interface{}(j.statusPayload())
		if j.status == models.StatusFinished && s.opts.PushResult && j.kind == kindPreview {
			data = j.result
		}
		updates = append(updates, update{topic: j.topic, data: data})
	}
	s.mu.Unlock()

	if s.opts.SilentPush {
		return
	}
	for _, u := range updates {
		if err := s.hub.Publish(u.topic, u.data); err != nil {
			log.Printf("[mockerp] publish %s: %v", u.topic, err)
		}
	}
}

// ResultFetches reports how often a job's result has been requested.
func (s *Server) ResultFetches(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultHit[jobID]
}

func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := s.csrf
		s.mu.Unlock()
		if r.Header.Get("X-Frappe-CSRF-Token") != want {
			respondWithError(w, http.StatusForbidden, "CSRFTokenError", "Invalid Request: CSRF token missing or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Usr string `json:"usr"`
		Pwd string `json:"pwd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Usr == "" || body.Pwd == "" {
		respondWithError(w, http.StatusBadRequest, "ValidationError", "usr and pwd are required")
		return
	}
	if !s.accounts.Check(body.Usr, body.Pwd) {
		respondWithError(w, http.StatusUnauthorized, "AuthenticationError", "Invalid login credentials")
		return
	}

	sid := uuid.New().String()
	s.mu.Lock()
	s.sessions[sid] = body.Usr
	csrf := s.csrf
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "sid", Value: sid, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: csrf, Path: "/"})
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged In", "full_name": body.Usr})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("sid"); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: "Guest", Path: "/"})
	respondWithJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleLoggedUser(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("sid")
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "AuthenticationError", "Not permitted")
		return
	}
	s.mu.Lock()
	user, ok := s.sessions[c.Value]
	s.mu.Unlock()
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "AuthenticationError", "Not permitted")
		return
	}
	respondWithMessage(w, http.StatusOK, user)
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	token := s.csrf
	s.mu.Unlock()
	respondWithMessage(w, http.StatusOK, token)
}

func (s *Server) handlePreviewEnqueue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondWithMessage(w, http.StatusOK, map[string]string{"status": "error", "message": "Missing file"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithMessage(w, http.StatusOK, map[string]string{"status": "error", "message": "Missing file"})
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "IOError", err.Error())
		return
	}

	j := newJob(kindPreview)
	wb, err := workbook.Read(header.Filename, content)
	if err != nil {
		respondWithMessage(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	result, err := buildPreview(wb)
	if err != nil {
		// Accepted, but the job fails partway, as a real parse failure would.
		j.failWith = err.Error()
	} else {
		j.result = result
	}
	s.enqueue(w, j)
}

func (s *Server) handleImportEnqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}
	preview, _, err := payload.ParsePreviewResult(body)
	if err != nil {
		respondWithMessage(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	j := newJob(kindImport)
	j.result = importSummary(preview)
	s.enqueue(w, j)
}

func (s *Server) enqueue(w http.ResponseWriter, j *job) {
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	log.Printf("[mockerp] queued %s job %s", j.kind, j.id)
	respondWithMessage(w, http.StatusOK, map[string]string{
		"status": string(models.StatusQueued),
		"job_id": j.id,
		"topic":  j.topic,
	})
}

func (s *Server) lookup(kind jobKind, r *http.Request) (*job, bool) {
	id := r.URL.Query().Get("job_id")
	j, ok := s.jobs[id]
	if !ok || j.kind != kind {
		return nil, false
	}
	return j, true
}

func (s *Server) handleStatus(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("job_id") == "" {
			respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id is required"})
			return
		}
		s.mu.Lock()
		j, ok := s.lookup(kind, r)
		var status map[string]interface{}
		if ok {
			status = j.statusPayload()
		}
		s.mu.Unlock()
		if !ok {
			respondWithMessage(w, http.StatusOK, map[string]string{"status": string(models.StatusUnknown)})
			return
		}
		respondWithMessage(w, http.StatusOK, status)
	}
}

func (s *Server) handleResult(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		j, ok := s.lookup(kind, r)
		var result interface{}
		finished := false
		if ok {
			s.resultHit[j.id]++
			result = j.result
			finished = j.status == models.StatusFinished
		}
		s.mu.Unlock()

		switch {
		case s.opts.FailResults:
			respondWithError(w, http.StatusInternalServerError, "InternalError", "result store unavailable")
		case !ok:
			respondWithError(w, http.StatusNotFound, "DoesNotExistError", "job not found")
		case !finished:
			respondWithError(w, http.StatusConflict, "ValidationError", "job has not finished")
		default:
			respondWithMessage(w, http.StatusOK, result)
		}
	}
}
