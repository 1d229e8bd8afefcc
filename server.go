package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// exposedHeaders are the response headers the web client may read across
// origins.
var exposedHeaders = strings.Join([]string{
	"Content-Disposition",
	"X-DFS3-File-ID",
	"X-DFS3-Owner",
	"X-DFS3-Public-Key",
	"X-DFS3-Size",
	"X-DFS3-IV",
	"X-DFS3-SHA256",
	"X-DFS3-Mimetype",
	"X-DFS3-Encrypted-Key",
	"X-DFS3-IV-Key",
}, ", ")

// newRouter assembles the API surface. Status, auth bootstrap, the event
// index and the raw blob endpoint are public; everything else needs a
// bearer session. All /files/... params share the name "name": a filename
// on the user-facing routes, a file_id on /data.
func newRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Use(a.recoverMiddleware)
	r.Use(a.corsMiddleware)
	r.Use(a.logMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/challenge", a.handleChallenge)
		r.Post("/auth/verify", a.handleVerify)
		r.Get("/events", a.handleListEvents)
		r.Get("/event/{blockID}", a.handleGetEvent)
		r.Get("/files/{name}/data", a.handleFileData)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/users", a.handleListUsers)
			r.Get("/users/{userID}", a.handleGetUser)
			r.Get("/nodes", a.handleListNodes)
			r.Get("/nodes/{nodeID}", a.handleGetNode)
			r.Get("/files", a.handleListFiles)
			r.Post("/files", a.handleUploadFile)
			r.Post("/files/share", a.handleShareFile)
			r.Get("/files/{name}", a.handleDownloadFile)
			r.Get("/files/{name}/meta", a.handleFileMeta)
			r.Patch("/files/{name}", a.handleRenameFile)
			r.Delete("/files/{name}", a.handleDeleteFile)
		})
	})
	return r
}

// newHTTPServer wraps the router for main. TLS is decided there.
func newHTTPServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.BindIP, strconv.Itoa(cfg.APIPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("[http] response write: %v", err)
	}
}

// writeError maps a tagged error onto its HTTP status. Internal causes
// never leave the node: 5xx bodies carry a generic detail and the real
// error goes to the log.
func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status >= 500 {
		log.Errorf("[http] %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"detail": msg})
}

// decodeStrict parses a JSON body; unknown fields and trailing garbage are
// client errors.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errValidationf("bad request body: %v", err)
	}
	return nil
}

func (a *App) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debugf("[http] %s %s -> %d (%s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (a *App) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Errorf("[http] panic on %s %s: %v", r.Method, r.URL.Path, rec)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights and exposes the X-DFS3 headers to the
// configured web origin. No origin configured means no CORS handling.
func (a *App) corsMiddleware(next http.Handler) http.Handler {
	if a.cfg.CORSOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", a.cfg.CORSOrigin)
		h.Set("Access-Control-Expose-Headers", exposedHeaders)
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
