// Package server provides the JSON API and the background refresh loop.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TobiSchelling/benreader/internal/article"
	"github.com/TobiSchelling/benreader/internal/database"
	"github.com/TobiSchelling/benreader/internal/opml"
	"github.com/TobiSchelling/benreader/internal/pipeline"
)

const maxOPMLSize = 10 << 20

// Server is the HTTP API server.
type Server struct {
	db       *database.DB
	pipe     *pipeline.Pipeline
	articles *article.Session
	poller   *Poller
	router   chi.Router
}

// New creates a server. The poller is not started until Start.
func New(db *database.DB, pipe *pipeline.Pipeline, articles *article.Session, poller *Poller) *Server {
	s := &Server{
		db:       db,
		pipe:     pipe,
		articles: articles,
		poller:   poller,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Post("/refresh", s.handleRefreshAll)
		r.Post("/opml", s.handleImportOPML)

		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleCreateFolder)
		r.Put("/folders/order", s.handleReorderFolders)

		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleCreateFeed)
		r.Delete("/feeds/{id}", s.handleDeleteFeed)
		r.Post("/feeds/{id}/refresh", s.handleRefreshFeed)

		r.Get("/posts", s.handleListPosts)
		r.Post("/posts/mark-all-read", s.handleMarkAllRead)
		r.Post("/posts/{id}/read", s.handleMarkRead)
		r.Post("/posts/{id}/star", s.handleToggleStar)

		r.Get("/article", s.handleArticle)

		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handleSetSetting)
	})

	s.router = r
}

// Start starts the poller and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.poller.Start()
	defer s.poller.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Refresh ---

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	result, ok := s.poller.RunOnce(r.Context())
	if !ok {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feeds":    len(result.Feeds),
		"failed":   result.Failed,
		"newPosts": result.NewPosts,
	})
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := s.pipe.RefreshFeed(r.Context(), id)
	if errors.Is(err, pipeline.ErrFeedNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A feed that could not be fetched or parsed is no change this cycle.
	writeJSON(w, http.StatusOK, map[string]any{
		"feedId":         res.FeedID,
		"fetched":        res.Fetched,
		"newPosts":       res.New,
		"paywallChanged": res.PaywallChanged,
		"failed":         res.Err != nil,
	})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOPMLSize)
	var src io.Reader = r.Body
	// Anything but a multipart upload is the OPML document itself, whatever
	// content type the client sent it with.
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("opml")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing opml file field")
			return
		}
		defer file.Close()
		src = file
	}

	doc, err := opml.Parse(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse OPML: %v", err))
		return
	}
	res, err := opml.Import(r.Context(), doc, s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"folders": res.Folders,
		"feeds":   res.Feeds,
		"skipped": res.Skipped,
	})
}

// --- Folders & feeds ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.db.ListFolders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(folders))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Order *int   `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var (
		id  int64
		err error
	)
	if req.Order != nil {
		id, err = s.db.CreateFolder(req.Name, *req.Order)
	} else {
		id, err = s.db.AppendFolder(req.Name)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleReorderFolders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderIDs []int64 `json:"folderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := s.db.ReorderFolders(req.FolderIDs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.ListFeeds()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(feeds))
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		XMLURL   string `json:"xmlUrl"`
		HTMLURL  string `json:"htmlUrl"`
		FolderID int64  `json:"folderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.XMLURL == "" {
		writeError(w, http.StatusBadRequest, "xmlUrl is required")
		return
	}
	if req.Title == "" {
		req.Title = req.XMLURL
	}
	id, err := s.db.CreateFeed(req.Title, req.XMLURL, req.HTMLURL, req.FolderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := s.db.DeleteFeed(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Posts ---

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.PostFilter{
		StarredOnly: q.Get("starred") == "true",
		HistoryOnly: q.Get("history") == "true",
	}
	if v := q.Get("feedId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid feedId")
			return
		}
		filter.FeedID = &id
	}
	if v := q.Get("folderId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid folderId")
			return
		}
		filter.FolderID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	posts, err := s.db.ListPosts(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := s.db.MarkPostRead(id, time.Now().UnixMilli())
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	starred, err := s.db.ToggleStar(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isStarred": starred})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedID   *int64 `json:"feedId"`
		FolderID *int64 `json:"folderId"`
		Unread   bool   `json:"unread"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	n, err := s.db.MarkAllRead(req.FeedID, req.FolderID, req.Unread, time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// --- Article view ---

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	a, err := s.articles.Open(r.Context(), target)
	switch {
	case errors.Is(err, article.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded by a newer request")
	case errors.Is(err, article.ErrNoArticle):
		writeJSON(w, http.StatusNotFound, map[string]any{"article": nil})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"article": a})
	}
}

// --- Settings ---

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := s.db.GetSetting(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := s.db.SetSetting(chi.URLParam(r, "key"), req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
