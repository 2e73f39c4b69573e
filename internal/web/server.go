package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/conorfennell/neurospark/internal/srs"
	"github.com/conorfennell/neurospark/internal/storage"
	"github.com/conorfennell/neurospark/internal/study"
	"github.com/conorfennell/neurospark/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Options tune a Server. The zero value is usable.
type Options struct {
	// Syncer runs POST /sync. Without one the route answers 503.
	Syncer *sync.Syncer
	// DueThreshold defaults to study.DueThreshold.
	DueThreshold float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	router    chi.Router
	reviewer  *study.Reviewer
	syncer    *sync.Syncer
	threshold float64
	now       func() time.Time
	templates *template.Template
	markdown  goldmark.Markdown
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, opts Options) (*Server, error) {
	s := &Server{
		db:        db,
		router:    chi.NewRouter(),
		syncer:    opts.Syncer,
		threshold: opts.DueThreshold,
		now:       opts.Now,
		markdown:  goldmark.New(),
	}
	if s.threshold <= 0 {
		s.threshold = study.DueThreshold
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.reviewer = study.NewReviewer(db, s.now)

	tpl, err := template.New("").Funcs(template.FuncMap{
		"markdown":     s.renderMarkdown,
		"difficulties": srs.Difficulties,
		"percent":      func(f float64) string { return strconv.FormatFloat(f, 'f', 0, 64) + "%" },
		"date":         func(t time.Time) string { return t.Format(time.DateOnly) },
		"ratio": func(part, whole int) int {
			if whole == 0 {
				return 0
			}
			return part * 100 / whole
		},
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	s.templates = tpl

	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Handle("/", fileServer)

	// HTMX fragments
	r.Get("/deck", s.handleGetDeck())
	r.Get("/review/next", s.handleGetNextReview())
	r.Get("/review/{hash}/answer", s.handleShowAnswer())
	r.Post("/review/{hash}", s.handlePostReview())
	r.Get("/dashboard", s.handleGetDashboard())

	r.Get("/sources", s.handleGetSources())
	r.Post("/sources", s.handlePostSource())
	r.Delete("/sources/{id}", s.handleDeleteSource())
	r.Post("/sync", s.handlePostSync())

	r.Post("/sessions", s.handleStartSession())
	r.Post("/sessions/{id}/end", s.handleEndSession())
	return nil
}

// render executes a template into a buffer so a failure can still produce a 500.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Error rendering template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

type deckView struct {
	Deck        string
	Decks       []storage.DeckSummary
	DueCount    int
	HasDueCards bool
}

func (s *Server) dueQueue(deck string) ([]study.Entry, error) {
	cards, err := s.db.CardsWithLatestReview(deck)
	if err != nil {
		return nil, err
	}
	return study.BuildQueue(cards, s.now(), s.threshold), nil
}

func (s *Server) deckView(deck string, due int) (deckView, error) {
	decks, err := s.db.ListDecks()
	if err != nil {
		return deckView{}, err
	}
	return deckView{Deck: deck, Decks: decks, DueCount: due, HasDueCards: due > 0}, nil
}

// handleGetDeck renders the deck view, showing the number of due cards.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck := r.URL.Query().Get("deck")
		queue, err := s.dueQueue(deck)
		if err != nil {
			internalError(w, "Error getting due cards for deck view", err)
			return
		}
		view, err := s.deckView(deck, len(queue))
		if err != nil {
			internalError(w, "Error listing decks", err)
			return
		}
		s.render(w, "deck", view)
	}
}

type cardView struct {
	study.Entry
	Deck string
	Due  int
}

// handleGetNextReview renders the front of the most urgent due card.
func (s *Server) handleGetNextReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderNext(w, r.URL.Query().Get("deck"))
	}
}

func (s *Server) renderNext(w http.ResponseWriter, deck string) {
	queue, err := s.dueQueue(deck)
	if err != nil {
		internalError(w, "Error getting next due card", err)
		return
	}
	if len(queue) == 0 {
		view, err := s.deckView(deck, 0)
		if err != nil {
			internalError(w, "Error listing decks", err)
			return
		}
		s.render(w, "deck", view)
		return
	}
	s.render(w, "card_front", cardView{Entry: queue[0], Deck: deck, Due: len(queue)})
}

// handleShowAnswer renders the back of a card.
func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "hash")
		card, err := s.db.FindCardByHash(hash)
		if err != nil {
			internalError(w, "Error finding card", err)
			return
		}
		if card == nil {
			http.NotFound(w, r)
			return
		}
		latest, err := s.db.LatestReview(hash)
		if err != nil {
			internalError(w, "Error loading latest review", err)
			return
		}
		s.render(w, "card_back", cardView{
			Entry: study.Entry{
				Card:     *card,
				Latest:   latest,
				Urgency:  srs.Urgency(latest, s.now()),
				Strength: study.Strength(latest, s.now()),
			},
			Deck: r.URL.Query().Get("deck"),
		})
	}
}

// handlePostReview records a rating and renders the next card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "hash")
		d, err := srs.ParseDifficulty(r.PostFormValue("difficulty"))
		if err != nil {
			http.Error(w, "Invalid difficulty", http.StatusBadRequest)
			return
		}

		_, schedule, err := s.reviewer.Record(hash, d)
		switch {
		case errors.Is(err, study.ErrUnknownCard):
			http.NotFound(w, r)
			return
		case err != nil:
			internalError(w, "Error recording review", err)
			return
		}
		slog.Info("Review recorded",
			"hash", hash,
			"difficulty", d,
			"interval", schedule.Interval,
			"next_review", schedule.NextReviewAt,
		)

		s.renderNext(w, r.URL.Query().Get("deck"))
	}
}

// handleGetDashboard renders study statistics.
func (s *Server) handleGetDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := study.BuildDashboard(s.db, s.now(), s.threshold)
		if err != nil {
			internalError(w, "Error building dashboard", err)
			return
		}
		s.render(w, "dashboard", dash)
	}
}

func (s *Server) renderSourceList(w http.ResponseWriter, page string, extra map[string]any) {
	sources, err := s.db.GetAllSources()
	if err != nil {
		internalError(w, "Error getting sources", err)
		return
	}
	data := map[string]any{"Sources": sources}
	for k, v := range extra {
		data[k] = v
	}
	s.render(w, page, data)
}

// handleGetSources renders the sources management page.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderSourceList(w, "sources", nil)
	}
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSpace(r.PostFormValue("path"))
		if path == "" {
			http.Error(w, "Path cannot be empty", http.StatusBadRequest)
			return
		}

		existing, err := s.db.FindSourceByPath(path)
		if err != nil {
			internalError(w, "Error checking for existing source", err)
			return
		}
		if existing != nil {
			http.Error(w, "Source already exists", http.StatusConflict)
			return
		}

		if _, err := s.db.InsertSource(path, sync.DetectSourceType(path)); err != nil {
			internalError(w, "Error inserting new source", err)
			return
		}
		s.renderSourceList(w, "source_list", nil)
	}
}

// handleDeleteSource deletes a source with its cards and re-renders the source list.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}

		err = s.db.DeleteSource(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
			return
		case err != nil:
			internalError(w, "Error deleting source", err)
			return
		}
		s.renderSourceList(w, "source_list", nil)
	}
}

// handlePostSync runs a sync in the foreground and re-renders the source list.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.syncer == nil {
			http.Error(w, "Sync is not configured", http.StatusServiceUnavailable)
			return
		}
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			internalError(w, "Error running sync", err)
			return
		}
		s.renderSourceList(w, "sync_result", map[string]any{"Report": report})
	}
}

// handleStartSession opens a study session and renders its controls.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.db.StartSession(r.PostFormValue("deck"), s.now())
		if err != nil {
			internalError(w, "Error starting session", err)
			return
		}
		s.render(w, "session", session)
	}
}

// handleEndSession closes a session with the counts the client kept.
func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		reviewed, err1 := strconv.Atoi(r.PostFormValue("reviewed"))
		correct, err2 := strconv.Atoi(r.PostFormValue("correct"))
		if err1 != nil || err2 != nil || reviewed < 0 || correct < 0 || correct > reviewed {
			http.Error(w, "Invalid session counts", http.StatusBadRequest)
			return
		}

		err := s.db.EndSession(id, reviewed, correct, s.now())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
			return
		case err != nil:
			internalError(w, "Error ending session", err)
			return
		}

		session, err := s.db.FindSession(id)
		if err != nil || session == nil {
			internalError(w, "Error loading session", err)
			return
		}
		s.render(w, "session_summary", session)
	}
}
