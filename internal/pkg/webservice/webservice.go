// Package webservice serves simulation results over HTTP: stored runs and
// their replication summaries, the csv tables of a save directory, the
// prometheus metrics and a websocket stream of run progress.
package webservice

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/relsim/internal/pkg/database/csvdb"
	"github.com/ohowland/relsim/internal/pkg/database/sqldb"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Store reads stored runs. *sqldb.Handler implements it.
type Store interface {
	Runs(ctx context.Context) ([]sqldb.Run, error)
	Summaries(ctx context.Context, run uuid.UUID) ([]simulation.Summary, error)
}

type Config struct {
	Addr    string
	SaveDir string
}

// App holds what the handlers read. Any of Store, Gatherer and Publisher may
// be nil; their routes then answer 404.
type App struct {
	Config    Config
	Store     Store
	Gatherer  prometheus.Gatherer
	Publisher msg.Publisher
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg Config, store Store, gatherer prometheus.Gatherer, publisher msg.Publisher) *App {
	return &App{
		Config:    cfg,
		Store:     store,
		Gatherer:  gatherer,
		Publisher: publisher,
		log:       logging.Component("webservice"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (app *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", app.wrapHandler(app.BaseHandler)).Methods("GET")
	r.HandleFunc("/runs", app.wrapHandler(app.RunsHandler)).Methods("GET")
	r.HandleFunc("/runs/{run}/summaries", app.wrapHandler(app.SummariesHandler)).Methods("GET")
	r.HandleFunc("/tables/{path:.+}", app.wrapHandler(app.TableHandler)).Methods("GET")
	r.HandleFunc("/progress", app.ProgressHandler).Methods("GET")
	if app.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// ListenAndServe serves Router on Config.Addr until ctx is cancelled
func (app *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.Config.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	app.log.Info().Str("addr", app.Config.Addr).Msg("starting server")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wrapHandler logs every request with its duration
func (app *App) wrapHandler(handler func(w http.ResponseWriter, r *http.Request),
) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		handler(w, r)
		app.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(began)).
			Msg("request")
	}
}

func (app *App) writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.log.Error().Err(err).Msg("malformed JSON")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		app.log.Debug().Err(err).Msg("write response")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (app *App) writeError(w http.ResponseWriter, code int, err error) {
	app.writeJSON(w, code, errorBody{Error: err.Error()})
}

func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, map[string]string{"service": "relsim"})
}

var (
	errNoStore   = errors.New("no result store configured")
	errNoResults = errors.New("no save directory configured")
	errBadPath   = errors.New("table path leaves the save directory")
)

func (app *App) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		app.writeError(w, http.StatusNotFound, errNoStore)
		return
	}
	runs, err := app.Store.Runs(r.Context())
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []sqldb.Run{}
	}
	app.writeJSON(w, http.StatusOK, runs)
}

func (app *App) SummariesHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		app.writeError(w, http.StatusNotFound, errNoStore)
		return
	}
	run, err := uuid.Parse(mux.Vars(r)["run"])
	if err != nil {
		app.writeError(w, http.StatusBadRequest, err)
		return
	}
	sums, err := app.Store.Summaries(r.Context(), run)
	if err != nil {
		app.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(sums) == 0 {
		app.writeError(w, http.StatusNotFound, errors.New("unknown run "+run.String()))
		return
	}
	app.writeJSON(w, http.StatusOK, sums)
}

// tableBody is a csv table with missing values as null
type tableBody struct {
	Header []string     `json:"header"`
	Index  []float64    `json:"index"`
	Rows   [][]*float64 `json:"rows"`
}

func newTableBody(t csvdb.Table) tableBody {
	rows := make([][]*float64, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) && !math.IsInf(row[j], 0) {
				rows[i][j] = &row[j]
			}
		}
	}
	return tableBody{Header: t.Header, Index: t.Index, Rows: rows}
}

// TableHandler serves SaveDir/{path}.csv, e.g. /tables/monte_carlo/SAIFI
func (app *App) TableHandler(w http.ResponseWriter, r *http.Request) {
	if app.Config.SaveDir == "" {
		app.writeError(w, http.StatusNotFound, errNoResults)
		return
	}
	rel := filepath.Clean(filepath.FromSlash(mux.Vars(r)["path"]))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		app.writeError(w, http.StatusBadRequest, errBadPath)
		return
	}
	t, err := csvdb.ReadTable(filepath.Join(app.Config.SaveDir, rel+".csv"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		app.writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		app.writeError(w, http.StatusInternalServerError, err)
		return
	}
	app.writeJSON(w, http.StatusOK, newTableBody(t))
}

// ProgressHandler upgrades to a websocket and forwards every progress
// message as JSON until the client goes away.
func (app *App) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if app.Publisher == nil {
		http.NotFound(w, r)
		return
	}
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	pid := uuid.New()
	inbox, err := app.Publisher.Subscribe(pid, msg.Progress)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer app.Publisher.Unsubscribe(pid)

	// the reader only notices the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-inbox:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(m.Payload()); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
