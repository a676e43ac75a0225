package webservice

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/relsim/internal/pkg/database/csvdb"
	"github.com/ohowland/relsim/internal/pkg/database/sqldb"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"gotest.tools/v3/assert"
)

type memStore struct {
	runs      []sqldb.Run
	summaries map[uuid.UUID][]simulation.Summary
}

func (s memStore) Runs(context.Context) ([]sqldb.Run, error) { return s.runs, nil }

func (s memStore) Summaries(_ context.Context, run uuid.UUID) ([]simulation.Summary, error) {
	return s.summaries[run], nil
}

func get(t *testing.T, app *App, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://example.com"+target, nil)
	app.Router().ServeHTTP(w, r)
	return w
}

func TestBaseHandler(t *testing.T) {
	w := get(t, New(Config{}, nil, nil, nil), "/")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Result().Header.Get("Content-Type"), "application/json; charset=UTF-8")
}

func TestRunsAndSummaries(t *testing.T) {
	run := uuid.New()
	store := memStore{
		runs: []sqldb.Run{{RunID: run, System: "rbts2", Iterations: 2}},
		summaries: map[uuid.UUID][]simulation.Summary{
			run: {{RunID: run, Iteration: 0}, {RunID: run, Iteration: 1, System: simulation.Indices{SAIFI: 1}}},
		},
	}
	app := New(Config{}, store, nil, nil)

	w := get(t, app, "/runs")
	assert.Equal(t, w.Code, http.StatusOK)
	var runs []sqldb.Run
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.DeepEqual(t, runs, store.runs)

	w = get(t, app, "/runs/"+run.String()+"/summaries")
	assert.Equal(t, w.Code, http.StatusOK)
	var sums []simulation.Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &sums))
	assert.Equal(t, len(sums), 2)
	assert.Equal(t, sums[1].System.SAIFI, 1.0)

	assert.Equal(t, get(t, app, "/runs/"+uuid.NewString()+"/summaries").Code, http.StatusNotFound)
	assert.Equal(t, get(t, app, "/runs/nope/summaries").Code, http.StatusBadRequest)
	assert.Equal(t, get(t, New(Config{}, nil, nil, nil), "/runs").Code, http.StatusNotFound)
}

func TestTableHandler(t *testing.T) {
	dir := t.TempDir()
	store, err := csvdb.New(dir)
	assert.NilError(t, err)
	rows := [][]float64{{0.5, math.NaN()}, {1, 2}}
	assert.NilError(t, store.WriteTable("monte_carlo", "SAIFI", []string{"system", "dist"}, []float64{0, 1}, rows))
	app := New(Config{SaveDir: dir}, nil, nil, nil)

	w := get(t, app, "/tables/monte_carlo/SAIFI")
	assert.Equal(t, w.Code, http.StatusOK)
	var body struct {
		Header []string     `json:"header"`
		Index  []float64    `json:"index"`
		Rows   [][]*float64 `json:"rows"`
	}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.DeepEqual(t, body.Header, []string{"system", "dist"})
	assert.Equal(t, *body.Rows[0][0], 0.5)
	assert.Assert(t, body.Rows[0][1] == nil)
	assert.Equal(t, *body.Rows[1][1], 2.0)

	assert.Equal(t, get(t, app, "/tables/monte_carlo/SAIDI").Code, http.StatusNotFound)

	w = httptest.NewRecorder()
	r := mux.SetURLVars(httptest.NewRequest("GET", "http://example.com/", nil), map[string]string{"path": "../secret"})
	app.TableHandler(w, r)
	assert.Equal(t, w.Code, http.StatusBadRequest)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	simulation.NewMetrics(reg)
	app := New(Config{}, nil, reg, nil)

	w := get(t, app, "/metrics")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(w.Body.String(), "relsim_tick_duration_seconds"))
}

func TestProgressStream(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	srv := httptest.NewServer(New(Config{}, nil, nil, pub).Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/progress", nil)
	assert.NilError(t, err)
	defer conn.Close()

	// the server subscribes after the upgrade; publish until the client sees one
	p := simulation.Progress{RunID: uuid.New(), Done: 1, Total: 2}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				pub.Publish(msg.Progress, p)
			}
		}
	}()

	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got simulation.Progress
	assert.NilError(t, conn.ReadJSON(&got))
	assert.Equal(t, got, p)
}
