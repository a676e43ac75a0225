package sqldb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

func newHandler(t *testing.T) (*Handler, *msg.PubSub) {
	t.Helper()
	pub := msg.NewPublisher(uuid.New())
	cfg := fmt.Sprintf(`{"Driver": "sqlite", "Path": %q}`, filepath.Join(t.TempDir(), "relsim.db"))
	h, err := New([]byte(cfg), pub)
	assert.NilError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, pub
}

func summary(run uuid.UUID, it int, saifi float64) simulation.Summary {
	return simulation.Summary{
		RunID:     run,
		Iteration: it,
		Seed:      7,
		Ticks:     24,
		System:    simulation.Indices{SAIFI: saifi, SAIDI: 2 * saifi, ENS: 0.5},
		Networks:  map[string]simulation.Indices{"dist": {SAIFI: saifi}},
	}
}

func TestGetConfig(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	_, err := New([]byte(`{"Driver": "oracle"}`), pub)
	assert.ErrorIs(t, err, ErrUnknownDriver)

	c := config{Driver: "mysql", Server: "localhost", Port: 3306, Username: "u", Password: "p", Database: "relsim"}
	dsn, err := c.dsn()
	assert.NilError(t, err)
	assert.Equal(t, dsn, "u:p@tcp(localhost:3306)/relsim")
}

func TestRebind(t *testing.T) {
	c := config{Driver: "postgres"}
	assert.Equal(t, c.rebind(`SELECT a FROM t WHERE b = ? AND c = ?`), `SELECT a FROM t WHERE b = $1 AND c = $2`)
	c.Driver = "sqlite"
	assert.Equal(t, c.rebind(`b = ?`), `b = ?`)
}

func TestPutSummaryReplaces(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	run := uuid.New()

	assert.NilError(t, h.PutSummary(ctx, summary(run, 1, 0.5)))
	assert.NilError(t, h.PutSummary(ctx, summary(run, 0, 0.25)))
	assert.NilError(t, h.PutSummary(ctx, summary(run, 1, 0.75)))

	got, err := h.Summaries(ctx, run)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Iteration, 0)
	assert.DeepEqual(t, got[1], summary(run, 1, 0.75))

	other, err := h.Summaries(ctx, uuid.New())
	assert.NilError(t, err)
	assert.Equal(t, len(other), 0)
}

func TestPutRun(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	r := &simulation.MonteCarloResult{
		RunID:     uuid.New(),
		System:    "rbts2",
		Summaries: make([]simulation.Summary, 3),
		Failed:    1,
		Mean:      simulation.Indices{SAIFI: 1.5},
		Networks:  map[string]simulation.Indices{"dist": {SAIFI: 1.5}},
	}
	assert.NilError(t, h.PutRun(ctx, r))

	runs, err := h.Runs(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(runs), 1)
	assert.Equal(t, runs[0].RunID, r.RunID)
	assert.Equal(t, runs[0].Iterations, 3)
	assert.Equal(t, runs[0].Failed, 1)
	assert.Equal(t, runs[0].Mean.SAIFI, 1.5)
	assert.Equal(t, runs[0].Networks["dist"].SAIFI, 1.5)
}

func TestProcessStoresPublishedSummaries(t *testing.T) {
	h, pub := newHandler(t)
	go h.Process()
	defer h.Stop()

	run := uuid.New()
	for it := 0; it < 3; it++ {
		pub.Publish(msg.Summary, summary(run, it, float64(it)))
	}

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		got, err := h.Summaries(context.Background(), run)
		if err != nil {
			return poll.Error(err)
		}
		if len(got) < 3 {
			return poll.Continue("%d of 3 summaries stored", len(got))
		}
		return poll.Success()
	}, poll.WithTimeout(5*time.Second), poll.WithDelay(10*time.Millisecond))
}
