// Package mongodb upserts replication summaries and run results into a
// MongoDB database.
package mongodb

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	summaryCollection = "summaries"
	runCollection     = "runs"
)

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	log    zerolog.Logger
}

type config struct {
	URI      string `json:"URI"`
	Database string `json:"Database"`
	Port     string `json:"Port"`
	// Timeout bounds connecting and every write, in seconds
	Timeout int `json:"Timeout"`
}

func (c config) uri() string {
	if c.Port == "" {
		return c.URI
	}
	return c.URI + ":" + c.Port
}

func (c config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

func New(jsonConfig []byte, system msg.Publisher) (*Handler, error) {
	cfg := config{Database: "relsim"}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}

	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)
	for _, topic := range []msg.Topic{msg.Summary, msg.Status} {
		ch, err := system.Subscribe(pid, topic)
		if err != nil {
			return nil, err
		}
		go redirectMsg(ch, inbox)
	}

	return &Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool),
		log:    logging.Component("mongodb"),
	}, nil
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func (h *Handler) StopProcess() {
	h.stop <- true
}

// summaryFilter keys a summary document by run and iteration
func summaryFilter(s simulation.Summary) bson.D {
	return bson.D{
		{Key: "run_id", Value: s.RunID.String()},
		{Key: "iteration", Value: s.Iteration},
	}
}

// summaryToBSON drops the bus accounting; it is kept in the csv tables
func summaryToBSON(s simulation.Summary) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"run_id":    s.RunID.String(),
			"iteration": s.Iteration,
			"seed":      int64(s.Seed),
			"ticks":     s.Ticks,
			"anomalies": s.Anomalies,
			"system":    s.System,
			"networks":  s.Networks,
			"error":     s.Err,
		}},
	}
}

func runToBSON(r *simulation.MonteCarloResult) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"run_id":     r.RunID.String(),
			"system":     r.System,
			"iterations": len(r.Summaries),
			"failed":     r.Failed,
			"mean":       r.Mean,
			"std_dev":    r.StdDev,
			"networks":   r.Networks,
			"buses":      r.Buses,
		}},
	}
}

// Process connects and upserts every received message until stopped. It
// returns the connection error when the server cannot be reached.
func (h *Handler) Process() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.timeout())
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(h.config.uri()))
	cancel()
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	db := client.Database(h.config.Database)
	h.log.Info().Str("database", h.config.Database).Msg("process started")
	write := func(m msg.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.timeout())
		defer cancel()
		if err := h.upsert(ctx, db, m); err != nil {
			h.log.Error().Err(err).Str("topic", m.Topic().String()).Msg("upsert")
		}
	}
loop:
	for {
		select {
		case m := <-h.inbox:
			write(m)
		case <-h.stop:
			break loop
		}
	}
	for {
		select {
		case m := <-h.inbox:
			write(m)
		default:
			h.log.Info().Msg("process shutdown")
			return nil
		}
	}
}

func (h *Handler) upsert(ctx context.Context, db *mongo.Database, m msg.Msg) error {
	opts := options.Update().SetUpsert(true)
	var err error
	switch p := m.Payload().(type) {
	case simulation.Summary:
		_, err = db.Collection(summaryCollection).UpdateOne(ctx, summaryFilter(p), summaryToBSON(p), opts)
	case *simulation.MonteCarloResult:
		_, err = db.Collection(runCollection).UpdateOne(ctx,
			bson.D{{Key: "run_id", Value: p.RunID.String()}}, runToBSON(p), opts)
	}
	return err
}
