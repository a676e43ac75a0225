// Package sqldb stores replication summaries and run results in a SQL
// database. SQLite is the default; MySQL and PostgreSQL are selected by the
// Driver field of the handler config.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/rs/zerolog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrUnknownDriver = errors.New("unknown sql driver")

const writeTimeout = 5 * time.Second

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
	db     *sql.DB
	log    zerolog.Logger
}

type config struct {
	Driver   string `json:"Driver"` // sqlite, mysql or postgres
	Path     string `json:"Path"`   // sqlite file
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
}

func (c config) dsn() (string, error) {
	switch c.Driver {
	case "sqlite":
		return c.Path, nil
	case "mysql":
		return fmt.Sprintf("%v:%v@tcp(%v:%v)/%v", c.Username, c.Password, c.Server, c.Port, c.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Server, c.Port, c.Username, c.Password, c.Database), nil
	}
	return "", fmt.Errorf("%q: %w", c.Driver, ErrUnknownDriver)
}

// rebind rewrites ? placeholders to $n for postgres
func (c config) rebind(query string) string {
	if c.Driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

// New opens the database described by jsonConfig, creates the tables and
// subscribes to the summaries and run results published on system.
func New(jsonConfig []byte, system msg.Publisher) (*Handler, error) {
	cfg := config{Driver: "sqlite"}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := initDBTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s tables: %w", cfg.Driver, err)
	}

	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)
	for _, topic := range []msg.Topic{msg.Summary, msg.Status} {
		ch, err := system.Subscribe(pid, topic)
		if err != nil {
			db.Close()
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
		db:     db,
		log:    logging.Component("sqldb").With().Str("driver", cfg.Driver).Logger(),
	}, nil
}

func (h *Handler) Stop() {
	h.stop <- true
}

// Close releases the database. Process must have returned.
func (h *Handler) Close() error {
	return h.db.Close()
}

// Process writes every received summary and run result until stopped
func (h *Handler) Process() {
	h.log.Info().Msg("process started")
loop:
	for {
		select {
		case m := <-h.inbox:
			h.write(m)
		case <-h.stop:
			break loop
		}
	}
	// write what is already queued
	for {
		select {
		case m := <-h.inbox:
			h.write(m)
		default:
			h.log.Info().Msg("process shutdown")
			return
		}
	}
}

func (h *Handler) write(m msg.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := h.handle(ctx, m); err != nil {
		h.log.Error().Err(err).Str("topic", m.Topic().String()).Msg("update db")
	}
}

func (h *Handler) handle(ctx context.Context, m msg.Msg) error {
	switch p := m.Payload().(type) {
	case simulation.Summary:
		return h.PutSummary(ctx, p)
	case *simulation.MonteCarloResult:
		return h.PutRun(ctx, p)
	}
	return nil
}

func initDBTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs(
			run_id VARCHAR(36) PRIMARY KEY,
			system_name VARCHAR(255),
			iterations INTEGER,
			failed INTEGER,
			mean TEXT,
			std_dev TEXT,
			networks TEXT)`,
		`CREATE TABLE IF NOT EXISTS summaries(
			run_id VARCHAR(36) NOT NULL,
			iteration INTEGER NOT NULL,
			seed BIGINT,
			ticks INTEGER,
			anomalies INTEGER,
			saifi DOUBLE PRECISION,
			saidi DOUBLE PRECISION,
			caidi DOUBLE PRECISION,
			ens DOUBLE PRECISION,
			ev_interrupted_charging DOUBLE PRECISION,
			interruption_cost DOUBLE PRECISION,
			networks TEXT,
			error TEXT,
			PRIMARY KEY (run_id, iteration))`,
	}
	for _, s := range statements {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// replace deletes the rows matching where and inserts a new one in a single
// transaction. It stands in for an upsert the three dialects spell
// differently.
func (h *Handler) replace(ctx context.Context, del string, delArgs []any, ins string, insArgs []any) error {
	h.mux.Lock()
	defer h.mux.Unlock()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, h.config.rebind(del), delArgs...); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, h.config.rebind(ins), insArgs...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PutSummary stores the indices of one replication. Bus accounting is left
// to the csv tables.
func (h *Handler) PutSummary(ctx context.Context, s simulation.Summary) error {
	networks, err := json.Marshal(s.Networks)
	if err != nil {
		return err
	}
	ix := s.System
	return h.replace(ctx,
		`DELETE FROM summaries WHERE run_id = ? AND iteration = ?`,
		[]any{s.RunID.String(), s.Iteration},
		`INSERT INTO summaries (run_id, iteration, seed, ticks, anomalies, saifi, saidi, caidi, ens,
			ev_interrupted_charging, interruption_cost, networks, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{s.RunID.String(), s.Iteration, int64(s.Seed), s.Ticks, s.Anomalies,
			ix.SAIFI, ix.SAIDI, ix.CAIDI, ix.ENS, ix.EVInterruptedCharging, ix.InterruptionCost,
			string(networks), s.Err},
	)
}

// PutRun stores the aggregate of a finished run
func (h *Handler) PutRun(ctx context.Context, r *simulation.MonteCarloResult) error {
	mean, err := json.Marshal(r.Mean)
	if err != nil {
		return err
	}
	std, err := json.Marshal(r.StdDev)
	if err != nil {
		return err
	}
	networks, err := json.Marshal(r.Networks)
	if err != nil {
		return err
	}
	return h.replace(ctx,
		`DELETE FROM runs WHERE run_id = ?`,
		[]any{r.RunID.String()},
		`INSERT INTO runs (run_id, system_name, iterations, failed, mean, std_dev, networks)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]any{r.RunID.String(), r.System, len(r.Summaries), r.Failed, string(mean), string(std), string(networks)},
	)
}

// Run is a stored run aggregate
type Run struct {
	RunID      uuid.UUID                     `json:"run_id"`
	System     string                        `json:"system"`
	Iterations int                           `json:"iterations"`
	Failed     int                           `json:"failed"`
	Mean       simulation.Indices            `json:"mean"`
	StdDev     simulation.Indices            `json:"std_dev"`
	Networks   map[string]simulation.Indices `json:"networks"`
}

// Runs lists the stored runs
func (h *Handler) Runs(ctx context.Context) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_id, system_name, iterations, failed, mean, std_dev, networks FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var id, mean, std, networks string
		if err := rows.Scan(&id, &r.System, &r.Iterations, &r.Failed, &mean, &std, &networks); err != nil {
			return nil, err
		}
		if r.RunID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if err := unmarshalAll([]string{mean, std, networks}, &r.Mean, &r.StdDev, &r.Networks); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summaries returns the stored replications of run ordered by iteration
func (h *Handler) Summaries(ctx context.Context, run uuid.UUID) ([]simulation.Summary, error) {
	rows, err := h.db.QueryContext(ctx, h.config.rebind(
		`SELECT iteration, seed, ticks, anomalies, saifi, saidi, caidi, ens, ev_interrupted_charging,
			interruption_cost, networks, error
			FROM summaries WHERE run_id = ? ORDER BY iteration`), run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []simulation.Summary
	for rows.Next() {
		s := simulation.Summary{RunID: run}
		var seed int64
		var networks string
		ix := &s.System
		if err := rows.Scan(&s.Iteration, &seed, &s.Ticks, &s.Anomalies,
			&ix.SAIFI, &ix.SAIDI, &ix.CAIDI, &ix.ENS, &ix.EVInterruptedCharging, &ix.InterruptionCost,
			&networks, &s.Err); err != nil {
			return nil, err
		}
		s.Seed = uint64(seed)
		if err := json.Unmarshal([]byte(networks), &s.Networks); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unmarshalAll(data []string, into ...any) error {
	for i, d := range data {
		if err := json.Unmarshal([]byte(d), into[i]); err != nil {
			return err
		}
	}
	return nil
}
