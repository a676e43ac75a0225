// Package natshandler forwards run progress and results to a NATS server.
package natshandler

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/rs/zerolog"

	nats "github.com/nats-io/nats.go"
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
	Server string `json:"Server"`
	// Subject prefixes every published subject
	Subject string `json:"Subject"`
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

func New(jsonConfig []byte, system msg.Publisher) (*Handler, error) {
	cfg := config{Server: nats.DefaultURL, Subject: "relsim"}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}

	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)
	for _, topic := range []msg.Topic{msg.Progress, msg.Status} {
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
		log:    logging.Component("nats"),
	}, nil
}

func (h *Handler) Stop() {
	h.stop <- true
}

// encode maps a message to its subject and JSON body. Progress goes to
// <prefix>.<run>.progress and the finished run to <prefix>.<run>.result.
func (h *Handler) encode(m msg.Msg) (string, []byte, bool) {
	var run uuid.UUID
	var kind string
	var body any
	switch p := m.Payload().(type) {
	case simulation.Progress:
		run, kind, body = p.RunID, "progress", p
	case *simulation.MonteCarloResult:
		// summaries travel on the Summary topic; the result carries the aggregate only
		r := *p
		r.Summaries = nil
		run, kind, body = p.RunID, "result", r
	default:
		return "", nil, false
	}
	data, err := json.Marshal(body)
	if err != nil {
		h.log.Error().Err(err).Msg("encode")
		return "", nil, false
	}
	return h.config.Subject + "." + run.String() + "." + kind, data, true
}

// Process publishes until stopped. It returns the connection error when the
// server cannot be reached.
func (h *Handler) Process() error {
	nc, err := nats.Connect(h.config.Server, nats.Name("relsim"))
	if err != nil {
		return err
	}
	defer nc.Close()
	h.log.Info().Str("server", h.config.Server).Msg("process started")

	publish := func(m msg.Msg) {
		subject, data, ok := h.encode(m)
		if !ok {
			return
		}
		if err := nc.Publish(subject, data); err != nil {
			h.log.Warn().Err(err).Str("subject", subject).Msg("unable to publish to nats server")
		}
	}
loop:
	for {
		select {
		case m := <-h.inbox:
			publish(m)
		case <-h.stop:
			break loop
		}
	}
drain:
	for {
		select {
		case m := <-h.inbox:
			publish(m)
		default:
			break drain
		}
	}
	if err := nc.Flush(); err != nil {
		h.log.Warn().Err(err).Msg("flush")
	}
	h.log.Info().Msg("process shutdown")
	return nil
}
