package mongodb

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"go.mongodb.org/mongo-driver/bson"
	"gotest.tools/v3/assert"
)

func TestNewReadsConfig(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	h, err := New([]byte(`{"URI": "mongodb://localhost", "Port": "27017"}`), pub)
	assert.NilError(t, err)
	assert.Equal(t, h.config.uri(), "mongodb://localhost:27017")
	assert.Equal(t, h.config.Database, "relsim")
	assert.Equal(t, h.config.timeout().Seconds(), 10.0)

	_, err = New([]byte(`{`), pub)
	assert.ErrorContains(t, err, "unexpected end")
}

func TestSummaryDocument(t *testing.T) {
	s := simulation.Summary{
		RunID:     uuid.New(),
		Iteration: 4,
		Seed:      11,
		System:    simulation.Indices{SAIFI: 0.5},
		Buses:     []simulation.BusSummary{{Name: "B1"}},
	}
	filter := summaryFilter(s)
	assert.Equal(t, filter[0].Value, s.RunID.String())
	assert.Equal(t, filter[1].Value, 4)

	set := summaryToBSON(s)[0].Value.(bson.M)
	assert.Equal(t, set["seed"], int64(11))
	assert.Equal(t, set["system"], s.System)
	_, ok := set["buses"]
	assert.Assert(t, !ok)

	raw, err := bson.Marshal(set)
	assert.NilError(t, err)
	var back struct {
		System simulation.Indices `bson:"system"`
	}
	assert.NilError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, back.System, s.System)
}
