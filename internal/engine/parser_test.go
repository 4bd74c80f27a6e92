package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParser_Feed_DispatchesByDiscriminator(t *testing.T) {
	agg := NewAggregator(false)
	routes := RoutingTable{
		"result": func(ev Event, agg *Aggregator) {
			if id, ok := ev.String("result", "session_id"); ok {
				agg.LatchSessionID(id)
			}
			if text, ok := ev.String("result", "result"); ok {
				agg.AppendText(text)
			}
		},
	}
	p := NewParser(routes, agg)

	p.Feed(`{"type":"result","result":{"session_id":"s1","result":"done"}}`)

	assert.Equal(t, "s1", agg.SessionID)
	assert.Equal(t, "done", agg.Text())
}

func TestParser_Feed_MalformedLineCountsDecodeError(t *testing.T) {
	agg := NewAggregator(false)
	p := NewParser(RoutingTable{}, agg)

	p.Feed(`not json`)

	assert.Equal(t, 1, agg.JSONDecodeErrors)
}

func TestParser_Feed_UnknownDiscriminatorIgnored(t *testing.T) {
	agg := NewAggregator(false)
	p := NewParser(RoutingTable{}, agg)

	p.Feed(`{"type":"something_unrouted"}`)

	assert.Equal(t, 0, agg.JSONDecodeErrors)
	assert.Equal(t, "", agg.Text())
}

func TestParser_Feed_TracksTailAndFullLog(t *testing.T) {
	agg := NewAggregator(true)
	p := NewParser(RoutingTable{}, agg)

	p.Feed(`{"type":"noise"}`)
	p.Feed(`{"type":"result","result":{}}`)

	assert.Len(t, agg.Tail(), 2)
	assert.Len(t, agg.FullLog, 2)
}
