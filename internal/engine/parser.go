package engine

import "encoding/json"

// Parser decodes raw lines into events and drives an Aggregator using an
// adapter-supplied routing table (§4.3).
type Parser struct {
	routes RoutingTable
	agg    *Aggregator
}

// NewParser builds a parser bound to one attempt's aggregator.
func NewParser(routes RoutingTable, agg *Aggregator) *Parser {
	return &Parser{routes: routes, agg: agg}
}

// Feed processes one raw line: tail tracking, JSON decode, dispatch by
// discriminator. Unknown event types are retained (if full-log capture is
// on) but otherwise ignored.
func (p *Parser) Feed(line string) {
	p.agg.AppendTail(line)

	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		p.agg.RecordDecodeError()
		return
	}

	p.agg.RecordEvent(ev)

	disc := ev.Discriminator()
	if handler, ok := p.routes[disc]; ok {
		handler(ev, p.agg)
	}
}
