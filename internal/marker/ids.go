package marker

import (
	"strconv"
	"time"
)

// TimestampLayout is the second resolution UTC stamp used in section ids.
const TimestampLayout = "20060102150405"

// Option configures id generation for [AddSectionMarkers], [Repair] and
// [SplitSections].
type Option func(*options)

type options struct {
	timestamp string
	now       func() time.Time
}

// WithTimestamp forces the timestamp part of generated ids.
func WithTimestamp(ts string) Option {
	return func(o *options) { o.timestamp = ts }
}

// WithClock sets the time source used when no timestamp is forced.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// idGenerator hands out "{timestamp}_{ordinal}" ids for one labelling pass.
// Ordinals start at 1. Ids already present in the document are skipped, so
// two passes within the same second never collide.
type idGenerator struct {
	stamp string
	n     int
	taken map[string]bool
}

func newIDGenerator(lines []Line, opts []Option) *idGenerator {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	stamp := o.timestamp
	if stamp == "" {
		stamp = o.now().UTC().Format(TimestampLayout)
	}

	g := &idGenerator{stamp: stamp, taken: make(map[string]bool)}
	g.reserve(lines)

	return g
}

func (g *idGenerator) reserve(lines []Line) {
	for _, ln := range lines {
		if ln.ID != "" {
			g.taken[ln.ID] = true
		}
	}
}

func (g *idGenerator) next() string {
	for {
		g.n++

		id := g.stamp + "_" + strconv.Itoa(g.n)
		if !g.taken[id] {
			g.taken[id] = true

			return id
		}
	}
}
