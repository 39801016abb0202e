// Package bar resamples a tick stream into fixed-period, day-anchored bars
// per symbol and interval, grounded on the per-symbol struct+mutex state
// idiom used by the teacher's internal/state package, generalized from a
// single "position" cache to a per-(symbol,interval) bucket cache.
package bar

import (
	"sync"
	"time"

	"qtrader/internal/eventbus"
	"qtrader/internal/model"
)

// Handler receives a completed bar. A handler registered after bars exist
// only receives bars completed after registration.
type Handler func(model.Bar)

// DefaultAnchor is the Chinese futures market's session open, the default
// day-anchor for bucketing per spec.
const DefaultAnchor = 9*time.Hour + 30*time.Minute

type bucketKey struct {
	symbol   string
	interval model.Interval
}

type bucketState struct {
	start        time.Time
	open         float64
	high         float64
	low          float64
	close        float64
	volume       float64
	turnover     float64
	openInterest float64
}

// Aggregator resamples ticks into bars for every (symbol, interval) pair it
// has been asked to track.
type Aggregator struct {
	mu      sync.Mutex
	anchor  time.Duration
	buckets map[bucketKey]*bucketState
	subs    map[bucketKey][]Handler
	bus     *eventbus.Bus // optional; also publishes kline.update
}

// New creates an Aggregator with the given day anchor (time-of-day offset
// from local midnight at which intraday buckets realign). Pass bus to also
// publish completed bars onto kline.update; pass nil to use Subscribe only.
func New(anchor time.Duration, bus *eventbus.Bus) *Aggregator {
	return &Aggregator{
		anchor:  anchor,
		buckets: make(map[bucketKey]*bucketState),
		subs:    make(map[bucketKey][]Handler),
		bus:     bus,
	}
}

// Subscribe registers h for completed bars of (symbol, interval).
func (a *Aggregator) Subscribe(symbol string, interval model.Interval, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := bucketKey{symbol, interval}
	a.subs[k] = append(a.subs[k], h)
}

// widthFor returns the bucket width for interval.
func widthFor(interval model.Interval) time.Duration {
	switch interval {
	case model.IntervalM1:
		return time.Minute
	case model.IntervalM5:
		return 5 * time.Minute
	case model.IntervalM15:
		return 15 * time.Minute
	case model.IntervalM30:
		return 30 * time.Minute
	case model.IntervalH1:
		return time.Hour
	case model.IntervalD1:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// bucketStart computes the day-anchored bucket start containing t: the
// largest anchor + k*width <= t, where anchor is the most recent local
// midnight-plus-offset at or before t. Daily bars always anchor at
// midnight regardless of the configured intraday anchor.
func bucketStart(t time.Time, interval model.Interval, anchor time.Duration) time.Time {
	width := widthFor(interval)
	effectiveAnchor := anchor
	if interval == model.IntervalD1 {
		effectiveAnchor = 0
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	anchorTime := midnight.Add(effectiveAnchor)
	if t.Before(anchorTime) {
		anchorTime = anchorTime.Add(-24 * time.Hour)
	}

	elapsed := t.Sub(anchorTime)
	buckets := int64(elapsed / width)
	return anchorTime.Add(time.Duration(buckets) * width)
}

// OnTick updates every (symbol, interval) bucket configured via Subscribe
// for tick.Symbol. A tick landing in a new bucket closes and emits the
// prior one, then seeds the new bucket with this tick; a tick exactly on a
// boundary belongs to the new bucket, not the old one.
func (a *Aggregator) OnTick(tick model.Tick, intervals []model.Interval) {
	for _, interval := range intervals {
		a.onTickInterval(tick, interval)
	}
}

func (a *Aggregator) onTickInterval(tick model.Tick, interval model.Interval) {
	k := bucketKey{tick.Symbol, interval}
	bStart := bucketStart(tick.Timestamp, interval, a.anchor)

	a.mu.Lock()
	cur, ok := a.buckets[k]
	var completed *model.Bar
	if !ok || !cur.start.Equal(bStart) {
		if ok {
			b := cur.toBar(tick.Symbol, interval, tick.Timestamp)
			completed = &b
		}
		a.buckets[k] = &bucketState{
			start:        bStart,
			open:         tick.LastPrice,
			high:         tick.LastPrice,
			low:          tick.LastPrice,
			close:        tick.LastPrice,
			volume:       tick.Volume,
			turnover:     tick.Turnover,
			openInterest: tick.OpenInterest,
		}
	} else {
		if tick.LastPrice > cur.high {
			cur.high = tick.LastPrice
		}
		if tick.LastPrice < cur.low {
			cur.low = tick.LastPrice
		}
		cur.close = tick.LastPrice
		cur.volume += tick.Volume
		cur.turnover += tick.Turnover
		cur.openInterest = tick.OpenInterest
	}
	handlers := append([]Handler(nil), a.subs[k]...)
	a.mu.Unlock()

	if completed != nil {
		a.emit(*completed, handlers)
	}
}

func (a *Aggregator) emit(b model.Bar, handlers []Handler) {
	for _, h := range handlers {
		h(b)
	}
	if a.bus != nil {
		a.bus.Publish(eventbus.TopicKlineUpdate, b)
	}
}

func (s *bucketState) toBar(symbol string, interval model.Interval, updateTime time.Time) model.Bar {
	return model.Bar{
		Symbol:       symbol,
		Interval:     interval,
		Timestamp:    s.start,
		Open:         s.open,
		High:         s.high,
		Low:          s.low,
		Close:        s.close,
		Volume:       s.volume,
		Turnover:     s.turnover,
		OpenInterest: s.openInterest,
		UpdateTime:   updateTime,
	}
}
