package livesearch

// Publisher receives the outcome of queries whose cookie is still current.
// Calls are serialised and arrive in increasing cookie order. Callbacks
// run on coordinator goroutines and must not block for long; they may
// call Submit.
type Publisher interface {
	OnResultsPublished(cookie uint64, rs *ResultSet)
	OnResultsCleared(cookie uint64)
	OnQueryFailed(cookie uint64, err error)
}

// PublisherFuncs adapts plain functions to Publisher. Nil fields are
// ignored.
type PublisherFuncs struct {
	Published func(cookie uint64, rs *ResultSet)
	Cleared   func(cookie uint64)
	Failed    func(cookie uint64, err error)
}

func (p PublisherFuncs) OnResultsPublished(cookie uint64, rs *ResultSet) {
	if p.Published != nil {
		p.Published(cookie, rs)
	}
}

func (p PublisherFuncs) OnResultsCleared(cookie uint64) {
	if p.Cleared != nil {
		p.Cleared(cookie)
	}
}

func (p PublisherFuncs) OnQueryFailed(cookie uint64, err error) {
	if p.Failed != nil {
		p.Failed(cookie, err)
	}
}

// EventKind distinguishes publications.
type EventKind int

const (
	EventResults EventKind = iota
	EventCleared
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventResults:
		return "results"
	case EventCleared:
		return "clear"
	case EventFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one publication delivered through a ChannelPublisher.
type Event struct {
	Kind    EventKind
	Cookie  uint64
	Results *ResultSet
	Err     error
}

// ChannelPublisher delivers publications as Events on a buffered channel.
// When the buffer is full the oldest pending event is dropped: only the
// newest publication matters to a display.
type ChannelPublisher struct {
	ch chan Event
}

// NewChannelPublisher creates a publisher with the given buffer size
// (at least 1).
func NewChannelPublisher(size int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan Event, max(size, 1))}
}

// Events returns the receive side of the channel.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.ch
}

func (p *ChannelPublisher) OnResultsPublished(cookie uint64, rs *ResultSet) {
	p.send(Event{Kind: EventResults, Cookie: cookie, Results: rs})
}

func (p *ChannelPublisher) OnResultsCleared(cookie uint64) {
	p.send(Event{Kind: EventCleared, Cookie: cookie})
}

func (p *ChannelPublisher) OnQueryFailed(cookie uint64, err error) {
	p.send(Event{Kind: EventFailed, Cookie: cookie, Err: err})
}

func (p *ChannelPublisher) send(ev Event) {
	for {
		select {
		case p.ch <- ev:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

// multiPublisher fans publications out to several publishers in order.
type multiPublisher []Publisher

func (m multiPublisher) OnResultsPublished(cookie uint64, rs *ResultSet) {
	for _, p := range m {
		p.OnResultsPublished(cookie, rs)
	}
}

func (m multiPublisher) OnResultsCleared(cookie uint64) {
	for _, p := range m {
		p.OnResultsCleared(cookie)
	}
}

func (m multiPublisher) OnQueryFailed(cookie uint64, err error) {
	for _, p := range m {
		p.OnQueryFailed(cookie, err)
	}
}
