package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"supportchat/internal/domain"
	"supportchat/internal/metrics"
	"supportchat/internal/service"
)

// State is the poller's lifecycle state for one conversation view.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSynced
)

// Options tunes the poll loop. Intervals are upper bounds on propagation
// latency, not precision timers.
type Options struct {
	MessageInterval time.Duration // new-message tick
	StatusInterval  time.Duration // status-sync tick
	SignalInterval  time.Duration // typing/presence tick

	// FailureThreshold is how many consecutive failed ticks flip the
	// connectivity-degraded indicator.
	FailureThreshold int
}

func (o *Options) fill() {
	if o.MessageInterval <= 0 {
		o.MessageInterval = 4 * time.Second
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = 4 * time.Second
	}
	if o.SignalInterval <= 0 {
		o.SignalInterval = 2500 * time.Millisecond
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
}

// Events are the UI-facing callbacks. All are optional and are invoked
// from the poll goroutine.
type Events struct {
	OnMessages func(added []*service.MessageView)
	OnStatuses func(changed int)
	OnSignals  func(SignalState)
	OnDegraded func(degraded bool)
	OnState    func(State)
}

// Poller keeps a Timeline in agreement with the server by running three
// independently-scheduled ticks while the conversation view is open.
// Correctness does not depend on tick ordering: server-side writes are
// monotonic and idempotent, fetches are id-ordered, and the merge step
// dedupes by id.
type Poller struct {
	api  API
	role domain.Role
	tl   *Timeline
	opts Options
	ev   Events
	log  zerolog.Logger

	nudge    chan struct{}
	failures int
	degraded bool
}

func New(api API, role domain.Role, opts Options, ev Events, log zerolog.Logger) *Poller {
	opts.fill()
	return &Poller{
		api:   api,
		role:  role,
		tl:    NewTimeline(),
		opts:  opts,
		ev:    ev,
		log:   log,
		nudge: make(chan struct{}, 1),
	}
}

// Timeline exposes the local message list for rendering.
func (p *Poller) Timeline() *Timeline {
	return p.tl
}

// Nudge asks the poller to run a message tick ahead of schedule, e.g. on a
// ws hint. Safe from any goroutine; coalesces while a tick is pending.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Run drives the view from Loading to Synced and polls until ctx is
// cancelled. Cancelling tears the view down; in-flight responses are
// discarded, not applied. Terminal errors (conversation gone, identity
// rejected) are returned; transient ones are absorbed by the tick cycle.
func (p *Poller) Run(ctx context.Context) error {
	p.setState(StateLoading)
	defer p.setState(StateIdle)

	if err := p.load(ctx); err != nil {
		return err
	}
	p.setState(StateSynced)

	msgTick := time.NewTicker(p.opts.MessageInterval)
	defer msgTick.Stop()
	statusTick := time.NewTicker(p.opts.StatusInterval)
	defer statusTick.Stop()
	signalTick := time.NewTicker(p.opts.SignalInterval)
	defer signalTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-msgTick.C:
			if err := p.tick(ctx, "messages", p.messageTick); err != nil {
				return err
			}
		case <-p.nudge:
			if err := p.tick(ctx, "messages", p.messageTick); err != nil {
				return err
			}
		case <-statusTick.C:
			if err := p.tick(ctx, "status", p.statusTick); err != nil {
				return err
			}
		case <-signalTick.C:
			if err := p.tick(ctx, "signals", p.signalTick); err != nil {
				return err
			}
		}
	}
}

// load performs the initial full history fetch and marks the counterpart's
// messages read, mirroring what opening the view does in the UI.
func (p *Poller) load(ctx context.Context) error {
	msgs, err := p.api.FetchMessages(ctx, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	added := p.tl.Merge(msgs)
	if p.ev.OnMessages != nil && len(added) > 0 {
		p.ev.OnMessages(added)
	}
	if err := p.api.MarkRead(ctx); err != nil {
		return fmt.Errorf("initial mark read: %w", err)
	}
	return nil
}

// tick runs one scheduled fetch, classifying failures: transient errors
// skip the tick and count toward the degraded indicator, authorization
// errors and NotFound propagate up untouched.
func (p *Poller) tick(ctx context.Context, kind string, fn func(context.Context) error) error {
	metrics.PollTicks.WithLabelValues(kind).Inc()
	err := fn(ctx)
	if err == nil {
		p.recordSuccess()
		return nil
	}
	if ctx.Err() != nil {
		// View is being torn down; the stale response was discarded.
		return ctx.Err()
	}
	if errors.Is(err, domain.ErrTransient) {
		metrics.PollFailures.WithLabelValues(kind).Inc()
		p.log.Debug().Err(err).Str("tick", kind).Msg("poll tick skipped")
		p.recordFailure()
		return nil
	}
	return err
}

func (p *Poller) recordSuccess() {
	p.failures = 0
	if p.degraded {
		p.degraded = false
		if p.ev.OnDegraded != nil {
			p.ev.OnDegraded(false)
		}
	}
}

func (p *Poller) recordFailure() {
	p.failures++
	if !p.degraded && p.failures >= p.opts.FailureThreshold {
		p.degraded = true
		if p.ev.OnDegraded != nil {
			p.ev.OnDegraded(true)
		}
	}
}

func (p *Poller) messageTick(ctx context.Context) error {
	msgs, err := p.api.FetchMessages(ctx, p.tl.LastID())
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	added := p.tl.Merge(msgs)
	if len(added) == 0 {
		return nil
	}
	if p.ev.OnMessages != nil {
		p.ev.OnMessages(added)
	}
	for _, m := range added {
		if m.Role != p.role {
			// New counterpart messages are visible now; acknowledge
			// immediately instead of waiting for the next view open.
			return p.api.MarkRead(ctx)
		}
	}
	return nil
}

func (p *Poller) statusTick(ctx context.Context) error {
	msgs, err := p.api.FetchMessages(ctx, 0)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if changed := p.tl.ApplyStatuses(msgs); changed > 0 && p.ev.OnStatuses != nil {
		p.ev.OnStatuses(changed)
	}
	return nil
}

func (p *Poller) signalTick(ctx context.Context) error {
	st, err := p.api.Signals(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.ev.OnSignals != nil {
		p.ev.OnSignals(st)
	}
	return nil
}

func (p *Poller) setState(s State) {
	if p.ev.OnState != nil {
		p.ev.OnState(s)
	}
}

// NewClientToken builds an idempotency token with time plus random
// entropy, unique in practice per conversation.
func NewClientToken() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}

// Send is the synchronous user action: optimistic local append, network
// submission, then replace-or-remove. The token guarantees a retried
// submission cannot double-post.
func (p *Poller) Send(ctx context.Context, content string) (*service.MessageView, error) {
	token := NewClientToken()
	p.tl.AppendPending(token, content, false)

	msg, _, err := p.api.Send(ctx, content, token)
	if err != nil {
		p.tl.Drop(token)
		return nil, err
	}
	p.tl.Confirm(token, msg)
	return msg, nil
}

// SendFile follows the same optimistic-then-replace pattern as Send; the
// placeholder carries an uploading flag until the call resolves.
func (p *Poller) SendFile(ctx context.Context, filename, mime string, data []byte) (*service.MessageView, error) {
	token := NewClientToken()
	p.tl.AppendPending(token, filename, true)

	msg, _, err := p.api.Upload(ctx, filename, mime, data, token)
	if err != nil {
		p.tl.Drop(token)
		return nil, err
	}
	p.tl.Confirm(token, msg)
	return msg, nil
}
