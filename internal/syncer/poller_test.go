package syncer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain"
	"supportchat/internal/service"
	"supportchat/internal/syncer"
)

// fakeAPI is an in-process server stand-in. Messages are appended under a
// lock; FetchMessages honors the after-id cursor like the real endpoint.
type fakeAPI struct {
	mu        sync.Mutex
	messages  []*service.MessageView
	readCalls int
	failWith  error
	signals   syncer.SignalState
}

func (f *fakeAPI) append(role domain.Role, content string) *service.MessageView {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &service.MessageView{
		ID:        int64(len(f.messages) + 1),
		Content:   content,
		Role:      role,
		Status:    domain.StatusSent,
		CreatedAt: time.Now().UTC(),
	}
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeAPI) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeAPI) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func (f *fakeAPI) FetchMessages(ctx context.Context, afterID int64) ([]*service.MessageView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var res []*service.MessageView
	for _, m := range f.messages {
		if m.ID > afterID {
			res = append(res, m)
		}
	}
	return res, nil
}

func (f *fakeAPI) Send(ctx context.Context, content, clientToken string) (*service.MessageView, bool, error) {
	f.mu.Lock()
	if f.failWith != nil {
		f.mu.Unlock()
		return nil, false, f.failWith
	}
	f.mu.Unlock()
	m := f.append(domain.RoleCustomer, content)
	m.ClientToken = clientToken
	return m, false, nil
}

func (f *fakeAPI) Upload(ctx context.Context, filename, mime string, data []byte, clientToken string) (*service.MessageView, bool, error) {
	m := f.append(domain.RoleCustomer, "")
	m.ClientToken = clientToken
	m.Attachment = &domain.Attachment{Name: filename, Mime: mime, Size: int64(len(data))}
	return m, false, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	return nil
}

func (f *fakeAPI) Signals(ctx context.Context) (syncer.SignalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return syncer.SignalState{}, f.failWith
	}
	return f.signals, nil
}

func (f *fakeAPI) SetTyping(ctx context.Context, isTyping bool) error { return nil }

func (f *fakeAPI) Heartbeat(ctx context.Context) error { return nil }

var _ syncer.API = (*fakeAPI)(nil)

func fastOptions() syncer.Options {
	return syncer.Options{
		MessageInterval:  10 * time.Millisecond,
		StatusInterval:   10 * time.Millisecond,
		SignalInterval:   10 * time.Millisecond,
		FailureThreshold: 3,
	}
}

func runPoller(t *testing.T, p *syncer.Poller) (cancel context.CancelFunc, done chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan error, 1)
	// exited stays observable even after a test consumed the done channel
	exited := make(chan struct{})
	go func() {
		done <- p.Run(ctx)
		close(exited)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-exited:
		case <-time.After(time.Second):
			t.Error("poller did not stop")
		}
	})
	return cancel, done
}

func TestPollerInitialLoad(t *testing.T) {
	api := &fakeAPI{}
	api.append(domain.RoleAgent, "welcome")
	api.append(domain.RoleCustomer, "hi")

	p := syncer.New(api, domain.RoleCustomer, fastOptions(), syncer.Events{}, zerolog.Nop())
	runPoller(t, p)

	assert.Eventually(t, func() bool {
		return p.Timeline().LastID() == 2
	}, time.Second, 5*time.Millisecond)
	// opening the view acknowledges the history
	assert.Eventually(t, func() bool { return api.reads() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestPollerPicksUpNewMessages(t *testing.T) {
	api := &fakeAPI{}
	var mu sync.Mutex
	var seen []int64
	ev := syncer.Events{
		OnMessages: func(added []*service.MessageView) {
			mu.Lock()
			defer mu.Unlock()
			for _, m := range added {
				seen = append(seen, m.ID)
			}
		},
	}

	p := syncer.New(api, domain.RoleCustomer, fastOptions(), ev, zerolog.Nop())
	runPoller(t, p)

	// the message must arrive after the initial load, or load's own read
	// acknowledgement would absorb the one asserted below
	require.Eventually(t, func() bool { return api.reads() >= 1 }, time.Second, 5*time.Millisecond)

	api.append(domain.RoleAgent, "hello from support")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == 1
	}, time.Second, 5*time.Millisecond)

	// counterpart message triggers an immediate read acknowledgement
	assert.Eventually(t, func() bool { return api.reads() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestPollerDegradedIndicator(t *testing.T) {
	api := &fakeAPI{}
	var mu sync.Mutex
	var transitions []bool
	ev := syncer.Events{
		OnDegraded: func(d bool) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, d)
		},
	}

	p := syncer.New(api, domain.RoleCustomer, fastOptions(), ev, zerolog.Nop())
	_, done := runPoller(t, p)

	// let the initial load finish before injecting failures
	require.Eventually(t, func() bool { return api.reads() >= 1 }, time.Second, 5*time.Millisecond)

	api.fail(fmt.Errorf("%w: connection refused", domain.ErrTransient))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 1 && transitions[0]
	}, time.Second, 5*time.Millisecond)

	// transient failures never terminate the loop
	select {
	case err := <-done:
		t.Fatalf("poller stopped: %v", err)
	default:
	}

	api.fail(nil)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2 && !transitions[1]
	}, time.Second, 5*time.Millisecond)
}

func TestPollerStopsOnTerminalError(t *testing.T) {
	api := &fakeAPI{}
	p := syncer.New(api, domain.RoleCustomer, fastOptions(), syncer.Events{}, zerolog.Nop())
	_, done := runPoller(t, p)

	require.Eventually(t, func() bool { return api.reads() >= 1 }, time.Second, 5*time.Millisecond)

	api.fail(fmt.Errorf("%w: conversation is archived", domain.ErrNotFound))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("poller kept running after terminal error")
	}
}

func TestPollerSignals(t *testing.T) {
	api := &fakeAPI{}
	api.mu.Lock()
	api.signals = syncer.SignalState{Typing: true, Online: true}
	api.mu.Unlock()

	var mu sync.Mutex
	var last syncer.SignalState
	ev := syncer.Events{
		OnSignals: func(st syncer.SignalState) {
			mu.Lock()
			defer mu.Unlock()
			last = st
		},
	}

	p := syncer.New(api, domain.RoleCustomer, fastOptions(), ev, zerolog.Nop())
	runPoller(t, p)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Typing && last.Online
	}, time.Second, 5*time.Millisecond)
}

func TestSendOptimisticFlow(t *testing.T) {
	api := &fakeAPI{}
	p := syncer.New(api, domain.RoleCustomer, fastOptions(), syncer.Events{}, zerolog.Nop())

	msg, err := p.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)

	snap := p.Timeline().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, syncer.EntryConfirmed, snap[0].Kind)
	assert.Equal(t, msg.ID, snap[0].Message.ID)
}

func TestSendFailureDropsPending(t *testing.T) {
	api := &fakeAPI{}
	api.fail(fmt.Errorf("%w: boom", domain.ErrTransient))
	p := syncer.New(api, domain.RoleCustomer, fastOptions(), syncer.Events{}, zerolog.Nop())

	_, err := p.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Empty(t, p.Timeline().Snapshot())
}

func TestNudgeTriggersEarlyFetch(t *testing.T) {
	api := &fakeAPI{}
	opts := fastOptions()
	// slow regular ticks so only the nudge can explain a fast pickup
	opts.MessageInterval = 10 * time.Second
	opts.StatusInterval = 10 * time.Second
	opts.SignalInterval = 10 * time.Second

	p := syncer.New(api, domain.RoleCustomer, opts, syncer.Events{}, zerolog.Nop())
	runPoller(t, p)

	// wait for the initial load to finish
	require.Eventually(t, func() bool { return api.reads() >= 1 }, time.Second, 5*time.Millisecond)

	api.append(domain.RoleAgent, "pushed")
	p.Nudge()

	assert.Eventually(t, func() bool {
		return p.Timeline().LastID() == 1
	}, time.Second, 5*time.Millisecond)
}
