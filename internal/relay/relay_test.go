package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records deliveries and can be told to fail.
type fakeChannel struct {
	mu        sync.Mutex
	kind      Kind
	state     State
	delivered [][]byte
	failWith  error
	closed    bool
}

func newFakeChannel(kind Kind) *fakeChannel {
	return &fakeChannel{kind: kind, state: StateOpen}
}

func (f *fakeChannel) Kind() Kind { return f.kind }

func (f *fakeChannel) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Deliver(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, payload)
	return nil
}

func (f *fakeChannel) Close(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = StateClosed
}

func (f *fakeChannel) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeChannel) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivered))
	for i, p := range f.delivered {
		out[i] = string(p)
	}
	return out
}

func (f *fakeChannel) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistry_RegisterAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry(0)

	seen := make(map[uuid.UUID]bool)
	for range 10 {
		id, err := r.Register(newFakeChannel(KindBidirectional))
		require.NoError(t, err)
		assert.False(t, seen[id], "id %s assigned twice", id)
		seen[id] = true
	}
	assert.Equal(t, 10, r.Len())
}

func TestRegistry_RegisterNilChannel(t *testing.T) {
	r := NewRegistry(0)

	_, err := r.Register(nil)
	assert.ErrorIs(t, err, ErrNilChannel)
}

func TestRegistry_RegisterFull(t *testing.T) {
	r := NewRegistry(2)

	_, err := r.Register(newFakeChannel(KindPush))
	require.NoError(t, err)
	_, err = r.Register(newFakeChannel(KindPush))
	require.NoError(t, err)

	_, err = r.Register(newFakeChannel(KindPush))
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_UnregisterUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry(0)

	assert.NotPanics(t, func() {
		r.Unregister(uuid.New())
	})

	// Double unregister is equally harmless.
	id, err := r.Register(newFakeChannel(KindPush))
	require.NoError(t, err)
	r.Unregister(id)
	r.Unregister(id)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SnapshotExcludesNonOpenChannels(t *testing.T) {
	r := NewRegistry(0)

	open := newFakeChannel(KindBidirectional)
	closed := newFakeChannel(KindPush)
	closed.Close("test")

	_, err := r.Register(open)
	require.NoError(t, err)
	_, err = r.Register(closed)
	require.NoError(t, err)

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Same(t, open, snapshot[0].Channel.(*fakeChannel))
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry(0)

	id, err := r.Register(newFakeChannel(KindPush))
	require.NoError(t, err)

	snapshot := r.Snapshot()
	r.Unregister(id)

	// The snapshot taken before the unregister is unaffected.
	assert.Len(t, snapshot, 1)
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_Counts(t *testing.T) {
	r := NewRegistry(0)

	for range 3 {
		_, err := r.Register(newFakeChannel(KindBidirectional))
		require.NoError(t, err)
	}
	for range 2 {
		_, err := r.Register(newFakeChannel(KindPush))
		require.NoError(t, err)
	}

	counts := r.Counts()
	assert.Equal(t, 3, counts[KindBidirectional])
	assert.Equal(t, 2, counts[KindPush])
}

func TestRegistry_DrainAndClose(t *testing.T) {
	r := NewRegistry(0)

	channels := make([]*fakeChannel, 5)
	for i := range channels {
		channels[i] = newFakeChannel(KindBidirectional)
		_, err := r.Register(channels[i])
		require.NoError(t, err)
	}

	r.DrainAndClose("shutdown")

	assert.Equal(t, 0, r.Len())
	for _, ch := range channels {
		assert.True(t, ch.wasClosed())
	}
}

// Broadcasts racing against connect/disconnect churn must never
// observe a torn registry state.
func TestRegistry_ConcurrentMutationAndSnapshot(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r, clockwork.NewRealClock())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				id, err := r.Register(newFakeChannel(KindPush))
				if err == nil {
					r.Unregister(id)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 500 {
			d.Broadcast([]byte("churn"))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 500 {
			r.Snapshot()
			r.Counts()
		}
	}()

	d.Broadcast([]byte("final"))
	close(stop)
	wg.Wait()
}

func TestDispatcher_DeliversToAllOpenChannels(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r, clockwork.NewRealClock())

	channels := make([]*fakeChannel, 3)
	for i := range channels {
		channels[i] = newFakeChannel(KindBidirectional)
		_, err := r.Register(channels[i])
		require.NoError(t, err)
	}

	delivered := d.Broadcast([]byte("hello"))

	assert.Equal(t, 3, delivered)
	for _, ch := range channels {
		assert.Equal(t, []string{"hello"}, ch.messages(), "each channel gets exactly one delivery")
	}
}

func TestDispatcher_ZeroChannels(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r, clockwork.NewRealClock())

	assert.Equal(t, 0, d.Broadcast([]byte("ping")))
}

func TestDispatcher_FailedChannelIsRemovedOthersStillDeliver(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r, clockwork.NewRealClock())

	a := newFakeChannel(KindBidirectional)
	b := newFakeChannel(KindBidirectional)
	c := newFakeChannel(KindPush)

	_, err := r.Register(a)
	require.NoError(t, err)
	_, err = r.Register(b)
	require.NoError(t, err)
	_, err = r.Register(c)
	require.NoError(t, err)

	b.failNext(errors.New("connection reset"))

	delivered := d.Broadcast([]byte("hello"))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"hello"}, a.messages())
	assert.Empty(t, b.messages())
	assert.Equal(t, []string{"hello"}, c.messages())
	assert.True(t, b.wasClosed())
	assert.Equal(t, 2, r.Len(), "failed channel removed from registry")

	// The next broadcast reaches only the survivors.
	delivered = d.Broadcast([]byte("world"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"hello", "world"}, a.messages())
	assert.Equal(t, []string{"hello", "world"}, c.messages())

	for _, entry := range r.Snapshot() {
		assert.NotSame(t, b, entry.Channel.(*fakeChannel), "failed channel absent from snapshot")
	}
}

func TestDispatcher_FailureNeverSurfacesToCaller(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r, clockwork.NewRealClock())

	ch := newFakeChannel(KindPush)
	ch.failNext(errors.New("broken pipe"))
	_, err := r.Register(ch)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		delivered := d.Broadcast([]byte("hello"))
		assert.Equal(t, 0, delivered)
	})
}
