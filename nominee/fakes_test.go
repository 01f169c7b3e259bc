package nominee

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sentrywallet/sentry/lib/block/types"
	"github.com/sentrywallet/sentry/lib/msg"
	"github.com/sentrywallet/sentry/lib/store"
)

// calls records the order of the store and registry calls shared by the fakes.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	c.log = append(c.log, s)
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.log...)
}

// barrier makes the fetches of a mount wait for each other so a sequential mount fails instead of passing.
type barrier struct {
	arrived chan struct{}
	n       int
}

func newBarrier(n int) *barrier {
	return &barrier{arrived: make(chan struct{}, n), n: n}
}

func (b *barrier) wait() error {
	b.arrived <- struct{}{}

	deadline := time.After(2 * time.Second)

	for len(b.arrived) < b.n {
		select {
		case <-deadline:
			return errors.New("fetches did not run concurrently")
		case <-time.After(time.Millisecond):
		}
	}

	return nil
}

type fakeStore struct {
	calls   *calls
	mu      sync.Mutex
	emails  map[string]string
	getErr  error
	setErr  error
	sets    []string
	gets    int
	barrier *barrier
}

func newFakeStore(c *calls) *fakeStore {
	return &fakeStore{calls: c, emails: make(map[string]string)}
}

func (f *fakeStore) GetNomineeEmail(ctx context.Context, id string) (store.NomineeRecord, error) {
	f.calls.add("offchain:get")

	if f.barrier != nil {
		if err := f.barrier.wait(); err != nil {
			return store.NomineeRecord{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++

	if f.getErr != nil {
		return store.NomineeRecord{}, f.getErr
	}

	email, ok := f.emails[id]
	if !ok {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	return store.NomineeRecord{AccountID: id, NomineeEmail: email}, nil
}

func (f *fakeStore) SetNomineeEmail(ctx context.Context, id, email string) error {
	f.calls.add("offchain:set")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, email)

	if f.setErr != nil {
		return f.setErr
	}

	f.emails[id] = email

	return nil
}

func (f *fakeStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sets)
}

type setCall struct {
	Key         []byte
	Beneficiary string
	Share       uint8
}

type fakeRegistry struct {
	calls     *calls
	mu        sync.Mutex
	shares    map[string]uint8
	shareErr  error
	submitErr error
	waitErr   error
	gate      chan struct{} // when set, Wait blocks until it is closed
	sets      []setCall
	waits     int
	barrier   *barrier
}

func newFakeRegistry(c *calls) *fakeRegistry {
	return &fakeRegistry{calls: c, shares: make(map[string]uint8)}
}

func (f *fakeRegistry) Share(ctx context.Context, owner string) (uint8, error) {
	f.calls.add("onchain:share")

	if f.barrier != nil {
		if err := f.barrier.wait(); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shareErr != nil {
		return 0, f.shareErr
	}

	return f.shares[owner], nil
}

func (f *fakeRegistry) SetNominee(ctx context.Context, key []byte, beneficiary string,
	share uint8) (types.Pending, error) {
	f.calls.add("onchain:set")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, setCall{Key: key, Beneficiary: beneficiary, Share: share})

	if f.submitErr != nil {
		return types.Pending{}, f.submitErr
	}

	return types.Pending{Hash: "0xfeed"}, nil
}

func (f *fakeRegistry) Wait(ctx context.Context, p types.Pending) error {
	f.calls.add("onchain:wait")

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++

	return f.waitErr
}

func (f *fakeRegistry) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sets)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []msg.NomineeEvent
	err    error
}

func (f *fakeNotifier) SendEvent(account string, e msg.NomineeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)

	return f.err
}

func (f *fakeNotifier) list() []msg.NomineeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]msg.NomineeEvent(nil), f.events...)
}
