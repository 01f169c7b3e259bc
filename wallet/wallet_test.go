package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sentrywallet/sentry/lib/block"
	"github.com/sentrywallet/sentry/lib/block/demo"
	"github.com/sentrywallet/sentry/lib/block/types"
	"github.com/sentrywallet/sentry/lib/msg"
	"github.com/sentrywallet/sentry/lib/store/db"
	"github.com/sentrywallet/sentry/lib/store/memory"
	"github.com/sentrywallet/sentry/nominee"
	"github.com/tarancss/hd"
)

const (
	seed      = "642ce4e20f09c9f4d285c2b336063eaafbe4cb06dece8134f3a64bdd8f8c0c24df73e1a2e7056359b6db61e179ff45e5ada51d14f07b30becb6d92b961d35df4"
	recipient = "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4"
	nomAddr   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type env struct {
	w     *Wallet
	srv   *httptest.Server
	store *memory.Memory
	chain *demo.Demo
}

func newEnv(t *testing.T, mb msg.MsgBroker) *env {
	t.Helper()

	return newEnvWithChain(t, mb, demo.New())
}

func newEnvWithChain(t *testing.T, mb msg.MsgBroker, chain *demo.Demo) *env {
	t.Helper()

	return newEnvWith(t, mb, chain, chain, zap.NewNop().Sugar())
}

// newEnvWith serves the API with bc as blockchain client; chain is the demo chain behind it.
func newEnvWith(t *testing.T, mb msg.MsgBroker, chain *demo.Demo, bc block.Client, log *zap.SugaredLogger) *env {
	t.Helper()

	b, err := hex.DecodeString(seed)
	require.NoError(t, err)

	hdw, err := hd.Init(b)
	require.NoError(t, err)

	e := &env{store: memory.New(), chain: chain}

	e.w = New(db.MEMORY, e.store, mb, "demo", bc, hdw, log)
	e.srv = httptest.NewServer(e.w.Router())

	t.Cleanup(func() {
		e.srv.Close()
		e.w.Stop()
	})

	return e
}

// makeRequest places a http request on the test server. obj is sent as JSON when not nil. Returns the status code,
// the body and error fields of the received JSON response.
func (e *env) makeRequest(t *testing.T, method, uri string, obj interface{}) (int, string, string) {
	t.Helper()

	var pl io.Reader

	if obj != nil {
		b, err := json.Marshal(obj)
		require.NoError(t, err)

		pl = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+uri, pl)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return resp.StatusCode, "", ""
	}

	assert.Equal(t, "application/json;charset=utf8", resp.Header.Get("Content-Type"))

	var res Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	return resp.StatusCode, res.Body, res.Error
}

func (e *env) view(t *testing.T, uri string) nominee.View {
	t.Helper()

	s, b, errMsg := e.makeRequest(t, http.MethodGet, uri, nil)
	require.Equal(t, http.StatusOK, s, errMsg)

	var v nominee.View
	require.NoError(t, json.Unmarshal([]byte(b), &v))

	return v
}

func TestAPI(t *testing.T) {
	e := newEnv(t, nil)

	alice, err := e.w.account("alice")
	require.NoError(t, err)

	cases := []struct {
		name, method, uri string      // case name, http method to use and uri
		obj               interface{} // object for POST
		status            int         // http status code
		errExp            string      // error expected
		resExp            string      // body expected, not checked when empty
	}{
		{"homePage_1", http.MethodGet, "/", nil, http.StatusOK, "", "Hello, this is your SentryWallet service!"},
		{"homePage_2", http.MethodPost, "/", nil, http.StatusOK, "", "Hello, this is your SentryWallet service!"},
		{"network_0", http.MethodPost, "/network", nil, http.StatusMethodNotAllowed, "", ""},
		{"network_1", http.MethodGet, "/network", nil, http.StatusOK, "", "demo"},
		{"account_0", http.MethodPost, "/account/alice", nil, http.StatusMethodNotAllowed, "", ""},
		{"account_1", http.MethodGet, "/account/alice", nil, http.StatusOK, "", alice.Address},
		{"balance_0", http.MethodGet, "/balance/alice", nil, http.StatusOK, "",
			`{"address":"` + alice.Address + `","balance":"1250.5000","wei":"1250500000000000000000"}`},
		{"send_0", http.MethodGet, "/send/alice", nil, http.StatusMethodNotAllowed, "", ""},
		{"send_1", http.MethodPost, "/send/alice", SendReq{To: recipient}, http.StatusBadRequest, ErrSendFields.Error(), ""},
		{"send_2", http.MethodPost, "/send/alice", SendReq{Amount: "1"}, http.StatusBadRequest, ErrSendFields.Error(), ""},
		{"send_3", http.MethodPost, "/send/alice", SendReq{To: "0x1234", Amount: "1"}, http.StatusBadRequest, ErrBadTo.Error(), ""},
		{"send_4", http.MethodPost, "/send/alice", SendReq{To: recipient, Amount: "-1"}, http.StatusBadRequest, ErrBadAmount.Error(), ""},
		{"send_5", http.MethodPost, "/send/alice", SendReq{To: recipient, Amount: "abc"}, http.StatusBadRequest, ErrBadAmount.Error(), ""},
		{"send_6", http.MethodPost, "/send/alice", SendReq{To: recipient, Amount: "5000"}, http.StatusBadGateway, "transaction failed: " + demo.ErrFunds.Error(), ""},
		{"nominee_0", http.MethodPut, "/nominee/alice", nil, http.StatusMethodNotAllowed, "", ""},
		{"nominee_1", http.MethodPost, "/nominee/alice", nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "0"}, http.StatusBadRequest, nominee.MsgBadShare, ""},
		{"nominee_2", http.MethodPost, "/nominee/alice", nominee.Input{Email: "n@example.com", Share: "10"}, http.StatusBadRequest, nominee.MsgRequired, ""},
	}

	for _, c := range cases {
		s, b, errMsg := e.makeRequest(t, c.method, c.uri, c.obj)

		assert.Equal(t, c.status, s, c.name)
		assert.Equal(t, c.errExp, errMsg, c.name)

		if c.resExp != "" {
			assert.Equal(t, c.resExp, b, c.name)
		}
	}
}

func TestAccounts(t *testing.T) {
	e := newEnv(t, nil)

	a1, err := e.w.account("alice")
	require.NoError(t, err)
	a2, err := e.w.account("alice")
	require.NoError(t, err)
	b, err := e.w.account("bob")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1.Address, b.Address)
	assert.True(t, nominee.ValidAddress(a1.Address))
	assert.Len(t, a1.Key, 32)

	_, err = e.w.account("")
	assert.ErrorIs(t, err, ErrBadAccount)

	assert.Zero(t, walletIndex("alice")&hardened)
	assert.Equal(t, walletIndex("alice"), walletIndex("alice"))
}

func TestSend(t *testing.T) {
	e := newEnv(t, nil)

	s, b, errMsg := e.makeRequest(t, http.MethodPost, "/send/alice", SendReq{To: recipient, Amount: "1.5"})
	require.Equal(t, http.StatusOK, s, errMsg)

	var res SendRes
	require.NoError(t, json.Unmarshal([]byte(b), &res))
	assert.NotEmpty(t, res.Hash)
	assert.Equal(t, recipient, res.To)
	assert.Equal(t, "1.5", res.Amount)
	assert.Equal(t, TxConfirmed, res.Status)

	_, b, _ = e.makeRequest(t, http.MethodGet, "/balance/alice", nil)

	var bal Balance
	require.NoError(t, json.Unmarshal([]byte(b), &bal))
	assert.Equal(t, "1249.0000", bal.Balance)

	got, err := e.chain.Balance(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, "1252000000000000000000", got.String())
}

func TestNomineeSave(t *testing.T) {
	e := newEnv(t, nil)

	v := e.view(t, "/nominee/alice")
	assert.Equal(t, nominee.Ready, v.Status)
	assert.Nil(t, v.OffChain)
	assert.Nil(t, v.OnChain)

	in := nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "40"}

	s, b, errMsg := e.makeRequest(t, http.MethodPost, "/nominee/alice", in)
	require.Equal(t, http.StatusAccepted, s, errMsg)
	require.NoError(t, json.Unmarshal([]byte(b), &v))
	assert.Equal(t, in, v.Input)

	require.Eventually(t, func() bool { return e.view(t, "/nominee/alice").Status == nominee.Success },
		2*time.Second, 10*time.Millisecond)

	v = e.view(t, "/nominee/alice")
	assert.Equal(t, nominee.MsgSaved, v.Message)
	assert.Equal(t, "n@example.com", v.OffChain.NomineeEmail)
	assert.Equal(t, &nominee.Share{Address: nomAddr, Share: 40}, v.OnChain)

	alice, err := e.w.account("alice")
	require.NoError(t, err)

	share, err := e.chain.Share(context.Background(), alice.Address)
	require.NoError(t, err)
	assert.Equal(t, uint8(40), share)

	rec, err := e.store.GetNomineeEmail(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "n@example.com", rec.NomineeEmail)

	// a reload rebuilds the view from both stores
	v = e.view(t, "/nominee/alice?reload=true")
	assert.Equal(t, nominee.Ready, v.Status)
	assert.Equal(t, nominee.Input{Email: "n@example.com", Address: alice.Address, Share: "40"}, v.Input)
}

func TestNomineePartialSave(t *testing.T) {
	e := newEnv(t, nil)
	e.chain.RevertNext("share exceeds 100")

	s, _, errMsg := e.makeRequest(t, http.MethodPost, "/nominee/bob",
		nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "60"})
	require.Equal(t, http.StatusAccepted, s, errMsg)

	require.Eventually(t, func() bool { return e.view(t, "/nominee/bob").Status == nominee.Error },
		2*time.Second, 10*time.Millisecond)

	v := e.view(t, "/nominee/bob")
	assert.True(t, v.Partial)
	assert.Equal(t, "Nominee email saved, but the on-chain transaction reverted: share exceeds 100", v.Message)
	assert.Equal(t, "n@example.com", v.OffChain.NomineeEmail)
	assert.Nil(t, v.OnChain)

	rec, err := e.store.GetNomineeEmail(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "n@example.com", rec.NomineeEmail)
}

// gatedChain holds the confirmation of registry transactions until gate is closed.
type gatedChain struct {
	*demo.Demo
	gate chan struct{}
}

func (g *gatedChain) Wait(ctx context.Context, p types.Pending) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}

	return g.Demo.Wait(ctx, p)
}

func TestNomineeSaveInFlight(t *testing.T) {
	chain := &gatedChain{Demo: demo.New(), gate: make(chan struct{})}
	e := newEnvWith(t, nil, chain.Demo, chain, zap.NewNop().Sugar())

	in := nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "25"}

	s, _, _ := e.makeRequest(t, http.MethodPost, "/nominee/carol", in)
	require.Equal(t, http.StatusAccepted, s)

	require.Eventually(t, func() bool { return e.view(t, "/nominee/carol").Status == nominee.SavingOnchain },
		2*time.Second, 10*time.Millisecond)

	v := e.view(t, "/nominee/carol?reload=true")
	assert.Equal(t, nominee.SavingOnchain, v.Status)
	assert.Equal(t, &nominee.Share{Address: nomAddr, Share: 25}, v.Tentative)

	s, _, errMsg := e.makeRequest(t, http.MethodPost, "/nominee/carol", in)
	assert.Equal(t, http.StatusConflict, s)
	assert.Equal(t, nominee.MsgBusy, errMsg)

	close(chain.gate)

	require.Eventually(t, func() bool { return e.view(t, "/nominee/carol").Status == nominee.Success },
		2*time.Second, 10*time.Millisecond)
}

// fakeBroker keeps the events sent and feeds GetEvents from a channel.
type fakeBroker struct {
	mu     sync.Mutex
	sent   []msg.NomineeEvent
	events chan msg.NomineeEvent
	errs   chan error
	mut    *sync.Mutex
	closed bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{events: make(chan msg.NomineeEvent), errs: make(chan error)}
}

func (f *fakeBroker) Setup(interface{}) error { return nil }

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
		close(f.errs)
	}

	return nil
}

func (f *fakeBroker) SendEvent(account string, e msg.NomineeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)

	return nil
}

func (f *fakeBroker) GetEvents(mut *sync.Mutex) (<-chan msg.NomineeEvent, <-chan error, error) {
	f.mut = mut

	return f.events, f.errs, nil
}

func (f *fakeBroker) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := make([]string, 0, len(f.sent))
	for _, e := range f.sent {
		k = append(k, e.Kind)
	}

	return k
}

func TestSendNotMinedInTime(t *testing.T) {
	wait := sendWait
	sendWait = 50 * time.Millisecond

	t.Cleanup(func() { sendWait = wait })

	chain := &gatedChain{Demo: demo.New(), gate: make(chan struct{})}
	e := newEnvWith(t, nil, chain.Demo, chain, zap.NewNop().Sugar())

	defer close(chain.gate)

	s, b, errMsg := e.makeRequest(t, http.MethodPost, "/send/alice", SendReq{To: recipient, Amount: "2"})
	require.Equal(t, http.StatusAccepted, s, errMsg)
	assert.Empty(t, errMsg)

	var res SendRes
	require.NoError(t, json.Unmarshal([]byte(b), &res))
	assert.Equal(t, TxPending, res.Status)
	assert.NotEmpty(t, res.Hash)
	assert.Equal(t, recipient, res.To)

	// the transfer was submitted even though the reply did not wait for it
	got, err := chain.Balance(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, "1252500000000000000000", got.String())
}

func TestNomineeFirstAccessIsPost(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.SetNomineeEmail(context.Background(), "erin", "saved@example.com"))

	s, _, errMsg := e.makeRequest(t, http.MethodPost, "/nominee/erin",
		nominee.Input{Email: "n@example.com", Address: "0x1234", Share: "10"})
	require.Equal(t, http.StatusBadRequest, s)
	assert.Equal(t, nominee.MsgBadAddress, errMsg)

	v := e.view(t, "/nominee/erin")
	assert.Equal(t, nominee.Error, v.Status)
	require.NotNil(t, v.OffChain)
	assert.Equal(t, "saved@example.com", v.OffChain.NomineeEmail)
	assert.Equal(t, "0x1234", v.Input.Address)
}

func TestNomineeSaveLoadsRecordsFirst(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.SetNomineeEmail(context.Background(), "frank", "saved@example.com"))

	frank, err := e.w.account("frank")
	require.NoError(t, err)

	p, err := e.chain.SetNominee(context.Background(), frank.Key, nomAddr, 30)
	require.NoError(t, err)
	require.NoError(t, e.chain.Wait(context.Background(), p))

	// the registry reverts so the on-chain value loaded before the save is kept
	e.chain.RevertNext("not allowed")

	s, _, errMsg := e.makeRequest(t, http.MethodPost, "/nominee/frank",
		nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "60"})
	require.Equal(t, http.StatusAccepted, s, errMsg)

	require.Eventually(t, func() bool { return e.view(t, "/nominee/frank").Status == nominee.Error },
		2*time.Second, 10*time.Millisecond)

	v := e.view(t, "/nominee/frank")
	assert.True(t, v.Partial)
	assert.Equal(t, &nominee.Share{Address: frank.Address, Share: 30}, v.OnChain)
	assert.Equal(t, "n@example.com", v.OffChain.NomineeEmail)
}

func TestNomineeEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mb := newFakeBroker()
	chain := demo.New()
	e := newEnvWith(t, mb, chain, chain, zap.New(core).Sugar())

	require.NoError(t, e.w.ManageEvents())

	s, _, _ := e.makeRequest(t, http.MethodPost, "/nominee/dave",
		nominee.Input{Email: "n@example.com", Address: nomAddr, Share: "10"})
	require.Equal(t, http.StatusAccepted, s)

	require.Eventually(t, func() bool { return len(mb.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{msg.SAVED}, mb.kinds())

	// the consumer unlocks the mutex once it has handled the event
	mb.events <- msg.NomineeEvent{ID: "e1", Account: "dave", Kind: msg.SAVED}
	mb.mut.Lock()

	assert.Equal(t, 1, logs.FilterMessage("Received nominee event").Len())
}
