// Package wallet implements the wallet microservice.
//
// This microservice implements a RESTful API for the SentryWallet clients: custodial account addresses, balances,
// transfers and the nominee of each account, kept both in the profile database and in the inheritance registry.
package wallet

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/sentrywallet/sentry/lib/block"
	"github.com/sentrywallet/sentry/lib/msg"
	"github.com/sentrywallet/sentry/lib/store"
	"github.com/sentrywallet/sentry/lib/store/db"
	"github.com/sentrywallet/sentry/nominee"
	"github.com/tarancss/hd"
)

// Wallet contains the data necessary to deliver the service
type Wallet struct {
	dbtype string
	db     store.DB      // db connection
	net    string        // blockchain name
	bc     block.Client  // blockchain client
	hd     *hd.HdWallet  // HD wallet
	mb     msg.MsgBroker // may be nil
	log    *zap.SugaredLogger

	ctx    context.Context // lives until Stop, runs the nominee saves
	cancel context.CancelFunc

	mu    sync.Mutex
	views map[string]*nominee.Reconciler // by account id

	s    *http.Server  // http server
	ss   *http.Server  // https server
	sc   chan struct{} // http server channel used for graceful shutdowns
	once sync.Once
}

// New returns a pointer to a new Wallet service. mb may be nil, in which case no nominee events are published.
func New(dbtype string, dbConn store.DB, mb msg.MsgBroker, net string, bc block.Client, hdw *hd.HdWallet,
	log *zap.SugaredLogger) *Wallet {
	ctx, cancel := context.WithCancel(context.Background())

	return &Wallet{
		dbtype: dbtype,
		db:     dbConn,
		mb:     mb,
		net:    net,
		bc:     bc,
		hd:     hdw,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		views:  make(map[string]*nominee.Reconciler),
		sc:     make(chan struct{}),
	}
}

// reconciler returns the nominee reconciler of the account, creating it on first use. created is true when it did.
func (w *Wallet) reconciler(acc nominee.Account) (r *nominee.Reconciler, created bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r, ok := w.views[acc.ID]; ok {
		return r, false
	}

	// without a registry contract the nominee is only kept off-chain
	var reg block.Registry
	if w.bc.HasRegistry() {
		reg = w.bc
	}

	opts := []nominee.Option{nominee.WithLogger(w.log)}
	if w.mb != nil {
		opts = append(opts, nominee.WithNotifier(w.mb))
	}

	r = nominee.New(acc, w.db, reg, opts...)
	w.views[acc.ID] = r

	return r, true
}

// Stop shuts down the http servers implementing the RESTful API, cancels the saves still running and closes
// gracefully the connections to message broker, blockchain and database.
func (w *Wallet) Stop() {
	w.once.Do(w.stop)
}

func (w *Wallet) stop() {
	var err error

	w.cancel()

	// shutdown http servers
	if w.s != nil {
		if err = w.s.Shutdown(context.Background()); err != nil {
			w.log.Errorf("Error in http server shutdown:%v", err)
		}
	}

	if w.ss != nil {
		if err = w.ss.Shutdown(context.Background()); err != nil {
			w.log.Errorf("Error in https server shutdown:%v", err)
		}
	}

	close(w.sc) // close server channels to indicate shutdowns have finished

	// close message broker
	if w.mb != nil {
		if err = w.mb.Close(); err != nil {
			w.log.Errorf("Error closing message broker:%v", err)
		}
	}

	w.bc.Close()

	// close database
	if w.db != nil {
		err = db.Close(w.dbtype, w.db)
		w.log.Infof("Disconnecting %v database, err:%v", w.dbtype, err)
	}
}

// ManageEvents starts go routines to consume the nominee events from the message broker: one for the events and one
// for the errors. Both stop when the broker is closed.
func (w *Wallet) ManageEvents() error {
	if w.mb == nil {
		return nil
	}

	mut := new(sync.Mutex)
	mut.Lock()

	eveCh, errCh, err := w.mb.GetEvents(mut)
	if err != nil {
		return err
	}

	// launch event channel reader
	go func() {
		w.log.Info("Start listening to nominee event channel")

		for eve := range eveCh {
			w.log.Infow("Received nominee event", "id", eve.ID, "account", eve.Account, "kind", eve.Kind,
				"share", eve.Share, "reason", eve.Reason)
			mut.Unlock()
		}

		w.log.Info("Stop listening to nominee event channel")
	}()

	// launch error channel reader
	go func() {
		w.log.Info("Start listening to err channel")

		for e := range errCh {
			w.log.Errorf("Received error %v", e)
		}

		w.log.Info("Stop listening to err channel")
	}()

	return nil
}
