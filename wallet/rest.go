package wallet

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15

// Router returns the handler of the RESTful API.
func (w *Wallet) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", w.homeHandler)
	r.HandleFunc("/network", w.networkHandler).Methods(http.MethodGet)                // blockchain served
	r.HandleFunc("/account/{account}", w.accountHandler).Methods(http.MethodGet)      // custodial address
	r.HandleFunc("/balance/{account}", w.balanceHandler).Methods(http.MethodGet)      // native balance in ether
	r.HandleFunc("/send/{account}", w.sendHandler).Methods(http.MethodPost)           // send a transfer and wait for it
	r.HandleFunc("/nominee/{account}", w.getNomineeHandler).Methods(http.MethodGet)   // nominee view
	r.HandleFunc("/nominee/{account}", w.saveNomineeHandler).Methods(http.MethodPost) // save the nominee

	return r
}

// Init sets up and starts the http/https server to service the RESTful API for a wallet service. If sslPort, ssCert
// and sslKey are informed, it will start an https (TLS) server on the specified endpoint. It returns once Stop has
// been called.
func (w *Wallet) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	r := w.Router()
	errs := make(chan error, 2) //nolint:gomnd // one per server
	started := 0

	// start http server
	if port != "" {
		w.s = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() { errs <- w.s.ListenAndServe() }()
		started++

		w.log.Infof("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		w.ss = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() { errs <- w.ss.ListenAndServeTLS(sslCert, sslKey) }()
		started++

		w.log.Infof("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-w.sc

	var res []error

	for ; started > 0; started-- {
		if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
			res = append(res, err)
		}
	}

	return fmt.Sprintf("shutdown http servers, errors:%v", res)
}
