package wallet

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sentrywallet/sentry/nominee"
)

// getNomineeHandler replies the nominee view of the account. The records are loaded on first access, or again when
// the query contains reload=true. Load failures are reported in the view, which still holds what could be loaded.
func (w *Wallet) getNomineeHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		err error
		res Response
	)

	defer func() { w.reply(rw, r, 0, &res, err) }()

	id, err := accountVar(r)
	if err != nil {
		return
	}

	acc, err := w.account(id)
	if err != nil {
		return
	}

	rec, created := w.reconciler(acc)

	if created || r.URL.Query().Get("reload") == "true" {
		// a save in flight keeps its view; the client polls until it ends
		if merr := rec.Mount(r.Context()); merr != nil && !errors.Is(merr, nominee.ErrInFlight) {
			w.log.Warnf("[%s] Nominee view loaded with errors: %v", id, merr)
		}
	}

	res.Body = body(rec.View())
}

// saveNomineeHandler validates the nominee form and starts saving it. On first access the records are loaded first,
// as the view handler does. It replies 202 with the view once the save has
// started; the client polls the view until the status is Success or Error. Invalid input is replied with 400 and a
// save already running with 409.
func (w *Wallet) saveNomineeHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		err    error
		status int
		res    Response
		in     nominee.Input
	)

	defer func() { w.reply(rw, r, status, &res, err) }()

	id, err := accountVar(r)
	if err != nil {
		return
	}

	if err = json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.log.Errorf("[%s] Error decoding nominee form: %v", id, err)
		err = ErrBadrequest

		return
	}

	acc, err := w.account(id)
	if err != nil {
		return
	}

	rec, created := w.reconciler(acc)

	// the view is built from both stores before the first save touches it
	if created {
		if merr := rec.Mount(r.Context()); merr != nil && !errors.Is(merr, nominee.ErrInFlight) {
			w.log.Warnf("[%s] Nominee view loaded with errors: %v", id, merr)
		}
	}

	_, err = rec.SubmitAsync(w.ctx, in)

	switch {
	case errors.Is(err, nominee.ErrInFlight):
		status = http.StatusConflict
	case err != nil:
		status = http.StatusBadRequest
	default:
		status = http.StatusAccepted
	}

	if err != nil {
		err = errors.New(nominee.Message(err))
	}

	res.Body = body(rec.View())
}
