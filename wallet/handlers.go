package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/sentrywallet/sentry/lib/util"
)

// Errors returned to client requests.
var (
	ErrBadrequest = errors.New("bad request")
	ErrNoAccount  = errors.New("undefined account - missing in uri")
	ErrSendFields = errors.New("recipient address and amount are required")
	ErrBadTo      = errors.New("invalid recipient address")
	ErrBadAmount  = errors.New("amount must be a positive number of ether")
)

// balanceDecimals is the number of decimals of the ether balances replied.
const balanceDecimals = 4

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// reply logs the request and writes res with the status given, or 400 when err is set and status is 0.
func (w *Wallet) reply(rw http.ResponseWriter, r *http.Request, status int, res *Response, err error) {
	if err != nil {
		res.Error = err.Error()

		if status == 0 {
			status = http.StatusBadRequest
		}
	} else if status == 0 {
		status = http.StatusOK
	}

	w.log.Infof("httpreq from %v %s %s status:%d err:%v", r.RemoteAddr, r.Method, r.RequestURI, status, err)

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(res)
}

// body marshals v into the string body of a Response.
func body(v interface{}) string {
	tmp, _ := json.Marshal(v)

	return string(tmp)
}

// homeHandler just replies a welcome message to the client.
func (w *Wallet) homeHandler(rw http.ResponseWriter, r *http.Request) {
	w.reply(rw, r, http.StatusOK, &Response{Body: "Hello, this is your SentryWallet service!"}, nil)
}

// networkHandler replies the name of the blockchain served.
func (w *Wallet) networkHandler(rw http.ResponseWriter, r *http.Request) {
	w.reply(rw, r, http.StatusOK, &Response{Body: w.net}, nil)
}

// accountVar reads the account id from the uri.
func accountVar(r *http.Request) (string, error) {
	id, ok := mux.Vars(r)["account"]
	if !ok {
		return "", ErrNoAccount
	}

	return id, nil
}

// accountHandler replies the custodial address of the account.
func (w *Wallet) accountHandler(rw http.ResponseWriter, r *http.Request) {
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

	res.Body = acc.Address
}

// Balance is the body replied by the balance handler.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"` // ether
	Wei     string `json:"wei"`
}

// balanceHandler replies the native balance of the account address.
func (w *Wallet) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		err    error
		status int
		res    Response
	)

	defer func() { w.reply(rw, r, status, &res, err) }()

	id, err := accountVar(r)
	if err != nil {
		return
	}

	acc, err := w.account(id)
	if err != nil {
		return
	}

	bal, err := w.bc.Balance(r.Context(), acc.Address)
	if err != nil {
		w.log.Errorf("[%s] Error getting balance of %s: %v", id, acc.Address, err)
		status = http.StatusBadGateway

		return
	}

	res.Body = body(Balance{Address: acc.Address, Balance: util.FormatEther(bal, balanceDecimals), Wei: bal.String()})
}

// SendReq is the transfer requested to the send handler: recipient address and amount in ether.
type SendReq struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer statuses replied by the send handler.
const (
	TxConfirmed = "confirmed"
	TxPending   = "pending"
)

// sendWait bounds the wait for a transfer confirmation so the reply is written before the server write timeout.
var sendWait = (timeout - 5) * time.Second //nolint:gochecknoglobals // shortened in tests

// SendRes is the body replied by the send handler. Status is pending when the transfer was not mined within
// sendWait; the client then follows it by hash.
type SendRes struct {
	Hash   string `json:"hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Status string `json:"status"`
}

// sendHandler sends a transfer from the account and waits for its confirmation. A transfer not mined within sendWait
// is replied with 202 and the pending status.
func (w *Wallet) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		err    error
		status int
		res    Response
		req    SendReq
	)

	defer func() { w.reply(rw, r, status, &res, err) }()

	id, err := accountVar(r)
	if err != nil {
		return
	}

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.log.Errorf("[%s] Error decoding send request: %v", id, err)
		err = ErrBadrequest

		return
	}

	req.To, req.Amount = strings.TrimSpace(req.To), strings.TrimSpace(req.Amount)

	switch {
	case req.To == "" || req.Amount == "":
		err = ErrSendFields

		return
	case !common.IsHexAddress(req.To) || !strings.HasPrefix(req.To, "0x"):
		err = ErrBadTo

		return
	}

	amount, err := util.ParseEther(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		err = ErrBadAmount

		return
	}

	acc, err := w.account(id)
	if err != nil {
		return
	}

	p, err := w.bc.Send(r.Context(), acc.Key, req.To, amount)
	if err != nil {
		w.log.Errorf("[%s] Error sending %s to %s: %v", id, req.Amount, req.To, err)
		err, status = fmt.Errorf("transaction failed: %w", err), http.StatusBadGateway

		return
	}

	w.log.Infof("[%s] Transfer %s submitted, waiting for confirmation", id, p.Hash)

	sent := SendRes{Hash: p.Hash, From: acc.Address, To: req.To, Amount: req.Amount, Status: TxConfirmed}

	ctx, cancel := context.WithTimeout(r.Context(), sendWait)
	defer cancel()

	err = w.bc.Wait(ctx, p)

	switch {
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		w.log.Warnf("[%s] Transfer %s not mined after %v, replied as pending", id, p.Hash, sendWait)
		err, status, sent.Status = nil, http.StatusAccepted, TxPending
	case err != nil:
		w.log.Errorf("[%s] Transfer %s failed: %v", id, p.Hash, err)
		err, status = fmt.Errorf("transaction failed: %w", err), http.StatusBadGateway

		return
	}

	res.Body = body(sent)
}
