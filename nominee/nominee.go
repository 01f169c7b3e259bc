// Package nominee implements the reconciliation of an account's nominee records: the nominee email kept in the
// off-chain profile store and the beneficiary share kept by the on-chain inheritance registry.
//
// The two records are written one after the other and are not transactionally linked. When the off-chain write
// succeeds and the on-chain one fails, the email stays saved and the view reports the partial save; a new submission
// writes both again.
package nominee

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sentrywallet/sentry/lib/block"
	"github.com/sentrywallet/sentry/lib/block/types"
	"github.com/sentrywallet/sentry/lib/msg"
	"github.com/sentrywallet/sentry/lib/store"
)

// Account identifies the holder: ID keys the off-chain profile, Address keys the registry mapping and Key signs the
// registry transactions.
type Account struct {
	ID      string
	Address string
	Key     []byte
}

// Input is the nominee form.
type Input struct {
	Email   string `json:"email"`
	Address string `json:"address"`
	Share   string `json:"share"`
}

func (in Input) trimmed() Input {
	return Input{
		Email:   strings.TrimSpace(in.Email),
		Address: strings.TrimSpace(in.Address),
		Share:   strings.TrimSpace(in.Share),
	}
}

// Share is the on-chain nominee record.
type Share struct {
	Address string `json:"address"`
	Share   uint8  `json:"share"`
}

// Notifier receives the nominee events of completed save sequences.
type Notifier interface {
	SendEvent(account string, e msg.NomineeEvent) error
}

// Reconciler holds the nominee view of one account and runs its load and save sequences. Only one sequence runs at a
// time.
type Reconciler struct {
	acc    Account
	db     store.DB
	reg    block.Registry // nil: off-chain only
	log    *zap.SugaredLogger
	notify Notifier
	now    func() time.Time

	mu   sync.Mutex
	view View
	busy bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithNotifier sets where nominee events are published.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

// New returns the reconciler of the account. reg may be nil when no registry is configured, in which case only the
// off-chain email is loaded and saved.
func New(acc Account, db store.DB, reg block.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		acc:  acc,
		db:   db,
		reg:  reg,
		log:  zap.NewNop().Sugar(),
		now:  time.Now,
		view: View{Account: acc.ID, Status: Idle},
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// View returns a snapshot of the current view.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.view.clone()
}

// Mount rebuilds the view from both stores. The two reads run concurrently and both complete before the view leaves
// Loading. Whatever could be read is shown even when the other read failed.
func (r *Reconciler) Mount(ctx context.Context) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()

		return ErrInFlight
	}

	r.busy = true
	r.view = View{Account: r.acc.ID, Status: Loading}
	r.mu.Unlock()

	defer r.release()

	var (
		rec    store.NomineeRecord
		share  uint8
		g      errgroup.Group
		offErr error
	)

	g.Go(func() error {
		var err error

		rec, err = r.db.GetNomineeEmail(ctx, r.acc.ID)
		if errors.Is(err, store.ErrDataNotFound) {
			rec, err = store.NomineeRecord{}, nil
		}

		offErr = err

		return err
	})

	if r.reg != nil {
		g.Go(func() error {
			var err error

			share, err = r.reg.Share(ctx, r.acc.Address)

			return err
		})
	}

	err := g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if offErr == nil && rec.NomineeEmail != "" {
		r.view.OffChain = &store.NomineeRecord{AccountID: r.acc.ID, NomineeEmail: rec.NomineeEmail}
		r.view.Input.Email = rec.NomineeEmail
	}

	if share > 0 {
		r.view.OnChain = &Share{Address: r.acc.Address, Share: share}
		r.view.Input.Address = r.acc.Address
		r.view.Input.Share = strconv.Itoa(int(share))
	}

	if err != nil {
		loads.WithLabelValues("error").Inc()
		r.log.Errorf("[%s] Error fetching nominee: %v", r.acc.ID, err)

		lerr := &LoadError{Err: err}
		r.view.Status, r.view.Message = Error, Message(lerr)

		return lerr
	}

	loads.WithLabelValues("ok").Inc()
	r.view.Status = Ready

	return nil
}

// Submit validates the input and, when valid, saves the email off-chain and then the beneficiary share on-chain,
// waiting for its confirmation. The returned error is one of *ValidationError, *OffchainWriteError,
// *OnchainSubmitError, *OnchainRevertError or ErrInFlight.
func (r *Reconciler) Submit(ctx context.Context, in Input) error {
	in, err := r.begin(in)
	if err != nil {
		return err
	}

	return r.save(ctx, in)
}

// SubmitAsync validates the input synchronously and then runs the writes in a goroutine. The returned channel yields
// the result of the save sequence and is closed afterwards.
func (r *Reconciler) SubmitAsync(ctx context.Context, in Input) (<-chan error, error) {
	in, err := r.begin(in)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)

	go func() {
		defer close(done)
		done <- r.save(ctx, in)
	}()

	return done, nil
}

// begin claims the single flight and validates the input. The flight is only kept when the input is valid.
func (r *Reconciler) begin(in Input) (Input, error) {
	in = in.trimmed()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.busy {
		return in, ErrInFlight
	}

	r.view.Input = in
	r.view.Status = Validating
	r.view.Message = ""
	r.view.Partial = false

	if err := Validate(in); err != nil {
		saves.WithLabelValues("validation").Inc()
		r.view.Status, r.view.Message = Error, Message(err)

		return in, err
	}

	r.busy = true
	r.view.Status = SavingOffchain

	return in, nil
}

func (r *Reconciler) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// save runs the writes of a validated input. Must be called after a successful begin.
func (r *Reconciler) save(ctx context.Context, in Input) error {
	defer r.release()

	share, _ := ParseShare(in.Share)

	if err := r.db.SetNomineeEmail(ctx, r.acc.ID, in.Email); err != nil {
		werr := &OffchainWriteError{Err: err}
		saves.WithLabelValues("offchain").Inc()
		r.log.Errorf("[%s] Error saving nominee email: %v", r.acc.ID, err)

		r.mu.Lock()
		r.view.Status, r.view.Message = Error, Message(werr)
		r.mu.Unlock()

		return werr
	}

	// the email is committed: show it whatever happens on-chain
	tentative := &Share{Address: in.Address, Share: share}

	r.mu.Lock()
	r.view.OffChain = &store.NomineeRecord{AccountID: r.acc.ID, NomineeEmail: in.Email}

	if r.reg == nil {
		r.succeed()
		r.mu.Unlock()
		r.publish(msg.SAVED, in, share, "")

		return nil
	}

	r.view.Tentative = tentative
	r.view.Status = SavingOnchain
	r.mu.Unlock()

	p, err := r.reg.SetNominee(ctx, r.acc.Key, in.Address, share)
	if err != nil {
		saves.WithLabelValues("onchain_submit").Inc()

		return r.failOnchain(in, share, &OnchainSubmitError{Err: err}, err.Error())
	}

	r.log.Infof("[%s] Nominee transaction %s submitted, waiting for confirmation", r.acc.ID, p.Hash)

	start := r.now()

	if err = r.reg.Wait(ctx, p); err != nil {
		reason := err.Error()

		var re *types.RevertError
		if errors.As(err, &re) {
			reason = re.Reason
		}

		saves.WithLabelValues("onchain_revert").Inc()

		return r.failOnchain(in, share, &OnchainRevertError{Hash: p.Hash, Reason: reason, Err: err}, reason)
	}

	confirm.Observe(r.now().Sub(start).Seconds())

	r.mu.Lock()
	r.view.OnChain = tentative
	r.view.Tentative = nil
	r.succeed()
	r.mu.Unlock()

	r.publish(msg.SAVED, in, share, "")

	return nil
}

// succeed must be called with the lock held.
func (r *Reconciler) succeed() {
	saves.WithLabelValues("success").Inc()
	r.log.Infof("[%s] Nominee saved", r.acc.ID)

	r.view.Input = Input{}
	r.view.Status = Success
	r.view.Message = MsgSaved
}

// failOnchain drops the tentative share and reports the partial save. The off-chain email is not rolled back.
func (r *Reconciler) failOnchain(in Input, share uint8, err error, reason string) error {
	r.log.Errorf("[%s] Nominee email saved but on-chain update failed: %v", r.acc.ID, err)

	r.mu.Lock()
	r.view.Tentative = nil
	r.view.Partial = true
	r.view.Status, r.view.Message = Error, Message(err)
	r.mu.Unlock()

	r.publish(msg.PARTIAL, in, share, reason)

	return err
}

// publish sends the event of a finished save sequence. Failures are logged only.
func (r *Reconciler) publish(kind string, in Input, share uint8, reason string) {
	if r.notify == nil {
		return
	}

	e := msg.NomineeEvent{
		ID:          uuid.NewString(),
		Account:     r.acc.ID,
		Kind:        kind,
		Email:       in.Email,
		Beneficiary: in.Address,
		Share:       share,
		Reason:      reason,
		TS:          r.now().UTC(),
	}

	if err := r.notify.SendEvent(r.acc.ID, e); err != nil {
		r.log.Warnf("[%s] Cannot publish nominee event %s: %v", r.acc.ID, e.ID, err)
	}
}
