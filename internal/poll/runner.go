// Package poll runs the email poller across every configured account.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/logging"
)

var (
	ErrBusy           = errors.New("poll: another run is in progress")
	ErrBackoff        = errors.New("poll: backing off after provider rate limit")
	ErrUnknownAccount = errors.New("poll: no such account")
)

// Account is one mailbox to poll on behalf of a user.
type Account struct {
	UserID   string
	Provider emailpoll.Provider
}

type AccountSource interface {
	Accounts(ctx context.Context) ([]Account, error)
}

type AccountSourceFunc func(ctx context.Context) ([]Account, error)

func (f AccountSourceFunc) Accounts(ctx context.Context) ([]Account, error) { return f(ctx) }

type Options struct {
	// LockPath is a file shared with other engine processes on the same data
	// dir. Empty disables the cross-process lock.
	LockPath    string
	MaxParallel int
	RunTimeout  time.Duration
	// Backoff is how long runs are refused after a provider 429.
	Backoff time.Duration
}

type Deps struct {
	Store     emailpoll.Store
	Accounts  AccountSource
	Publisher events.Publisher
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

type AccountResult struct {
	UserID string `json:"user_id"`
	emailpoll.Result
	Error string `json:"error,omitempty"`
}

type Summary struct {
	Accounts []AccountResult `json:"accounts"`
	Totals   emailpoll.Result `json:"totals"`
}

type Status struct {
	Running      bool     `json:"running"`
	LastRunAt    string   `json:"last_run_at,omitempty"`
	LastOkAt     string   `json:"last_ok_at,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
	BackoffUntil string   `json:"backoff_until,omitempty"`
	LastSummary  *Summary `json:"last_summary,omitempty"`
}

type Runner struct {
	opts     Options
	store    emailpoll.Store
	accounts AccountSource
	pub      events.Publisher
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time

	running      atomic.Bool
	backoffUntil atomic.Int64 // unix nanos, 0 when clear
	status       atomic.Value // Status
}

func NewRunner(opts Options, d Deps) *Runner {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	r := &Runner{
		opts:     opts,
		store:    d.Store,
		accounts: d.Accounts,
		pub:      d.Publisher,
		metrics:  d.Metrics,
		log:      logging.OrNop(d.Logger),
		now:      d.Now,
	}
	r.status.Store(Status{})
	return r
}

func (r *Runner) Status() Status {
	st := r.status.Load().(Status)
	if until := r.backoffUntil.Load(); until > 0 && r.now().UnixNano() < until {
		st.BackoffUntil = time.Unix(0, until).UTC().Format(time.RFC3339)
	}
	return st
}

// RunAll polls every account. Accounts run concurrently up to MaxParallel; one
// account failing does not stop the others. The returned error joins the
// per-account errors and the Summary is valid either way.
func (r *Runner) RunAll(ctx context.Context) (Summary, error) {
	return r.run(ctx, "")
}

// RunUser polls only the accounts belonging to userID.
func (r *Runner) RunUser(ctx context.Context, userID string) (Summary, error) {
	if userID == "" {
		return Summary{}, ErrUnknownAccount
	}
	return r.run(ctx, userID)
}

// Task adapts RunAll for the scheduler. Busy and backoff are not failures.
func (r *Runner) Task(ctx context.Context) error {
	_, err := r.RunAll(ctx)
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrBackoff) {
		r.log.Debug("poll skipped", zap.Error(err))
		return nil
	}
	return err
}

func (r *Runner) run(ctx context.Context, onlyUser string) (Summary, error) {
	if until := r.backoffUntil.Load(); until > 0 {
		if r.now().UnixNano() < until {
			r.metrics.run("backoff")
			return Summary{}, ErrBackoff
		}
		r.backoffUntil.Store(0)
	}

	if !r.running.CompareAndSwap(false, true) {
		r.metrics.run("busy")
		return Summary{}, ErrBusy
	}
	defer r.running.Store(false)

	if r.opts.LockPath != "" {
		lock := flock.New(r.opts.LockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("poll lock: %w", err)
		}
		if !ok {
			r.metrics.run("busy")
			return Summary{}, ErrBusy
		}
		defer func() { _ = lock.Unlock() }()
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
	defer cancel()

	r.markStarted()
	sum, err := r.pollAccounts(ctx, onlyUser)
	r.markFinished(sum, err)
	return sum, err
}

func (r *Runner) pollAccounts(ctx context.Context, onlyUser string) (Summary, error) {
	accts, err := r.accounts.Accounts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list accounts: %w", err)
	}
	if onlyUser != "" {
		var keep []Account
		for _, a := range accts {
			if a.UserID == onlyUser {
				keep = append(keep, a)
			}
		}
		if len(keep) == 0 {
			return Summary{}, fmt.Errorf("%w: %s", ErrUnknownAccount, onlyUser)
		}
		accts = keep
	}

	events.Emit(r.pub, "", events.PollStarted, events.PollData{UserID: onlyUser, Accounts: len(accts)})

	var (
		mu   sync.Mutex
		sum  Summary
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxParallel)
	for _, a := range accts {
		g.Go(func() error {
			res, err := r.pollAccount(gctx, a)
			ar := AccountResult{UserID: a.UserID, Result: res}
			if err != nil {
				ar.Error = err.Error()
			}
			mu.Lock()
			sum.Accounts = append(sum.Accounts, ar)
			if err != nil {
				errs = append(errs, fmt.Errorf("account %s: %w", a.UserID, err))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(sum.Accounts, func(i, j int) bool { return sum.Accounts[i].UserID < sum.Accounts[j].UserID })
	for _, ar := range sum.Accounts {
		sum.Totals.Inserted += ar.Inserted
		sum.Totals.Updated += ar.Updated
		sum.Totals.Skipped += ar.Skipped
		sum.Totals.DetectedCount += ar.DetectedCount
	}
	return sum, errors.Join(errs...)
}

func (r *Runner) pollAccount(ctx context.Context, a Account) (emailpoll.Result, error) {
	log := r.log.With(zap.String("user_id", a.UserID))
	start := time.Now()

	res, err := emailpoll.RunEmailPoller(ctx, emailpoll.Deps{
		UserID:   a.UserID,
		Provider: a.Provider,
		Store:    notifyingStore{Store: r.store, pub: r.pub, metrics: r.metrics},
		Now:      r.now,
		Logger:   log,
	})
	if r.metrics != nil {
		r.metrics.AccountDuration.Observe(time.Since(start).Seconds())
	}
	r.metrics.observe(res)

	if emailpoll.IsRateLimited(err) {
		until := r.now().Add(r.opts.Backoff)
		r.backoffUntil.Store(until.UnixNano())
		if r.metrics != nil {
			r.metrics.RateLimited.Inc()
		}
		log.Warn("provider rate limited; backing off", zap.Time("until", until))
		events.Emit(r.pub, "", events.PollRateLimited, events.PollData{UserID: a.UserID, Error: err.Error()})
		return res, err
	}
	if err != nil {
		log.Error("email poll failed", zap.Error(err))
		return res, err
	}
	log.Info("email poll ok",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("detected", res.DetectedCount),
	)
	return res, nil
}

func (r *Runner) markStarted() {
	st := r.status.Load().(Status)
	st.Running = true
	st.LastRunAt = r.now().UTC().Format(time.RFC3339)
	r.status.Store(st)
}

func (r *Runner) markFinished(sum Summary, err error) {
	st := r.status.Load().(Status)
	st.Running = false
	st.LastSummary = &sum
	pd := events.PollData{
		Accounts:      len(sum.Accounts),
		Inserted:      sum.Totals.Inserted,
		Updated:       sum.Totals.Updated,
		Skipped:       sum.Totals.Skipped,
		DetectedCount: sum.Totals.DetectedCount,
	}
	if err != nil {
		st.LastError = err.Error()
		pd.Error = err.Error()
		r.metrics.run("error")
	} else {
		st.LastError = ""
		st.LastOkAt = r.now().UTC().Format(time.RFC3339)
		r.metrics.run("ok")
	}
	r.status.Store(st)
	events.Emit(r.pub, "", events.PollFinished, pd)
}

// notifyingStore publishes an event for each job status update it forwards.
type notifyingStore struct {
	emailpoll.Store
	pub     events.Publisher
	metrics *Metrics
}

func (s notifyingStore) UpdateJobStatus(ctx context.Context, jobID int64, st domain.Status, occurredAt time.Time) error {
	if err := s.Store.UpdateJobStatus(ctx, jobID, st, occurredAt); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.StatusUpdates.Inc()
	}
	events.Emit(s.pub, "", events.JobStatusChanged, events.JobStatusData{
		JobID:      jobID,
		Status:     string(st),
		OccurredAt: occurredAt.UTC().Format(time.RFC3339),
	})
	return nil
}
