// Package job runs one reconciliation cycle: load the latest stored price of
// every product, fetch fresh prices, notify on change and persist the changes
// in a single batch.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/database"
	"pricewatch/internal/detector"
	"pricewatch/internal/misc"
	"pricewatch/internal/model"
	"pricewatch/internal/notifier"
)

const DefaultWorkers = 4

var ErrPersist = errors.New("error persisting price records")

// Fetcher returns ok=false for anything that cannot be used this cycle.
type Fetcher interface {
	Fetch(ctx context.Context, marketplace string, link string) (model.Snapshot, bool)
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Job struct {
	Store    database.Opener
	Gateway  Fetcher
	Notifier notifier.Channel
	Logger   logger
	// Workers bounds how many products are fetched concurrently.
	Workers int
	Now     func() time.Time
}

// Report summarises one cycle. It is returned even when the cycle fails.
type Report struct {
	CycleID      string    `json:"cycle_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Users        int       `json:"users"`
	Products     int       `json:"products"`
	Skipped      int       `json:"skipped"`
	Unchanged    int       `json:"unchanged"`
	Changed      int       `json:"changed"`
	Notified     int       `json:"notified"`
	NotifyFailed int       `json:"notify_failed"`
	Persisted    int       `json:"persisted"`
}

type task struct {
	user    *model.User
	product *model.Product
}

type outcome struct {
	fetched  bool
	changed  bool
	record   model.PriceRecord
	notified bool
}

func (j *Job) Run(ctx context.Context) (rep Report, err error) {
	rep = Report{CycleID: uuid.NewString(), StartedAt: j.now()}
	defer func() {
		rep.FinishedAt = j.now()
	}()
	j.Logger.Infof("[%s] Run: Cycle started", rep.CycleID)

	sess, err := j.Store.Open(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "error opening store session")
	}
	defer func() {
		if cErr := sess.Close(context.WithoutCancel(ctx)); cErr != nil {
			j.Logger.Warnf("[%s] Run: Error closing store session, err: %v", rep.CycleID, cErr)
		}
	}()

	users, err := sess.LatestPrices(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "error loading latest prices")
	}
	rep.Users = len(users)

	var tasks []task
	for i := range users {
		for k := range users[i].Products {
			tasks = append(tasks, task{user: &users[i], product: &users[i].Products[k]})
		}
	}
	rep.Products = len(tasks)

	outcomes := make([]outcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(misc.Max(j.Workers, 1))
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			outcomes[i] = j.process(ctx, rep.CycleID, tasks[i])
			return nil
		})
	}
	_ = g.Wait()

	changes := make([]model.PriceRecord, 0)
	for _, o := range outcomes {
		switch {
		case !o.fetched:
			rep.Skipped++
		case !o.changed:
			rep.Unchanged++
		default:
			rep.Changed++
			changes = append(changes, o.record)
			if o.notified {
				rep.Notified++
			} else {
				rep.NotifyFailed++
			}
		}
	}

	if err = ctx.Err(); err != nil {
		j.Logger.Warnf("[%s] Run: Cycle cancelled, discarding %d change(s), err: %v", rep.CycleID, len(changes), err)
		return rep, err
	}

	if len(changes) > 0 {
		if pErr := sess.AppendPrices(ctx, changes); pErr != nil {
			j.Logger.Errorf("[%s] Run: Error persisting %d change(s), err: %v", rep.CycleID, len(changes), pErr)
			return rep, errors.Wrapf(ErrPersist, "cycle %s, %d record(s), err: %v", rep.CycleID, len(changes), pErr)
		}
		rep.Persisted = len(changes)
	}

	j.Logger.Infof("[%s] Run: Cycle finished, products: %d, skipped: %d, changed: %d, notified: %d, notify failed: %d",
		rep.CycleID, rep.Products, rep.Skipped, rep.Changed, rep.Notified, rep.NotifyFailed)
	return rep, nil
}

// process handles one product. Each product is owned by exactly one worker,
// so its in-memory history can be appended to without locking.
func (j *Job) process(ctx context.Context, cycleID string, t task) outcome {
	p := t.product
	snap, ok := j.Gateway.Fetch(ctx, p.Marketplace, p.Link)
	if !ok || !snap.OK() {
		j.Logger.Debugf("[%s] process: Skipping product: %s, marketplace: %s, link: %s", cycleID, p.ID, p.Marketplace, p.Link)
		return outcome{}
	}

	res := detector.DetectFor(*p, snap, j.now())
	if !res.Changed {
		j.Logger.Debugf("[%s] process: Price unchanged for product: %s", cycleID, p.ID)
		return outcome{fetched: true}
	}

	p.Prices = append(p.Prices, res.Record)
	j.Logger.Infof("[%s] process: Price changed for product: %s, title: %s, base: %v, discounted: %v",
		cycleID, p.ID, misc.StringLimit(res.Notification.Title, 45), res.Record.BasePrice, res.Record.DiscountedPrice)

	o := outcome{fetched: true, changed: true, record: res.Record}
	if err := j.Notifier.Send(ctx, t.user.Recipient, notifier.FormatPriceChange(res.Notification)); err != nil {
		j.Logger.Warnf("[%s] process: Error notifying user: %s about product: %s, err: %v", cycleID, t.user.ID, p.ID, err)
		return o
	}
	o.notified = true
	return o
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}
