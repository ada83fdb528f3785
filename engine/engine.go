// Package engine holds the live snapshots of the three collections and the
// views derived from them. Every snapshot triggers a synchronous rebuild;
// readers get the last complete result through an atomic pointer.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"taskadmin/config"
	"taskadmin/docstore"
	"taskadmin/logging"
	"taskadmin/metrics"
	"taskadmin/model"
	"taskadmin/report"
)

// Journal records successful writes. *store.DB implements it.
type Journal interface {
	AppendAudit(entityType, entityID, action, oldValue, newValue, actor string) error
	EnqueueOutbox(topic string, payload []byte, msgType, eventID string) error
}

// ViewCache persists the latest views across restarts.
type ViewCache interface {
	Save(ctx context.Context, v *report.Views) error
	Load(ctx context.Context) (*report.Views, error)
}

type Config struct {
	AppConfig *config.Config
	Docs      docstore.Store
	Journal   Journal   // optional
	Cache     ViewCache // optional
	Metrics   *metrics.Metrics
	Log       logrus.FieldLogger
	Clock     func() time.Time
}

type Engine struct {
	cfg      *config.Config
	docs     docstore.Store
	journal  Journal
	cache    ViewCache
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	now      func() time.Time
	loc      *time.Location
	opts     report.Options
	validate *validator.Validate
	Events   *EventBus

	// mu guards the decoded snapshots.
	mu    sync.Mutex
	users []model.User
	tasks []model.Task
	cats  []model.Category
	seen  map[string]bool

	views atomic.Pointer[report.Views]

	// lifeMu guards what Start acquires and Stop releases.
	lifeMu   sync.Mutex
	running  bool
	cancel   context.CancelFunc
	subs     []docstore.Subscription
	handlers []SubscriberID
	cron     *cron.Cron
}

func New(c Config) *Engine {
	log := c.Log
	if log == nil {
		log = logging.Component(nil, "engine")
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &Engine{
		cfg:     c.AppConfig,
		docs:    c.Docs,
		journal: c.Journal,
		cache:   c.Cache,
		metrics: c.Metrics,
		log:     log,
		now:     clock,
		loc:     c.AppConfig.Location(),
		opts: report.Options{
			LeaderboardSize: c.AppConfig.Report.LeaderboardSize,
			OverdueLimit:    c.AppConfig.Report.OverdueLimit,
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		Events:   NewEventBus(),
		seen:     make(map[string]bool),
	}
	empty := report.Build(nil, nil, nil, e.localNow(), e.opts)
	e.views.Store(&empty)
	return e
}

func (e *Engine) localNow() time.Time { return e.now().In(e.loc) }

// Start loads cached views, subscribes to all three collections and starts
// the periodic refresh. On error nothing stays acquired.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.running {
		return errors.New("engine already started")
	}

	e.loadCache(ctx)

	wctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wireEventHandlers()

	names := e.cfg.Collections
	for _, coll := range []string{names.Users, names.Tasks, names.Categories} {
		sub, err := e.docs.Watch(wctx, coll, docstore.Handler{
			OnSnapshot: e.onSnapshot,
			OnError:    e.onWatchError,
		})
		if err != nil {
			e.releaseLocked()
			return err
		}
		e.subs = append(e.subs, sub)
	}

	if sched := e.cfg.Report.RefreshSchedule; sched != "" {
		c := cron.New(cron.WithLocation(e.loc))
		if _, err := c.AddFunc(sched, e.Refresh); err != nil {
			e.releaseLocked()
			return err
		}
		c.Start()
		e.cron = c
	}

	e.log.Infof("started, watching %s, %s, %s", names.Users, names.Tasks, names.Categories)
	return nil
}

// Stop releases every watch and handler Start acquired and drops the
// snapshots. The last computed views stay readable.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if !e.running {
		return
	}
	e.releaseLocked()

	e.mu.Lock()
	e.users, e.tasks, e.cats = nil, nil, nil
	e.seen = make(map[string]bool)
	e.mu.Unlock()
	e.log.Info("stopped")
}

func (e *Engine) releaseLocked() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
		e.cron = nil
	}
	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil
	for _, id := range e.handlers {
		e.Events.Unsubscribe(id)
	}
	e.handlers = nil
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.running = false
}

func (e *Engine) loadCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	v, err := e.cache.Load(cctx)
	if err != nil {
		e.log.Warnf("view cache load: %v", err)
		return
	}
	if v != nil {
		e.views.Store(v)
		e.log.Infof("serving cached views from %s until snapshots arrive", v.Dashboard.GeneratedAt.Format(time.RFC3339))
	}
}

func (e *Engine) onSnapshot(s docstore.Snapshot) {
	e.metrics.ObserveSnapshot(s.Collection, len(s.Docs))

	e.mu.Lock()
	names := e.cfg.Collections
	switch s.Collection {
	case names.Users:
		e.users = model.DecodeUsers(s.Docs, e.loc)
	case names.Tasks:
		e.tasks = model.DecodeTasks(s.Docs, e.loc)
	case names.Categories:
		e.cats = model.DecodeCategories(s.Docs)
	default:
		e.mu.Unlock()
		return
	}
	e.seen[s.Collection] = true
	v := e.recomputeLocked()
	e.mu.Unlock()

	e.publish(v, s.Collection)
}

func (e *Engine) onWatchError(collection string, err error) {
	e.metrics.WatchError(collection)
	e.log.WithField("collection", collection).Warnf("watch: %v", err)
	e.Events.Emit(Event{Type: EventWatchError, Payload: WatchErrorEvent{Collection: collection, Err: err.Error()}})
}

// Refresh rebuilds the views against the current clock. The month, week and
// overdue windows move even when no data does.
func (e *Engine) Refresh() {
	e.mu.Lock()
	v := e.recomputeLocked()
	e.mu.Unlock()
	e.publish(v, "refresh")
}

func (e *Engine) recomputeLocked() *report.Views {
	start := time.Now()
	v := report.Build(e.users, e.tasks, e.cats, e.localNow(), e.opts)
	e.metrics.ObserveRecompute(time.Since(start))
	e.views.Store(&v)
	return &v
}

func (e *Engine) publish(v *report.Views, trigger string) {
	e.Events.Emit(Event{Type: EventViewsUpdated, Payload: ViewsUpdatedEvent{
		Trigger:     trigger,
		GeneratedAt: v.Dashboard.GeneratedAt,
	}})
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.cache.Save(ctx, v); err != nil {
		e.log.Debugf("view cache save: %v", err)
	}
}

// Accessors

func (e *Engine) Views() *report.Views              { return e.views.Load() }
func (e *Engine) Dashboard() report.Dashboard       { return e.views.Load().Dashboard }
func (e *Engine) TaskReport() report.TaskReportView { return e.views.Load().TaskReport }
func (e *Engine) Labels() []report.LabelRow         { return e.views.Load().Labels }
func (e *Engine) AppConfig() *config.Config         { return e.cfg }
func (e *Engine) Location() *time.Location          { return e.loc }

// Ready reports whether every collection has delivered a snapshot.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen) == 3
}

// Users pages the user table. Snapshot slices are replaced, never mutated,
// so they can be read outside the lock.
func (e *Engine) Users(q report.UserQuery) report.UserPage {
	e.mu.Lock()
	users, tasks := e.users, e.tasks
	e.mu.Unlock()
	return report.UserRows(users, tasks, q)
}

func (e *Engine) user(id string) (model.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range e.users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}

func (e *Engine) category(id string) (model.Category, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cats {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}
