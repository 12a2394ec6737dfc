package lifecycle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/chain"
	"fiatramp/internal/escrow"
)

// RefreshGuard tracks request identity per read kind so a slow response from
// a superseded request is dropped instead of clobbering fresher data.
// Last-write-wins is only safe when the last writer is also the last issuer.
type RefreshGuard struct {
	mu      sync.Mutex
	current map[string]string
}

// NewRefreshGuard creates an empty guard.
func NewRefreshGuard() *RefreshGuard {
	return &RefreshGuard{current: make(map[string]string)}
}

// Begin marks a new in-flight request for kind, superseding any earlier one.
func (g *RefreshGuard) Begin(kind string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.NewString()
	g.current[kind] = id
	return id
}

// Current reports whether id is still the latest request for kind.
func (g *RefreshGuard) Current(kind, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current[kind] == id
}

const (
	refreshKindDeposits = "deposits"
	refreshKindIntent   = "intent"
)

// Poller keeps the shared deposit/intent snapshots in the store fresh on a
// fixed interval. Reads never mutate shared state; each refresh installs a
// brand new snapshot.
type Poller struct {
	store  *Store
	reader chain.Reader
	guard  *RefreshGuard
	logger *logrus.Logger

	owner      string
	depositIDs func() []*big.Int
	interval   time.Duration
}

// NewPoller creates a read-model poller. depositIDs supplies the watched set
// on every tick so newly created deposits join without restart.
func NewPoller(store *Store, reader chain.Reader, logger *logrus.Logger, owner string, depositIDs func() []*big.Int, interval time.Duration) *Poller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		store:      store,
		reader:     reader,
		guard:      NewRefreshGuard(),
		logger:     logger,
		owner:      owner,
		depositIDs: depositIDs,
		interval:   interval,
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RefreshNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshNow(ctx)
		}
	}
}

// RefreshNow refetches both read models once. Also the trigger-based refresh
// hook handed to the machines as their onSuccess callback.
func (p *Poller) RefreshNow(ctx context.Context) {
	p.refreshDeposits(ctx)
	p.refreshIntent(ctx)
}

func (p *Poller) refreshDeposits(ctx context.Context) {
	ids := p.depositIDs()
	if len(ids) == 0 {
		return
	}

	reqID := p.guard.Begin(refreshKindDeposits)
	raws, err := p.reader.GetDepositViews(ctx, ids)
	if err != nil {
		p.logger.WithField("error", err).Warn("deposit refresh failed")
		return
	}
	if !p.guard.Current(refreshKindDeposits, reqID) {
		return
	}

	views := make([]escrow.DepositView, 0, len(raws))
	for _, raw := range raws {
		view, err := escrow.ParseDepositView(raw)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"depositId": raw.DepositID,
				"error":     err,
			}).Warn("skipping unparseable deposit view")
			continue
		}
		views = append(views, view)
	}
	p.store.Set(KeyDepositViews, views)
}

func (p *Poller) refreshIntent(ctx context.Context) {
	reqID := p.guard.Begin(refreshKindIntent)
	raw, err := p.reader.GetAccountIntent(ctx, p.owner)
	if err != nil {
		p.logger.WithField("error", err).Warn("intent refresh failed")
		return
	}
	if !p.guard.Current(refreshKindIntent, reqID) {
		return
	}

	if raw == nil {
		p.store.Set(KeyAccountIntent, (*escrow.IntentView)(nil))
		return
	}
	view, err := escrow.ParseIntentView(*raw)
	if err != nil {
		p.logger.WithField("error", err).Warn("skipping unparseable intent view")
		return
	}
	p.store.Set(KeyAccountIntent, &view)
}
