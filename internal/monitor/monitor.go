// Package monitor implements the event correlation engine between the Bybit
// private feed and the notification sink: session lifecycle, order
// classification, fill aggregation, TP/SL debouncing, and PnL correlation.
package monitor

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/quantrail/sentinel/errs"
	"github.com/quantrail/sentinel/internal/config"
	"github.com/quantrail/sentinel/internal/schema"
	"github.com/quantrail/sentinel/lib/async"
)

// Exchange is the REST surface the engine needs: cache warm-up before the
// first connect and realized-PnL correlation after a flush.
type Exchange interface {
	OpenPositions(ctx context.Context, category string) ([]schema.PositionEvent, error)
	OpenOrders(ctx context.Context, category string) ([]schema.OrderEvent, error)
	ClosedPnl(ctx context.Context, category string, limit int) ([]schema.ClosedPnlRecord, error)
}

// Notifier receives finalized notifications. Implementations must not reach
// back into tracker state; every payload is self-contained.
type Notifier interface {
	Notify(ctx context.Context, n schema.Notification) error
}

// Journal persists aggregated fills. A nil journal disables persistence.
type Journal interface {
	RecordFill(ctx context.Context, fill schema.AggregatedFill) error
}

// Options configures a Monitor.
type Options struct {
	WebsocketURL string
	Category     string
	APIKey       string
	APISecret    string
	Monitor      config.MonitorConfig
	Exchange     Exchange
	Notifier     Notifier
	Journal      Journal
	Logger       *log.Logger
	Pool         *async.Pool
	Clock        func() time.Time
}

// Monitor owns one private-feed session and the tracker state machine.
type Monitor struct {
	cfg       config.MonitorConfig
	wsURL     string
	category  string
	apiKey    string
	apiSecret string

	exchange Exchange
	notifier Notifier
	journal  Journal

	logger  *log.Logger
	pool    *async.Pool
	timers  *keyedTimers
	state   *trackerState
	metrics *monitorMetrics

	now func() time.Time

	connMu sync.Mutex
	conn   *websocket.Conn
}

// New constructs a Monitor. Exchange, Notifier, and Pool are required.
func New(opts Options) (*Monitor, error) {
	if strings.TrimSpace(opts.WebsocketURL) == "" {
		return nil, errs.New("monitor", errs.CodeInvalid, errs.WithMessage("websocket url required"))
	}
	if opts.Exchange == nil {
		return nil, errs.New("monitor", errs.CodeInvalid, errs.WithMessage("exchange client required"))
	}
	if opts.Notifier == nil {
		return nil, errs.New("monitor", errs.CodeInvalid, errs.WithMessage("notifier required"))
	}
	if opts.Pool == nil {
		return nil, errs.New("monitor", errs.CodeInvalid, errs.WithMessage("worker pool required"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	category := strings.TrimSpace(opts.Category)
	if category == "" {
		category = "linear"
	}
	return &Monitor{
		cfg:       opts.Monitor,
		wsURL:     strings.TrimSpace(opts.WebsocketURL),
		category:  category,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		exchange:  opts.Exchange,
		notifier:  opts.Notifier,
		journal:   opts.Journal,
		logger:    logger,
		pool:      opts.Pool,
		timers:    newKeyedTimers(),
		state:     newTrackerState(),
		metrics:   newMonitorMetrics(),
		now:       clock,
	}, nil
}

// publish hands a finalized notification to the sink via the worker pool so
// webhook latency never stalls the consumer path.
func (m *Monitor) publish(n schema.Notification) {
	n.At = m.now()
	if n.Positions == nil {
		m.state.mu.Lock()
		n.Positions = m.state.positionsView()
		m.state.mu.Unlock()
	}
	m.metrics.recordNotification(context.Background(), n.Kind)
	if err := m.pool.Submit(context.Background(), func(ctx context.Context) error {
		return m.notifier.Notify(ctx, n)
	}); err != nil {
		m.logger.Printf("notification %s dropped: %v", n.Kind, err)
	}
}
