package kraken

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/internal/orderbook"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/processor"
	"bookflow/reader"
)

var _ reader.Venue = (*Reader)(nil)

// errResync ends a book session after a checksum mismatch when the reader is
// configured to resubscribe.
var errResync = errors.New("resubscribing after checksum mismatch")

// Reader streams Kraken books and trades for one set of instruments and
// forwards the normalized records to the output channels. Every connection
// gets its own processor.Session, closed when the connection ends.
type Reader struct {
	config       *appconfig.Config
	channels     *channel.Channels
	ctx          context.Context
	wg           *sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	log          *logger.Log
	bookSymbols  []models.Instrument
	tradeSymbols []models.Instrument
	localIP      string
	validator    orderbook.Validator

	pingID      atomic.Int64
	bookSession atomic.Pointer[processor.Session]
}

// NewReader creates a reader. localIP, when set, is used as the source
// address of every connection.
func NewReader(cfg *appconfig.Config, ch *channel.Channels, bookSymbols, tradeSymbols []models.Instrument, localIP string) *Reader {
	return &Reader{
		config:       cfg,
		channels:     ch,
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
		bookSymbols:  bookSymbols,
		tradeSymbols: tradeSymbols,
		localIP:      localIP,
		validator:    orderbook.CRC32Validator{Depth: orderbook.DefaultMaxDepth},
	}
}

func (r *Reader) Name() string { return vendor }

func (r *Reader) SubscribeRequest(kind models.ChannelKind, insts []models.Instrument) ([]byte, error) {
	return SubscribeRequest(kind, insts, r.config.Source.Kraken.Book.Depth)
}

// Start launches the enabled book and trade streams. They reconnect until ctx
// is cancelled.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("kraken reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Kraken
	log := r.log.WithComponent("kraken_reader").WithFields(logger.Fields{
		"operation": "start",
		"local_ip":  r.localIP,
	})

	started := 0
	if cfg.Book.Enabled && len(r.bookSymbols) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.StreamBooks(ctx, r.bookSymbols)
		}()
		started++
	}
	if cfg.Trade.Enabled && len(r.tradeSymbols) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.StreamTrades(ctx, r.tradeSymbols)
		}()
		started++
	}

	if started == 0 {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		log.Warn("no kraken streams enabled")
		return fmt.Errorf("no kraken streams enabled")
	}

	log.WithFields(logger.Fields{"streams": started}).Info("kraken reader started successfully")
	return nil
}

// Stop waits for the streams to finish. The context passed to Start must be
// cancelled first.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("kraken_reader").Info("stopping kraken reader")
	r.wg.Wait()
	r.log.WithComponent("kraken_reader").Info("kraken reader stopped")
}

// Books returns copies of the books held by the current book session. It is
// safe to call while the session is applying updates.
func (r *Reader) Books() []orderbook.State {
	session := r.bookSession.Load()
	if session == nil {
		return nil
	}
	depths := session.Depths()
	out := make([]orderbook.State, 0, len(depths))
	for _, d := range depths {
		if st, ok := session.Book(d.Instrument); ok {
			out = append(out, st)
		}
	}
	return out
}

func (r *Reader) StreamBooks(ctx context.Context, insts []models.Instrument) error {
	return r.stream(ctx, models.ChannelBook, insts)
}

func (r *Reader) StreamTrades(ctx context.Context, insts []models.Instrument) error {
	return r.stream(ctx, models.ChannelTrade, insts)
}

func (r *Reader) component(kind models.ChannelKind) string {
	return "kraken_" + string(kind) + "_reader"
}

// stream runs one session per connection until ctx is cancelled. Connection
// attempts are paced by the reconnect interval.
func (r *Reader) stream(ctx context.Context, kind models.ChannelKind, insts []models.Instrument) error {
	log := r.log.WithComponent(r.component(kind)).WithFields(logger.Fields{"instruments": len(insts)})
	limiter := rate.NewLimiter(rate.Every(r.config.Reader.ReconnectInterval), 1)

	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if attempt > 0 {
			metrics.IncrementReconnect(vendor, string(kind))
		}

		err := r.runSession(ctx, kind, insts)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errResync) {
			log.Info("resubscribing for a fresh snapshot")
			continue
		}
		log.WithError(err).Warn("websocket session ended, reconnecting")
	}
}

func (r *Reader) dialer() *websocket.Dialer {
	d := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: r.config.Reader.HandshakeTimeout,
	}
	if r.localIP != "" {
		if ip := net.ParseIP(r.localIP); ip != nil {
			d.NetDialContext = (&net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}).DialContext
		}
	}
	return d
}

// runSession owns one connection: dial, subscribe, then apply frames in
// arrival order until the connection or ctx ends. The session state is
// cleared on every exit path.
func (r *Reader) runSession(ctx context.Context, kind models.ChannelKind, insts []models.Instrument) (err error) {
	log := r.log.WithComponent(r.component(kind))
	started := time.Now()
	defer func() {
		logger.LogPerformanceEntry(log, r.component(kind), "session", time.Since(started), logger.Fields{
			"instruments": len(insts),
			"local_ip":    r.localIP,
			"ended_by":    fmt.Sprint(err),
		})
	}()

	conn, _, err := r.dialer().DialContext(ctx, r.config.Source.Kraken.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	session := processor.NewSession(vendor, kind, r.config.Processor.MaxDepth, r.validator)
	defer session.Close()
	if kind == models.ChannelBook {
		r.bookSession.Store(session)
		defer r.bookSession.CompareAndSwap(session, nil)
	}

	queue := channel.NewFrameQueue()
	defer func() {
		if n := queue.Close(); n > 0 {
			metrics.EmitDropMetricN(r.log, metrics.DropMetricFrame, vendor, "", string(kind), n)
		}
	}()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if wt := r.config.Reader.WriteTimeout; wt > 0 {
			conn.SetWriteDeadline(time.Now().Add(wt))
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	req, err := r.SubscribeRequest(kind, insts)
	if err != nil {
		return err
	}
	if err := write(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.WithFields(logger.Fields{"request": string(req)}).Info("subscribed")

	var wg sync.WaitGroup
	readErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		readErr <- r.readLoop(sessCtx, conn, queue, kind)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.pingLoop(sessCtx, write, cancel, kind)
	}()

	if kind == models.ChannelBook {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.depthLoop(sessCtx, session)
		}()
	}

	// unblocks ReadMessage once the session is over
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	err = r.applyLoop(ctx, sessCtx, session, queue, kind)
	cancel()
	wg.Wait()

	if err == nil {
		select {
		case err = <-readErr:
		default:
		}
	}
	return err
}

func (r *Reader) readLoop(ctx context.Context, conn *websocket.Conn, queue *channel.FrameQueue, kind models.ChannelKind) error {
	log := r.log.WithComponent(r.component(kind))
	warnAt := r.config.Channels.FrameQueueWarn
	stream := vendor + "_" + string(kind)

	for {
		if rt := r.config.Reader.ReadTimeout; rt > 0 {
			conn.SetReadDeadline(time.Now().Add(rt))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		logger.RecordStreamMessage(stream, len(data))

		if !queue.Push(channel.Frame{Data: data, Received: time.Now()}) {
			return nil
		}
		if warnAt > 0 {
			if n := queue.Len(); n >= warnAt && n%warnAt == 0 {
				log.WithFields(logger.Fields{"queued_frames": n}).Warn("frame queue is growing")
			}
		}
	}
}

func (r *Reader) pingLoop(ctx context.Context, write func([]byte) error, cancel context.CancelFunc, kind models.ChannelKind) {
	if r.config.Reader.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.config.Reader.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(pingMessage(r.pingID.Add(1))); err != nil {
				r.log.WithComponent(r.component(kind)).WithError(err).Warn("ping failed")
				cancel()
				return
			}
		}
	}
}

// depthLoop publishes the stored depth of every instrument while the
// session runs.
func (r *Reader) depthLoop(ctx context.Context, session *processor.Session) {
	interval := r.config.Processor.DepthInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, d := range session.Depths() {
				metrics.SetDepth(vendor, d.Instrument.String(), string(models.SideBid), d.Bids)
				metrics.SetDepth(vendor, d.Instrument.String(), string(models.SideAsk), d.Asks)
			}
		}
	}
}

// applyLoop hands queued frames to the session in order. Outputs are sent
// with the parent ctx so records already produced are not lost when only the
// connection ends.
func (r *Reader) applyLoop(ctx, sessCtx context.Context, session *processor.Session, queue *channel.FrameQueue, kind models.ChannelKind) error {
	log := r.log.WithComponent(r.component(kind))

	for {
		frame, err := queue.Pop(sessCtx)
		if err != nil {
			return nil
		}

		msg, err := Decode(frame.Data)
		if err != nil {
			if errors.Is(err, ErrSubscriptionRejected) {
				log.WithError(err).Error("subscription rejected")
			} else {
				log.WithError(err).Warn("failed to decode frame")
			}
			continue
		}

		out, err := session.Handle(msg)
		if out.Book != nil {
			r.channels.SendBook(ctx, *out.Book)
		}
		for _, t := range out.Trades {
			r.channels.SendTrade(ctx, t)
		}
		if err == nil {
			continue
		}

		alerts := processor.Alerts(vendor, err, frame.Received)
		if len(alerts) == 0 {
			log.WithError(err).Warn("failed to handle frame")
			continue
		}
		for _, a := range alerts {
			r.channels.SendAlert(ctx, a)
		}
		if r.config.Reader.ResyncOnChecksumMismatch && errors.Is(err, processor.ErrChecksumMismatch) {
			return errResync
		}
	}
}
