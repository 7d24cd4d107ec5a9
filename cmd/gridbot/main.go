// Command gridbot runs the spot-market grid-trading bot core: it wires the
// Connection Manager, Order Manager, Order Book and Grid Engine together
// and runs until an OS signal asks it to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/config"
	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/exchange"
	"github.com/gridbot/core/internal/grid"
	"github.com/gridbot/core/internal/orderbook"
	"github.com/gridbot/core/internal/ordermanager"
	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/pkg/logger"
	"github.com/gridbot/core/pkg/secretstore"
	"github.com/gridbot/core/pkg/shutdown"
	"github.com/gridbot/core/pkg/sigchan"
	"github.com/gridbot/core/pkg/statusserver"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.xml> <logging.properties>\n", os.Args[0])
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		// The logger may not be initialized yet if startup failed before
		// logger.Init ran.
		fmt.Fprintf(os.Stderr, "gridbot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, loggingPropsPath string) error {
	logCfg, err := config.LoadLoggingProps(loggingPropsPath)
	if err != nil {
		return fmt.Errorf("loading logging properties: %w", err)
	}
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	_ = config.LoadDotenv(".env")

	sess, gridConfigs, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	secretKey, err := secretstore.ParseKey(os.Getenv("GRIDBOT_SECRET_KEY"))
	if err != nil {
		return fmt.Errorf("parsing secret store key: %w", err)
	}
	secrets, err := config.OpenSecretSource(os.Getenv("GRIDBOT_SECRET_DB"), secretKey)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}
	defer secrets.Close()

	apiKey := secrets.Resolve("GRIDBOT_API_KEY", sess.APIKey)
	secretPEM := secrets.Resolve("GRIDBOT_SECRET_KEY_PEM", sess.SecretKeyPEM)

	currency.Init(currenciesOf(gridConfigs))

	signer, err := exchange.NewTokenSigner(apiKey, []byte(secretPEM))
	if err != nil {
		return fmt.Errorf("constructing token signer: %w", err)
	}

	book := orderbook.New()

	md := exchange.NewMarketDataConn(exchange.MDConfig{
		Host:        sess.Host,
		Path:        sess.WSPath,
		Channel:     "level2",
		Instruments: sess.Instruments,
	}, signer, book)

	ordCfg := exchange.ORDConfig{
		Host:        sess.Host,
		Path:        sess.WSPath,
		Channel:     "user",
		OrdersHTTP:  sess.OrdersHTTP,
		Instruments: sess.Instruments,
	}
	var ordConn ports.OrderConn
	if sess.OrderVariant == "rest" {
		ordConn = exchange.NewRESTOrderConn(ordCfg, signer)
	} else {
		ordConn = exchange.NewWSOrderConn(ordCfg, signer)
	}

	connMgr := exchange.NewManager(md, ordConn, book)
	om := ordermanager.New(ordConn, book)
	connMgr.SetOrderManager(orderUpdateAdapter{om: om})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := connMgr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	if err := om.InitializeBalances(ctx); err != nil {
		logger.Warnf("main: initialize balances failed: %v", err)
	}

	strategy, err := grid.NewStrategy(gridConfigs, om)
	if err != nil {
		return fmt.Errorf("constructing grid strategy: %w", err)
	}
	strategy.LoadExistingOrders()
	if err := strategy.Start(ctx); err != nil {
		return fmt.Errorf("starting grid strategy: %w", err)
	}

	book.SetTickCallback(func() { strategy.CheckFilledOrders(ctx) })

	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if err := connMgr.Disconnect(); err != nil {
			logger.Warnf("main: disconnect failed: %v", err)
		}
	})

	if addr := os.Getenv("GRIDBOT_STATUS_ADDR"); addr != "" {
		statusSrv := statusserver.New(addr, strategy)
		go func() {
			if err := statusSrv.Run(); err != nil {
				logger.Warnf("main: status server stopped: %v", err)
			}
		}()
		shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
			shutdownCtx, cancel := context.WithTimeout(ctx, statusserver.DefaultShutdownTimeout)
			defer cancel()
			if err := statusSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("main: status server shutdown: %v", err)
			}
		})
		logger.Infof("gridbot: status server listening on %s", addr)
	}

	logger.Info("gridbot: started, waiting for signal")
	waitForSignal()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)
	logger.Info("gridbot: stopped")
	return nil
}

// currenciesOf collects the distinct base/quote symbols every grid config
// trades, for currency.Init — which must run exactly once, before any
// currency.Pair is parsed.
func currenciesOf(configs []grid.Config) []string {
	seen := make(map[string]struct{})
	for _, g := range configs {
		base, quote, err := currency.SplitSymbol(g.Instrument)
		if err != nil {
			continue
		}
		seen[base] = struct{}{}
		seen[quote] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// waitForSignal blocks until an OS signal asks the process to stop. The OS
// channel's own delivery is relayed through a sigchan, since callers here
// only ever care that a stop happened, not which signal caused it or what
// value it carried.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop := sigchan.New(1)
	go func() {
		<-sigCh
		stop.Emit()
	}()
	<-stop.C()
}

// orderUpdateAdapter satisfies ports.OrderUpdateHandler by routing the WS
// order connection's snapshot/update callbacks into the Order Manager's
// cache, translating the wire-level string fields to domain types.
type orderUpdateAdapter struct {
	om *ordermanager.Manager
}

func (a orderUpdateAdapter) OnSnapshot(orders []ports.SnapshotOrder) {
	for _, o := range orders {
		cp, err := currency.ParsePair(o.Instrument)
		if err != nil {
			logger.Warnf("main: snapshot order %s has unparseable instrument %q: %v", o.OrderID, o.Instrument, err)
			continue
		}
		status, known := domain.ParseExchangeStatus(o.Status)
		if !known {
			status = domain.StatusNew
		}
		price, _ := decimal.NewFromString(o.Price)
		qty, _ := decimal.NewFromString(o.Qty)
		filled, _ := decimal.NewFromString(o.FilledQty)
		a.om.SyncOrder(o.OrderID, cp, o.Side, price, qty, status, filled)
	}
}

func (a orderUpdateAdapter) OnUpdate(orderID, clientOrderID string, status domain.Status, filledQty string) {
	if clientOrderID != "" && clientOrderID != orderID {
		a.om.Rekey(clientOrderID, orderID)
	}
	filled, _ := decimal.NewFromString(filledQty)
	a.om.UpdateOrder(orderID, status, filled)
}
