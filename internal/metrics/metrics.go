package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_cycles_total", Help: "Trading cycles by result"},
		[]string{"result"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_trades_total", Help: "Trade attempts by side and result"},
		[]string{"side", "result"},
	)
	TradeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_trade_duration_seconds",
			Help:    "Time spent executing a trade, including the receipt wait when enabled",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"side"},
	)
	CatalogTokens = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "trader_catalog_tokens", Help: "Candidates returned by the last catalog fetch"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, TradesTotal, TradeDuration, CatalogTokens)
}

func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve blocks serving /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, logger)
}

func serve(ctx context.Context, ln net.Listener, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
