package metrics

import (
	"time"

	"github.com/rs/zerolog"
	statsd "github.com/smira/go-statsd"
)

type StatsdConfig struct {
	Addr     string
	NodeName string
	Prefix   string
	// FlushInterval defaults to the client's own value when zero.
	FlushInterval time.Duration
}

// Statsd ships dispatcher metrics over udp. Every metric is tagged with the node name,
// so several dispatchers can report into one collector.
type Statsd struct {
	client *statsd.Client
}

func NewStatsd(cfg StatsdConfig, logger zerolog.Logger) *Statsd {
	clientLog := logger.With().Str("component", "statsd").Logger()
	opts := []statsd.Option{
		statsd.MetricPrefix(cfg.Prefix),
		statsd.DefaultTags(statsd.StringTag("node", cfg.NodeName)),
		statsd.Logger(&clientLog),
		statsd.ReconnectInterval(time.Minute),
	}
	if cfg.FlushInterval > 0 {
		opts = append(opts, statsd.FlushInterval(cfg.FlushInterval))
	}
	return &Statsd{
		client: statsd.NewClient(cfg.Addr, opts...),
	}
}

func (s *Statsd) Increment(metric string) {
	s.client.Incr(metric, 1)
}

func (s *Statsd) Duration(metric string, duration time.Duration) {
	s.client.PrecisionTiming(metric, duration)
}

func (s *Statsd) Gauge(metric string, value int) {
	s.client.Gauge(metric, int64(value))
}

// Close flushes buffered metrics.
func (s *Statsd) Close() error {
	return s.client.Close()
}
