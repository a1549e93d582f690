package metrics

import (
	"sync"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/nverba/redwire/pkg/common"
)

const (
	serviceName     = "redwire"
	inMemoryRetain  = 10 * time.Minute
	inMemoryStretch = 10 * time.Second
)

var (
	logger = common.InitLogger().WithName("client-metrics")

	instance      Collector
	collectorOnce sync.Once
)

// Collector records client-side metrics: command counts and latencies,
// error counts, and the number of active connections.
type Collector interface {
	RecordCommandLatency(command string, duration time.Duration)

	IncrementCommandCounter(command string)
	IncrementErrorCounter(command string)

	IncrementActiveConnections()
	DecrementActiveConnections()

	// Data returns the aggregated in-memory intervals for inspection.
	Data() []*gometrics.IntervalMetrics

	Shutdown()
}

// Get returns the process-wide collector, initializing it on first use.
func Get() Collector {
	collectorOnce.Do(func() {
		sink := gometrics.NewInmemSink(inMemoryStretch, inMemoryRetain)
		cfg := gometrics.DefaultConfig(serviceName)
		cfg.EnableHostname = false
		root, err := gometrics.New(cfg, sink)
		if err != nil {
			logger.Error(err, "Failed to initialize metrics, using noop collector")
			instance = noopCollector{}
			return
		}
		instance = &inmemCollector{root: root, sink: sink}
	})
	return instance
}

type inmemCollector struct {
	root *gometrics.Metrics
	sink *gometrics.InmemSink
}

func (c *inmemCollector) RecordCommandLatency(command string, duration time.Duration) {
	c.root.AddSample([]string{"command", "latency_ms"},
		float32(duration.Milliseconds()),
	)
	c.root.AddSampleWithLabels([]string{"command", "latency_ms", "by_command"},
		float32(duration.Milliseconds()),
		[]gometrics.Label{{Name: "command", Value: command}},
	)
}

func (c *inmemCollector) IncrementCommandCounter(command string) {
	c.root.IncrCounterWithLabels([]string{"command", "total"}, 1,
		[]gometrics.Label{{Name: "command", Value: command}})
}

func (c *inmemCollector) IncrementErrorCounter(command string) {
	c.root.IncrCounterWithLabels([]string{"command", "errors"}, 1,
		[]gometrics.Label{{Name: "command", Value: command}})
}

func (c *inmemCollector) IncrementActiveConnections() {
	c.root.IncrCounter([]string{"connections", "opened"}, 1)
}

func (c *inmemCollector) DecrementActiveConnections() {
	c.root.IncrCounter([]string{"connections", "closed"}, 1)
}

func (c *inmemCollector) Data() []*gometrics.IntervalMetrics {
	return c.sink.Data()
}

func (c *inmemCollector) Shutdown() {
	c.root.Shutdown()
}

type noopCollector struct{}

func (noopCollector) RecordCommandLatency(string, time.Duration) {}
func (noopCollector) IncrementCommandCounter(string)            {}
func (noopCollector) IncrementErrorCounter(string)              {}
func (noopCollector) IncrementActiveConnections()               {}
func (noopCollector) DecrementActiveConnections()               {}
func (noopCollector) Data() []*gometrics.IntervalMetrics        { return nil }
func (noopCollector) Shutdown()                                 {}
