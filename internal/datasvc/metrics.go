package datasvc

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasvc_operations_total",
			Help: "Total number of data service operations",
		},
		[]string{"backend", "op", "status"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasvc_operation_duration_seconds",
			Help:    "Duration of data service operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datasvc_active_subscriptions",
			Help: "Number of open data service subscriptions",
		},
		[]string{"backend"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasvc_notifications_total",
			Help: "Total number of change notifications delivered to subscribers",
		},
		[]string{"backend"},
	)
)

// RegisterMetrics registers the collectors used by Instrument.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(operationsTotal, operationDuration, activeSubscriptions, notificationsTotal)
}

type instrumented struct {
	next    Service
	backend string
}

// Instrument wraps svc so every operation is counted and timed under the
// given backend label.
func Instrument(svc Service, backend string) Service {
	return &instrumented{next: svc, backend: backend}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(i.backend, op, status).Inc()
	operationDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Subscribe(ctx context.Context, path string, onChange ChangeFunc) (Subscription, error) {
	start := time.Now()
	delivered := notificationsTotal.WithLabelValues(i.backend)
	sub, err := i.next.Subscribe(ctx, path, func(rs RecordSet) {
		delivered.Inc()
		onChange(rs)
	})
	i.observe("subscribe", start, err)
	if err != nil {
		return nil, err
	}

	gauge := activeSubscriptions.WithLabelValues(i.backend)
	gauge.Inc()
	return &countedSubscription{Subscription: sub, gauge: gauge}, nil
}

func (i *instrumented) ReadOnce(ctx context.Context, path string) (RecordSet, error) {
	start := time.Now()
	rs, err := i.next.ReadOnce(ctx, path)
	i.observe("read", start, err)
	return rs, err
}

func (i *instrumented) Write(ctx context.Context, path string, value any) error {
	start := time.Now()
	err := i.next.Write(ctx, path, value)
	i.observe("write", start, err)
	return err
}

func (i *instrumented) Push(ctx context.Context, path string) (string, error) {
	start := time.Now()
	id, err := i.next.Push(ctx, path)
	i.observe("push", start, err)
	return id, err
}

func (i *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.Delete(ctx, path)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}

type countedSubscription struct {
	Subscription
	gauge prometheus.Gauge
	once  sync.Once
}

func (c *countedSubscription) Unsubscribe() {
	c.once.Do(func() {
		c.gauge.Dec()
		c.Subscription.Unsubscribe()
	})
}
