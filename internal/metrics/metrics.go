// Package metrics exposes the notification queue's counters and gauges as
// Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue implements notify.Metrics over a Prometheus registry.
type Queue struct {
	written        prometheus.Counter
	delivered      prometheus.Counter
	signals        prometheus.Counter
	directAdvances prometheus.Counter
	queueFull      prometheus.Counter
	truncations    prometheus.Counter
	usedPages      prometheus.Gauge
	maxPages       prometheus.Gauge
}

// NewQueue registers the queue collectors with reg.
func NewQueue(reg prometheus.Registerer) *Queue {
	factory := promauto.With(reg)
	return &Queue{
		written: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_notifications_written_total",
			Help: "Notification entries appended to the queue.",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_notifications_delivered_total",
			Help: "Notifications delivered to listeners.",
		}),
		signals: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_wake_signals_total",
			Help: "Inter-worker wake signals sent.",
		}),
		directAdvances: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_direct_advances_total",
			Help: "Listener positions advanced in place without a wake.",
		}),
		queueFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_queue_full_total",
			Help: "Transactions refused because the queue hit its page ceiling.",
		}),
		truncations: factory.NewCounter(prometheus.CounterOpts{
			Name: "notiq_queue_truncations_total",
			Help: "Tail truncations that dropped at least one storage segment.",
		}),
		usedPages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notiq_queue_used_pages",
			Help: "Pages between the queue tail and head.",
		}),
		maxPages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notiq_queue_max_pages",
			Help: "Configured queue page ceiling.",
		}),
	}
}

func (q *Queue) NotificationsWritten(n int)   { q.written.Add(float64(n)) }
func (q *Queue) NotificationsDelivered(n int) { q.delivered.Add(float64(n)) }
func (q *Queue) SignalSent()                  { q.signals.Inc() }
func (q *Queue) DirectAdvance()               { q.directAdvances.Inc() }
func (q *Queue) QueueFull()                   { q.queueFull.Inc() }
func (q *Queue) QueueTruncated()              { q.truncations.Inc() }

func (q *Queue) QueuePages(used, max int64) {
	q.usedPages.Set(float64(used))
	q.maxPages.Set(float64(max))
}
