package notify

// Metrics is the observation hook surface for the queue. Implementations
// must be safe for concurrent use.
type Metrics interface {
	NotificationsWritten(n int)
	NotificationsDelivered(n int)
	SignalSent()
	DirectAdvance()
	QueueFull()
	QueuePages(used, max int64)
	QueueTruncated()
}

// NopMetrics is used when no metrics hook is provided.
type NopMetrics struct{}

func (NopMetrics) NotificationsWritten(int)   {}
func (NopMetrics) NotificationsDelivered(int) {}
func (NopMetrics) SignalSent()                {}
func (NopMetrics) DirectAdvance()             {}
func (NopMetrics) QueueFull()                 {}
func (NopMetrics) QueuePages(int64, int64)    {}
func (NopMetrics) QueueTruncated()            {}
