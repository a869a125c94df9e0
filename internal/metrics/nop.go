package metrics

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

// NewNop creates a no-op collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordPublish(string)      {}
func (n *NopMetrics) ObserveMatch(float64, int) {}
func (n *NopMetrics) IncrementDelivered()       {}
func (n *NopMetrics) IncrementDeliveryFailure() {}
func (n *NopMetrics) IncrementDropped()         {}
func (n *NopMetrics) AddActiveMailboxes(int)    {}
func (n *NopMetrics) SetSubscriptions(int)      {}
