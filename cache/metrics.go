package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit(RequestKind)        {}
func (NoopMetrics) Miss(RequestKind)       {}
func (NoopMetrics) SourceCall(RequestKind) {}
func (NoopMetrics) StaleWrite(RequestKind) {}
func (NoopMetrics) Evict(EvictReason)      {}
func (NoopMetrics) Flush(int, bool)        {}
func (NoopMetrics) Size(int)               {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
