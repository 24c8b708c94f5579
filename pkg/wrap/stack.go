package wrap

// StackConfig tunes the standard wrapper stack built by Stack.
type StackConfig struct {
	Component string
	CacheSize int
	Retry     RetryConfig
}

// DefaultStackConfig matches the component defaults used elsewhere.
func DefaultStackConfig(component string) StackConfig {
	return StackConfig{Component: component, CacheSize: DefaultCacheSize, Retry: DefaultRetryConfig()}
}

// Stack composes the prescribed wrapper order around base: Tracing
// (outermost) -> Validation -> Retry -> Metered -> Cache (innermost,
// next to base). The order is fixed so that validation failures never
// reach the retry layer and tracing observes the latency of every inner
// behavior, cache included.
func Stack(base Storage, cfg StackConfig) (Storage, error) {
	cached, err := Cached(base, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	metered := MeteredStore(cached, cfg.Component)
	retried := Retried(metered, cfg.Retry)
	validated := Validated(retried)
	traced := Traced(validated, cfg.Component)
	return traced, nil
}

// StackIndex composes the Index-contract stack: Tracing -> Metered,
// around base.
func StackIndex(base Index, component string) Index {
	metered := Metered(base, component)
	return TracedIdx(metered, component)
}
