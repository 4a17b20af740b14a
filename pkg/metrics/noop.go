package metrics

type NoopMetricer struct{}

// NoopMetrics discards every measurement.
var NoopMetrics Metricer = NoopMetricer{}

func (n NoopMetricer) RecordInfo(version string) {}

func (n NoopMetricer) RecordUp() {}

func (n NoopMetricer) RecordRequest(op, asset string) (onDone func(kind string)) {
	return func(kind string) {}
}

func (n NoopMetricer) RecordAmount(op, asset string, amount float64) {}

func (n NoopMetricer) RecordDrift(asset string, drift float64) {}
