package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumer",
			Name:      "attempts_total",
			Help:      "Transfer attempts by outcome.",
		},
		[]string{"result"},
	)

	Retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resumer",
			Name:      "retries_total",
			Help:      "Attempts started again after an interrupted transfer.",
		},
	)

	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resumer",
			Name:      "bytes_written_total",
			Help:      "Bytes appended to destination files.",
		},
	)

	Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumer",
			Name:      "downloads_total",
			Help:      "Downloads by final state.",
		},
		[]string{"state"},
	)
)

// Register registers the resumer metrics into reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Attempts, Retries, BytesWritten, Downloads} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// WriteTextfile dumps everything in g in the node_exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
