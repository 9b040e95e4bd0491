package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunSimpleServerOrDie is a blocking call to serve /metrics at the given
// address. Used by standalone tools that do not carry a service registry.
func RunSimpleServerOrDie(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	svr := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	if err := svr.ListenAndServe(); err != nil {
		panic(err)
	}
}
