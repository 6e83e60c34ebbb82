package metrics_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"huddle.app/relay/internal/metrics"
)

var _ = Describe("Metrics", func() {
	It("counts dispatch outcomes by status", func() {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)

		m.DispatchFinished("succeeded", "", 2*time.Second)
		m.DispatchFinished("failed", "timeout", 300*time.Second)
		m.DispatchFinished("failed", "timeout", 300*time.Second)

		expected := `
# HELP relay_dispatch_outcomes_total Finished AI dispatches, by terminal status and error kind.
# TYPE relay_dispatch_outcomes_total counter
relay_dispatch_outcomes_total{error_kind="",status="succeeded"} 1
relay_dispatch_outcomes_total{error_kind="timeout",status="failed"} 2
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected), "relay_dispatch_outcomes_total")).To(Succeed())
	})

	It("tracks in-flight dispatches", func() {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)

		inFlight := func(v string) string {
			return `
# HELP relay_dispatch_in_flight AI calls currently running in this process.
# TYPE relay_dispatch_in_flight gauge
relay_dispatch_in_flight ` + v + "\n"
		}

		done := m.DispatchStarted()
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(inFlight("1")), "relay_dispatch_in_flight")).To(Succeed())
		done()
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(inFlight("0")), "relay_dispatch_in_flight")).To(Succeed())
	})

	It("is a no-op on nil", func() {
		var m *metrics.Metrics
		Expect(func() {
			m.MessageIngested("http")
			m.DispatchStarted()()
			m.FanoutDelivered(3)
			m.ConnectionOpened()
		}).NotTo(Panic())
	})
})
