package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PixMetrics содержит метрики жизненного цикла согласий и платежей Pix.
type PixMetrics struct {
	// Согласия
	consentsCreated    prometheus.Counter
	consentTransitions *prometheus.CounterVec

	// Платежи
	paymentsCreated  *prometheus.CounterVec
	batchSize        prometheus.Histogram
	batchDuration    prometheus.Histogram
	cancellations    *prometheus.CounterVec
	paymentsInFlight prometheus.Gauge

	// Внешние порты (DICT, расчёт, шлюз согласий)
	externalCalls    *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec

	// Счётчики событий timeline
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewPixMetrics создаёт метрики и регистрирует их в DefaultRegisterer.
func NewPixMetrics() *PixMetrics {
	return NewPixMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPixMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewPixMetricsWithRegisterer(registerer prometheus.Registerer) *PixMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PixMetrics{
		consentsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pix_consents_created_total",
			Help: "Total number of payment consents created",
		}),
		consentTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pix_consent_transitions_total",
			Help: "Total number of consent status transitions by target status",
		}, []string{"status"}),
		paymentsCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pix_payments_created_total",
			Help: "Total number of Pix payments created by resulting status",
		}, []string{"status"}),
		batchSize: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pix_payment_batch_size",
			Help:    "Number of payments per initiation request",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		batchDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pix_payment_batch_duration_seconds",
			Help:    "Duration of payment batch creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cancellations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pix_payment_cancellations_total",
			Help: "Total number of cancelled payments by reason",
		}, []string{"reason"}),
		paymentsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pix_payment_batches_in_flight",
			Help: "Number of payment batches currently being created",
		}),
		externalCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pix_external_calls_total",
			Help: "Total number of external port calls by port and result",
		}, []string{"port", "result"}),
		externalDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pix_external_call_duration_seconds",
			Help:    "Duration of external port calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"port"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pix_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pix_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordConsentCreated увеличивает счётчик созданных согласий.
func (m *PixMetrics) RecordConsentCreated() {
	m.consentsCreated.Inc()
}

// RecordConsentTransition учитывает переход согласия в status.
func (m *PixMetrics) RecordConsentTransition(status string) {
	m.consentTransitions.WithLabelValues(status).Inc()
}

// RecordPaymentCreated учитывает созданный платёж с итоговым статусом.
func (m *PixMetrics) RecordPaymentCreated(status string) {
	m.paymentsCreated.WithLabelValues(status).Inc()
}

// RecordPaymentBatch записывает размер и длительность создания пакета.
func (m *PixMetrics) RecordPaymentBatch(size int, duration time.Duration) {
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(duration.Seconds())
}

// RecordBatchInFlightStarted увеличивает количество создаваемых пакетов.
func (m *PixMetrics) RecordBatchInFlightStarted() {
	m.paymentsInFlight.Inc()
}

// RecordBatchInFlightFinished уменьшает количество создаваемых пакетов.
func (m *PixMetrics) RecordBatchInFlightFinished() {
	m.paymentsInFlight.Dec()
}

// RecordCancellation учитывает отмену платежа.
func (m *PixMetrics) RecordCancellation(reason string) {
	m.cancellations.WithLabelValues(reason).Inc()
}

// RecordExternalCall учитывает вызов внешнего порта.
func (m *PixMetrics) RecordExternalCall(port, result string, duration time.Duration) {
	m.externalCalls.WithLabelValues(port, result).Inc()
	m.externalDuration.WithLabelValues(port).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *PixMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *PixMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
