package observability

import (
	"io"
	"net/http"
	"sync"
	"time"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	llmRequests   *CounterVec
	llmLatency    *HistogramVec
	llmTokens     *CounterVec
	limiterWait   *HistogramVec
	stageDuration *HistogramVec
	stageTotal    *CounterVec
	quizOutcomes  *CounterVec
	jobOutcomes   *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide metrics set. Safe to call repeatedly.
func Init() *Metrics {
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("docquiz_api_requests_total", "HTTP requests by route and status.", []string{"method", "route", "status"}),
			apiLatency:  NewHistogramVec("docquiz_api_latency_seconds", "HTTP request latency.", []string{"method", "route"}, nil),
			apiInflight: NewGauge("docquiz_api_inflight", "In-flight HTTP requests."),
			llmRequests: NewCounterVec("docquiz_llm_requests_total", "Generation/embedding calls by provider, operation and outcome.", []string{"provider", "operation", "status"}),
			llmLatency: NewHistogramVec("docquiz_llm_latency_seconds", "Generation/embedding call latency.", []string{"provider", "operation"},
				[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60}),
			llmTokens: NewCounterVec("docquiz_llm_estimated_tokens_total", "Token-equivalents charged against the rate limiter.", []string{"provider"}),
			limiterWait: NewHistogramVec("docquiz_rate_limiter_wait_seconds", "Time callers spent blocked in the rate limiter.", []string{"provider"},
				[]float64{0.001, 0.1, 1, 5, 15, 30, 60}),
			stageDuration: NewHistogramVec("docquiz_pipeline_stage_seconds", "Pipeline stage duration.", []string{"stage", "status"},
				[]float64{0.1, 0.5, 1, 5, 15, 60, 300, 900}),
			stageTotal:   NewCounterVec("docquiz_pipeline_stage_total", "Pipeline stage outcomes.", []string{"stage", "status"}),
			quizOutcomes: NewCounterVec("docquiz_quiz_generation_total", "Quiz generation results by source.", []string{"source"}),
			jobOutcomes:  NewCounterVec("docquiz_processing_jobs_total", "Processing job terminal states.", []string{"status"}),
		}
	})
	return instance
}

// Current returns nil until Init has run; every method tolerates a nil receiver.
func Current() *Metrics {
	return instance
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(provider, operation, status string, dur time.Duration, estimatedTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(provider, operation, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), provider, operation)
	}
	if estimatedTokens > 0 {
		m.llmTokens.Add(float64(estimatedTokens), provider)
	}
}

func (m *Metrics) ObserveLimiterWait(provider string, wait time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.Observe(wait.Seconds(), provider)
}

func (m *Metrics) ObservePipelineStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.Inc(stage, status)
	m.stageDuration.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) IncQuizOutcome(source string) {
	if m != nil {
		m.quizOutcomes.Inc(source)
	}
}

func (m *Metrics) IncJobOutcome(status string) {
	if m != nil {
		m.jobOutcomes.Inc(status)
	}
}

func (m *Metrics) QuizOutcomeCount(source string) float64 {
	if m == nil {
		return 0
	}
	return m.quizOutcomes.Value(source)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	type writer interface{ WritePrometheus(io.Writer) error }
	for _, c := range []writer{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens, m.limiterWait,
		m.stageDuration, m.stageTotal, m.quizOutcomes, m.jobOutcomes,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}
