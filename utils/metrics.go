package utils

import (
	"fmt"
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики кредитов
	LoanApplications  int64
	RejectedSubmits   int64
	Transitions       map[string]int64
	FailedTransitions int64
	LastLoanOperation time.Time
	SampleFeedsServed int64
	DocumentsUploaded int64

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	ErrorTypes     map[string]int64
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// NewMetrics создает независимый набор метрик (используется в тестах)
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: make(map[string]int64),
		ErrorTypes:  make(map[string]int64),
	}
}

// RecordRequest записывает метрики запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordLoanApplication записывает результат подачи заявки
func (m *Metrics) RecordLoanApplication(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastLoanOperation = time.Now()
	if err != nil {
		m.RejectedSubmits++
		m.recordErrorLocked(err)
		return
	}
	m.LoanApplications++
}

// RecordTransition записывает переход статуса кредита
func (m *Metrics) RecordTransition(action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastLoanOperation = time.Now()
	if err != nil {
		m.FailedTransitions++
		m.recordErrorLocked(err)
		return
	}
	m.Transitions[action]++
}

// RecordSampleFeed учитывает показ демонстрационных данных вместо реальных
func (m *Metrics) RecordSampleFeed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SampleFeedsServed++
}

// RecordDocumentUpload учитывает загруженный документ
func (m *Metrics) RecordDocumentUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DocumentsUploaded++
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(err)
}

// RecordCriticalError записывает метрики критической ошибки
func (m *Metrics) RecordCriticalError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CriticalErrors++
	m.recordErrorLocked(err)
}

// recordErrorLocked вызывается под m.mu
func (m *Metrics) recordErrorLocked(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	// Ключ - тип ошибки, а не текст: в тексте бывают идентификаторы
	errorType := "unknown"
	if err != nil {
		errorType = fmt.Sprintf("%T", err)
	}

	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions := make(map[string]int64, len(m.Transitions))
	for k, v := range m.Transitions {
		transitions[k] = v
	}
	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":      m.TotalRequests,
		"failed_requests":     m.FailedRequests,
		"average_latency":     m.AverageLatency.String(),
		"loan_applications":   m.LoanApplications,
		"rejected_submits":    m.RejectedSubmits,
		"transitions":         transitions,
		"failed_transitions":  m.FailedTransitions,
		"sample_feeds_served": m.SampleFeedsServed,
		"documents_uploaded":  m.DocumentsUploaded,
		"error_count":         m.ErrorCount,
		"critical_errors":     m.CriticalErrors,
		"last_error_time":     m.LastErrorTime,
		"error_types":         errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.LoanApplications = 0
	m.RejectedSubmits = 0
	m.Transitions = make(map[string]int64)
	m.FailedTransitions = 0
	m.SampleFeedsServed = 0
	m.DocumentsUploaded = 0
	m.ErrorCount = 0
	m.CriticalErrors = 0
	m.ErrorTypes = make(map[string]int64)
}
