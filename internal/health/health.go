package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc проверяет один компонент. nil означает, что компонент жив.
type CheckFunc func() error

type checkResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type response struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]checkResult `json:"checks,omitempty"`
}

// Handler отдаёт health и readiness пробы сервиса. Проверки зависимостей
// регистрируются через Register и выполняются на каждый запрос.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	version string
	started time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checks:  make(map[string]CheckFunc),
		version: version,
		started: time.Now(),
	}
}

// Register добавляет проверку зависимости под указанным именем.
func (h *Handler) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

func (h *Handler) snapshot() map[string]CheckFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	return checks
}

func (h *Handler) run() (map[string]checkResult, bool) {
	results := make(map[string]checkResult)
	healthy := true

	for name, fn := range h.snapshot() {
		start := time.Now()
		err := fn()
		result := checkResult{
			Status:     "up",
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = "down"
			result.Error = err.Error()
			healthy = false
		}
		results[name] = result
	}
	return results, healthy
}

// ServeHTTP отвечает полным отчётом по всем зависимостям.
// Любая упавшая проверка даёт 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	results, healthy := h.run()

	resp := response{
		Status:        "up",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        results,
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "down"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler отвечает коротким ready/not ready без тела отчёта.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, healthy := h.run(); !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler всегда отвечает 200: процесс жив, пока отвечает.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
