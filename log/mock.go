package log

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// Mock is an in-memory Logger used by tests to assert on emitted lines,
// modeled on the boulder test-mock logger used by web/context_test.go.
type Mock struct {
	mu    sync.Mutex
	lines []string
}

// UseMock returns a fresh Mock logger.
func UseMock() *Mock {
	return &Mock{}
}

func (m *Mock) add(level, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, fmt.Sprintf("%s: %s", level, line))
}

func (m *Mock) Infof(format string, args ...interface{}) { m.add("INFO", fmt.Sprintf(format, args...)) }
func (m *Mock) Errf(format string, args ...interface{})  { m.add("ERR", fmt.Sprintf(format, args...)) }
func (m *Mock) AuditErr(msg string)                      { m.add("ERR", "[AUDIT] "+msg) }
func (m *Mock) AuditErrf(format string, args ...interface{}) {
	m.add("ERR", "[AUDIT] "+fmt.Sprintf(format, args...))
}

func (m *Mock) AuditObject(msg string, obj interface{}) {
	data, err := json.Marshal(obj)
	if err != nil {
		m.add("ERR", fmt.Sprintf("[AUDIT] failed to marshal %q: %s", msg, err))
		return
	}
	m.add("INFO", fmt.Sprintf("[AUDIT] %s JSON=%s", msg, data))
}

// GetAll returns every line logged so far, in order.
func (m *Mock) GetAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// GetAllMatching returns every logged line matching the given regexp.
func (m *Mock) GetAllMatching(reStr string) []string {
	re := regexp.MustCompile(reStr)
	var out []string
	for _, line := range m.GetAll() {
		if re.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// Clear discards all recorded lines.
func (m *Mock) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
}
