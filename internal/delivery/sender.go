// internal/delivery/sender.go
package delivery

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(recipient, subject, content string) error
}

// MockSender simulates sending with a configurable success rate. A fixed seed
// makes the outcome sequence reproducible in tests.
type MockSender struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	log         *logrus.Entry
}

// NewMockSender creates a mock sender. successRate is clamped to [0, 1].
func NewMockSender(successRate float64, seed int64, log *logrus.Entry) *MockSender {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &MockSender{
		rng:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
		log:         log,
	}
}

// Send simulates a delivery attempt.
func (m *MockSender) Send(recipient, subject, content string) error {
	m.mu.Lock()
	r := m.rng.Float64()
	m.mu.Unlock()

	if r < m.successRate {
		m.log.WithFields(logrus.Fields{"recipient": recipient, "subject": subject}).Debug("mock email delivered")
		return nil
	}
	return fmt.Errorf("mock sending failed")
}
