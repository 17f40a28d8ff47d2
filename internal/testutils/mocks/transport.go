package mocks

import (
	"context"
	"sync"
	"time"

	"campaign-mailer/internal/mail"
)

type TransportMock struct {
	mu          sync.Mutex
	failFor     map[string]error
	failAll     error
	latency     time.Duration
	calls       []mail.Envelope
	inFlight    int
	maxInFlight int
}

type TransportMockOptions func(*TransportMock)

func FailFor(recipient string, err error) TransportMockOptions {
	return func(m *TransportMock) {
		m.failFor[recipient] = err
	}
}

func FailAll(err error) TransportMockOptions {
	return func(m *TransportMock) {
		m.failAll = err
	}
}

func Latency(latency time.Duration) TransportMockOptions {
	return func(m *TransportMock) {
		m.latency = latency
	}
}

func NewTransportMock(opts ...TransportMockOptions) *TransportMock {
	m := &TransportMock{failFor: map[string]error{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *TransportMock) Send(_ context.Context, envelope mail.Envelope) (mail.Receipt, error) {
	m.mu.Lock()
	m.calls = append(m.calls, envelope)
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.latency > 0 {
		time.Sleep(m.latency)
	}

	if m.failAll != nil {
		return mail.Receipt{}, m.failAll
	}
	if err, ok := m.failFor[envelope.To]; ok {
		return mail.Receipt{}, err
	}

	return mail.Receipt{MessageID: "<" + envelope.To + ">", Response: "250 OK"}, nil
}

func (m *TransportMock) Calls() []mail.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Envelope(nil), m.calls...)
}

func (m *TransportMock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *TransportMock) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}
