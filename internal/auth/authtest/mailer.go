// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/trailhead/trailhead/internal/auth"
)

// Message is an email captured by RecordingMailer.
type Message struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer is an EmailSender that keeps every message in memory.
// If Err is set, Send returns it without recording.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

// Send records the message.
func (m *RecordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Last returns the most recent message and whether there was one.
func (m *RecordingMailer) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// Compile-time interface check.
var _ auth.EmailSender = (*RecordingMailer)(nil)
