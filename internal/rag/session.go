package rag

import (
	"sync"

	"docqa/internal/helper"
)

type Turn struct {
	Question string
	Answer   string
}

// Session is the transcript of one interactive conversation. It is never
// shared between conversations and is dropped when the conversation ends.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []Turn
}

func NewSession() (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id}, nil
}

func (s *Session) Append(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Question: question, Answer: answer})
}

// Turns returns a copy of the transcript in the order it was recorded.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}
