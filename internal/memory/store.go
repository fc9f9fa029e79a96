// Package memory holds the conversation log of a single run.
//
// A Store has exactly one writer (the agent loop), so it does no locking.
// Readers get deep copies through Snapshot.
package memory

import (
	"errors"
	"fmt"
	"time"

	"stepwise/internal/llm"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrOrphanToolResult = errors.New("tool result does not match a pending tool call")
	ErrUnansweredCalls  = errors.New("previous tool calls have no result yet")
)

// Store is an ordered, append-only message log with pair-preserving eviction.
type Store struct {
	messages []llm.Message
	pending  map[string]int
	evicted  int
}

func New() *Store {
	return &Store{pending: make(map[string]int)}
}

// Append validates msg and adds it to the end of the log.
func (s *Store) Append(msg llm.Message) error {
	if err := s.check(msg); err != nil {
		return err
	}

	msg = msg.Clone()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch msg.Role {
	case llm.RoleAssistant:
		for _, tc := range msg.ToolCalls {
			s.pending[tc.ID]++
		}
	case llm.RoleTool:
		s.pending[msg.ToolCallID]--
		if s.pending[msg.ToolCallID] == 0 {
			delete(s.pending, msg.ToolCallID)
		}
	}

	s.messages = append(s.messages, msg)
	return nil
}

func (s *Store) check(msg llm.Message) error {
	switch msg.Role {
	case llm.RoleSystem, llm.RoleUser:
		if msg.Content == "" {
			return fmt.Errorf("%w: empty %s message", ErrMalformedMessage, msg.Role)
		}
		if len(s.pending) > 0 {
			return fmt.Errorf("%w: %d outstanding", ErrUnansweredCalls, s.Pending())
		}
	case llm.RoleAssistant:
		if msg.Content == "" && !msg.HasToolCalls() {
			return fmt.Errorf("%w: assistant message has neither content nor tool calls", ErrMalformedMessage)
		}
		if len(s.pending) > 0 {
			return fmt.Errorf("%w: %d outstanding", ErrUnansweredCalls, s.Pending())
		}
		seen := make(map[string]bool, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			if tc == nil || tc.ID == "" || tc.Name() == "" {
				return fmt.Errorf("%w: tool call %d is missing id or name", ErrMalformedMessage, i)
			}
			if seen[tc.ID] {
				return fmt.Errorf("%w: duplicate tool call id %q", ErrMalformedMessage, tc.ID)
			}
			seen[tc.ID] = true
		}
	case llm.RoleTool:
		if msg.ToolCallID == "" {
			return fmt.Errorf("%w: tool result without tool_call_id", ErrMalformedMessage)
		}
		if s.pending[msg.ToolCallID] == 0 {
			return fmt.Errorf("%w: %q", ErrOrphanToolResult, msg.ToolCallID)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, msg.Role)
	}
	return nil
}

// Snapshot returns a deep copy of the log.
func (s *Store) Snapshot() []llm.Message {
	return llm.CloneMessages(s.messages)
}

func (s *Store) Len() int {
	return len(s.messages)
}

// Last returns a copy of the newest message.
func (s *Store) Last() (llm.Message, bool) {
	if len(s.messages) == 0 {
		return llm.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Pending returns the number of tool calls still waiting for a result.
func (s *Store) Pending() int {
	n := 0
	for _, c := range s.pending {
		n += c
	}
	return n
}

// Evicted returns the total number of messages removed by Truncate.
func (s *Store) Evicted() int {
	return s.evicted
}

// Truncate evicts the oldest units until the log holds at most max messages
// and returns how many messages were removed. A unit is either a single
// message or an assistant message together with its tool results. Leading
// system messages and the first user request are never evicted, nor is a
// unit with unanswered calls. max <= 0 disables truncation.
func (s *Store) Truncate(max int) int {
	if max <= 0 || len(s.messages) <= max {
		return 0
	}

	start := s.protectedPrefix()
	units := s.units(start)

	drop := 0
	removed := 0
	for _, u := range units {
		if len(s.messages)-removed <= max {
			break
		}
		if u.open {
			break
		}
		drop = u.end
		removed += u.end - u.start
	}
	if removed == 0 {
		return 0
	}

	kept := make([]llm.Message, 0, len(s.messages)-removed)
	kept = append(kept, s.messages[:start]...)
	kept = append(kept, s.messages[drop:]...)
	s.messages = kept
	s.evicted += removed
	return removed
}

// protectedPrefix returns the index just past the seed user request.
func (s *Store) protectedPrefix() int {
	i := 0
	for i < len(s.messages) && s.messages[i].Role == llm.RoleSystem {
		i++
	}
	if i < len(s.messages) && s.messages[i].Role == llm.RoleUser {
		i++
	}
	return i
}

type unit struct {
	start, end int
	open       bool
}

func (s *Store) units(from int) []unit {
	var out []unit
	for i := from; i < len(s.messages); {
		u := unit{start: i, end: i + 1}
		msg := s.messages[i]
		if msg.Role == llm.RoleAssistant && msg.HasToolCalls() {
			for u.end < len(s.messages) && s.messages[u.end].Role == llm.RoleTool {
				u.end++
			}
			u.open = u.end-u.start-1 < len(msg.ToolCalls)
		}
		out = append(out, u)
		i = u.end
	}
	return out
}
