package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager fans engine events out to active SSE connections.
// Subscribers of the empty call ID receive events of every call.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Message]struct{} // CallID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Message]struct{}),
	}
}

// Subscribe registers a channel for callID and returns it with its cancel func.
func (sm *StreamManager) Subscribe(callID string) (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 10)
	if _, ok := sm.subscribers[callID]; !ok {
		sm.subscribers[callID] = make(map[chan<- Message]struct{})
	}
	sm.subscribers[callID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[callID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, callID)
				}
			}
		})
	}
}

// Broadcast delivers msg to the subscribers of callID and to global subscribers.
func (sm *StreamManager) Broadcast(callID string, msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	targets := []string{callID}
	if callID != "" {
		targets = append(targets, "")
	}
	for _, id := range targets {
		for ch := range sm.subscribers[id] {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				slog.Warn("SSE: Client buffer full, dropping message", "call_id", callID)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	n := 0
	for _, subs := range sm.subscribers {
		n += len(subs)
	}
	return n
}

func (sm *StreamManager) publish(callID string, event domain.EventType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("SSE: failed to encode event", "call_id", callID, "err", err)
		return
	}
	sm.Broadcast(callID, Message{Event: string(event), Data: string(data)})
}

// Hooks returns lifecycle hooks that publish engine events, chained after next.
func (sm *StreamManager) Hooks(next domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			sm.publish(e.CallID, domain.EventStep, e)
			if next.OnStep != nil {
				next.OnStep(ctx, e)
			}
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			sm.publish(e.CallID, domain.EventAnswer, e)
			if next.OnAnswer != nil {
				next.OnAnswer(ctx, e)
			}
		},
		OnComplete: func(ctx context.Context, e *domain.StepEvent) {
			complete := *e
			complete.Type = domain.EventComplete
			sm.publish(e.CallID, domain.EventComplete, &complete)
			if next.OnComplete != nil {
				next.OnComplete(ctx, e)
			}
		},
		OnMalformed: next.OnMalformed,
	}
}

// SubscribeEvents handles the GET /events request (SSE).
// With ?callID= only that call's events are streamed.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	callID := r.URL.Query().Get("callID")
	s.logger.Info("SSE: Subscribing to survey events", "call_id", callID)

	ch, cancel := s.Streams.Subscribe(callID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "call_id", callID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}
