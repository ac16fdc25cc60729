package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/erp/docflow/internal/application/workflow"
	domainworkflow "github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/event"
	"github.com/erp/docflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// ConnectionsResponse reports live subscribers of a topic
type ConnectionsResponse struct {
	Topic       string `json:"topic"`
	Connections int    `json:"connections"`
}

// EventStreamHandler streams committed transitions over Server-Sent Events
type EventStreamHandler struct {
	BaseHandler
	sm          *workflow.StateMachine
	broadcaster *event.Broadcaster
	logger      *zap.Logger
	heartbeat   time.Duration
	maxClients  int
}

// EventStreamOption configures the handler
type EventStreamOption func(*EventStreamHandler)

// WithStreamLogger sets the logger
func WithStreamLogger(logger *zap.Logger) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) EventStreamOption {
	return func(h *EventStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamMaxClients caps concurrent streams across all topics
func WithStreamMaxClients(max int) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.maxClients = max
	}
}

// NewEventStreamHandler creates an EventStreamHandler
func NewEventStreamHandler(sm *workflow.StateMachine, broadcaster *event.Broadcaster, opts ...EventStreamOption) *EventStreamHandler {
	h := &EventStreamHandler{
		sm:          sm,
		broadcaster: broadcaster,
		logger:      zap.NewNop(),
		heartbeat:   30 * time.Second,
		maxClients:  10000,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// resolveTopic maps "workflow", "workflow.<domain>" or "<domain>" to a
// broadcaster topic, rejecting unknown domains
func (h *EventStreamHandler) resolveTopic(raw string) (string, error) {
	domain := domainworkflow.DomainFromTopic(raw)
	if domain == "" {
		return domainworkflow.TopicAll, nil
	}
	if _, err := h.sm.Definition(domain); err != nil {
		return "", err
	}
	return domainworkflow.DomainTopic(domain), nil
}

func (h *EventStreamHandler) totalConnections() int {
	total := 0
	for _, n := range h.broadcaster.ConnectionCounts() {
		total += n
	}
	return total
}

// Stream subscribes the caller to a topic. With ?since=<unix seconds> or a
// Last-Event-ID header, transitions from the audit log are sent first; live
// events already covered by that replay are skipped.
func (h *EventStreamHandler) Stream(c *gin.Context) {
	topic, err := h.resolveTopic(c.Param("topic"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if h.maxClients > 0 && h.totalConnections() >= h.maxClients {
		h.Error(c, http.StatusServiceUnavailable, "ERR_MAX_CONNECTIONS_REACHED", "Maximum number of event streams reached")
		return
	}

	var since *time.Time
	if raw := firstNonEmpty(c.Query("since"), c.GetHeader("Last-Event-ID")); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			h.BadRequest(c, "since must be a non-negative unix timestamp in seconds")
			return
		}
		t := time.Unix(secs, 0).UTC()
		since = &t
	}

	// Subscribe before replaying so nothing committed in between is lost.
	sub, err := h.broadcaster.Subscribe(topic)
	if err != nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, err.Error())
		return
	}
	defer sub.Close()

	actor := actorOf(c)
	h.logger.Info("Event stream connected",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("topic", topic),
		zap.String("actor_id", actor.ID))

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"subscription_id":%q,"topic":%q,"timestamp":%d}`, sub.ID, topic, time.Now().Unix()),
	})
	w.Flush()

	ctx := c.Request.Context()
	replayed := make(map[string]struct{})
	if since != nil {
		history, err := h.sm.Replay(ctx, topic, *since)
		if err != nil {
			h.logger.Error("Event stream replay failed", zap.String("topic", topic), zap.Error(err))
		}
		for i := range history {
			ev := history[i].Event()
			replayed[eventKey(ev)] = struct{}{}
			h.send(w, ev)
		}
		w.Flush()
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Event stream disconnected", zap.String("subscription_id", sub.ID.String()))
			return
		case <-ticker.C:
			writeSSE(w, SSEMessage{Event: "heartbeat", Data: fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix())})
			w.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if _, dup := replayed[eventKey(ev)]; dup {
				continue
			}
			h.send(w, ev)
			w.Flush()
		}
	}
}

func (h *EventStreamHandler) send(w io.Writer, ev domainworkflow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	writeSSE(w, SSEMessage{Event: "transition", Data: string(data), ID: strconv.FormatInt(ev.Timestamp, 10)})
}

// eventKey identifies a transition; a document enters each state at most once
func eventKey(ev domainworkflow.Event) string {
	return ev.Domain + "/" + ev.DocumentNumber + "/" + string(ev.ToState)
}

// writeSSE writes one event in text/event-stream framing
func writeSSE(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// Connections reports how many streams listen on a topic
func (h *EventStreamHandler) Connections(c *gin.Context) {
	topic, err := h.resolveTopic(c.Param("topic"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ConnectionsResponse{Topic: topic, Connections: h.broadcaster.ConnectionCount(topic)})
}
