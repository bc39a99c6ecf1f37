// Package dashboard event handling and message formatting.
package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/noteflow/noteflow/internal/reconcile"
	"github.com/noteflow/noteflow/internal/schema"
)

// Handler bridges reconciliation events and notifications onto the WebSocket
// server. It implements reconcile.EventSink and notify.Notifier.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// TodoCreated broadcasts a record creation event.
func (h *Handler) TodoCreated(rec *schema.TodoRecord) {
	h.broadcast(MessageTypeTodoUpdate, TodoUpdateData{
		TodoID:    rec.ID,
		Action:    "created",
		Content:   rec.Content,
		Completed: rec.Completed,
		Assignee:  rec.AssignedTo,
	})
}

// TodoUpdated broadcasts a record update event with the changed field names.
func (h *Handler) TodoUpdated(id string, fields []string) {
	h.broadcast(MessageTypeTodoUpdate, TodoUpdateData{
		TodoID: id,
		Action: "updated",
		Fields: fields,
	})
}

// PassComplete broadcasts the aggregate result of a reconciliation pass.
func (h *Handler) PassComplete(res reconcile.Result) {
	h.broadcast(MessageTypePassComplete, PassCompleteData{
		Synced:   res.Synced,
		Failed:   res.Failed,
		Created:  res.Created,
		Updated:  res.Updated,
		Duration: res.Duration,
	})
}

// Notify broadcasts a toast notification. Implements notify.Notifier.
func (h *Handler) Notify(title, description string) {
	h.broadcast(MessageTypeToast, ToastData{
		Title:       title,
		Description: description,
	})
}

func (h *Handler) broadcast(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
