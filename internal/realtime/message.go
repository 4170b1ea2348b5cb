package realtime

import "github.com/google/uuid"

type Event string

const (
	EventDocumentStatus Event = "document.status"
	EventQuizReady      Event = "quiz.ready"
)

type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

func DocumentChannel(documentID uuid.UUID) string {
	return "document:" + documentID.String()
}

func ModuleChannel(moduleID uuid.UUID) string {
	return "module:" + moduleID.String()
}
