package fanout

import "github.com/capsulabs/capsule-pipeline/model"

// Notifier is the capability the pipeline orchestrators broadcast
// notifications through. *Registry delivers to local sockets directly
// (process-local mode); *BrokerNotifier publishes onto the `websockets`
// fanout exchange instead, so every instance's own subscriber (bound to
// its own Registry) delivers the message to whichever instance actually
// holds the recipient's socket (broker mode, §4.4).
type Notifier interface {
	WriteMessage(userID string, msg Message)
	Broadcast(c *model.Capsule, msg Message)
	BroadcastCapsuleChanged(c *model.Capsule)
}

func GosProductionProgress(id, gosID int64, pct float64) Message {
	return Message{"type": "gos_production_progress", "id": id, "gos_id": gosID, "msg": pct}
}

func GosProductionFinished(id, gosID int64) Message {
	return Message{"type": "gos_production_finished", "id": id, "gos_id": gosID}
}

func CapsuleProductionProgress(id int64, pct float64) Message {
	return Message{"type": "capsule_production_progress", "id": id, "msg": pct}
}

func CapsuleProductionFinished(id int64) Message {
	return Message{"type": "capsule_production_finished", "id": id}
}

func CapsulePublicationProgress(id int64, pct float64) Message {
	return Message{"type": "capsule_publication_progress", "id": id, "msg": pct}
}

func CapsulePublicationFinished(id int64) Message {
	return Message{"type": "capsule_publication_finished", "id": id}
}

func VideoUploadProgress(id, slideID int64, pct float64) Message {
	return Message{"type": "video_upload_progress", "id": id, "slide_id": slideID, "msg": pct}
}

func VideoUploadFinished(id, slideID int64) Message {
	return Message{"type": "video_upload_finished", "id": id, "slide_id": slideID}
}

// CapsuleChanged carries the full capsule JSON plus the recipient's role,
// per §4.4.
func CapsuleChanged(c *model.Capsule, role model.Role) Message {
	return Message{"type": "capsule_changed", "capsule": c, "role": role}
}

// Notice is a plain, non-progress notification.
func Notice(title, message string) Message {
	return Message{"type": "notice", "title": title, "message": message, "read": false}
}

// Broadcast delivers the same msg to every participant of c via registry.
// The role-carrying capsule_changed variant goes through
// BroadcastCapsuleChanged instead.
func (r *Registry) Broadcast(c *model.Capsule, msg Message) {
	for user := range c.Participants {
		r.WriteMessage(user, msg)
	}
}

// BroadcastCapsuleChanged delivers a capsule_changed message to every
// participant, with each recipient's own role embedded.
func (r *Registry) BroadcastCapsuleChanged(c *model.Capsule) {
	for user, role := range c.Participants {
		r.WriteMessage(user, CapsuleChanged(c, role))
	}
}
