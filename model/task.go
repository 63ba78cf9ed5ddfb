package model

import "fmt"

// TaskKind discriminates the Task tagged variant (§3.1).
type TaskKind string

const (
	TaskProduceGos     TaskKind = "produce_gos"
	TaskProduceCapsule TaskKind = "produce_capsule"
	TaskPublishCapsule TaskKind = "publish_capsule"
)

// Task is the serialized envelope dispatched either to the inline runner or
// published onto the broker `tasks` queue (§4.5).
type Task struct {
	Kind      TaskKind `json:"kind"`
	CapsuleID int64    `json:"capsule_id"`
	GosIndex  int      `json:"gos_index,omitempty"`
}

func (t Task) String() string {
	switch t.Kind {
	case TaskProduceGos:
		return fmt.Sprintf("produce_gos(capsule=%d, gos=%d)", t.CapsuleID, t.GosIndex)
	case TaskProduceCapsule:
		return fmt.Sprintf("produce_capsule(capsule=%d)", t.CapsuleID)
	case TaskPublishCapsule:
		return fmt.Sprintf("publish_capsule(capsule=%d)", t.CapsuleID)
	default:
		type plainTask Task
		return fmt.Sprintf("unknown_task(%+v)", plainTask(t))
	}
}

// TaskStatType discriminates the stats record opened by produce_capsule and
// publish_capsule (§4.6.2, §4.6.3).
type TaskStatType string

const (
	TaskStatProduction  TaskStatType = "production"
	TaskStatPublication TaskStatType = "publication"
)
