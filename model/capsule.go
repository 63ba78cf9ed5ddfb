// Package model holds the capsule/Gos/Slide/Record/Event data model (§3)
// shared by the pipeline orchestrators, the content-addressed artifact
// store, and the persistence layer.
package model

import "time"

// TaskStatus is the state of one of a capsule's three independent task
// tracks: produced, published, video_uploaded (§3.1, §4.7).
type TaskStatus string

const (
	StatusDisabled TaskStatus = "disabled"
	StatusIdle     TaskStatus = "idle"
	StatusRunning  TaskStatus = "running"
	StatusDone     TaskStatus = "done"
)

// Privacy is a capsule's visibility level.
type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

// Role is a participant's access level on a capsule. Exactly one
// participant must hold RoleOwner (§3.1).
type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
	RoleOwner Role = "owner"
)

// EventType enumerates the Gos timeline event kinds (§3.1).
type EventType string

const (
	EventStart         EventType = "start"
	EventNextSlide     EventType = "next_slide"
	EventPreviousSlide EventType = "previous_slide"
	EventNextSentence  EventType = "next_sentence"
	EventPlay          EventType = "play"
	EventPause         EventType = "pause"
	EventSeek          EventType = "seek"
	EventStop          EventType = "stop"
	EventEnd           EventType = "end"
)

// Anchor is the screen corner a picture-in-picture webcam is pinned to.
type Anchor string

const (
	AnchorTopLeft     Anchor = "top_left"
	AnchorTopRight    Anchor = "top_right"
	AnchorBottomLeft  Anchor = "bottom_left"
	AnchorBottomRight Anchor = "bottom_right"
)

// WebcamSettings is a tagged union over the three compositing modes a Gos
// (or the capsule default) may specify, flattened into one struct: Opacity
// and Keycolor apply to fullscreen and pip, and Anchor/PosX/PosY/Width/Height
// apply to pip only. It is kept as a tagged variant rather than an interface so the canonical JSON used for hashing
// (§4.3) is deterministic.
type WebcamSettings struct {
	Mode WebcamMode `json:"mode"`

	Opacity  float64 `json:"opacity,omitempty"`
	Keycolor *string `json:"keycolor,omitempty"`

	Anchor   Anchor  `json:"anchor,omitempty"`
	PosX     float64 `json:"pos_x,omitempty"`
	PosY     float64 `json:"pos_y,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
}

type WebcamMode string

const (
	WebcamDisabled   WebcamMode = "disabled"
	WebcamFullscreen WebcamMode = "fullscreen"
	WebcamPip        WebcamMode = "pip"
)

// Size is a width/height pair in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Slide is a single still image with an optional attached extra video.
type Slide struct {
	UUID   string  `json:"uuid"`
	Extra  *string `json:"extra,omitempty"`
	Prompt string  `json:"prompt"`
}

// Record is a webcam recording with an optional pointer-overlay track.
type Record struct {
	UUID        string `json:"uuid"`
	PointerUUID *string `json:"pointer_uuid,omitempty"`
	Size        *Size   `json:"size,omitempty"`
}

// Event is a single timeline marker within a Gos.
type Event struct {
	Type         EventType `json:"ty"`
	TimeMs       int64     `json:"time_ms"`
	ExtraTimeMs  *int64    `json:"extra_time_ms,omitempty"`
}

// Gos (Grain Of Story) is one scene within a capsule's ordered structure.
type Gos struct {
	Record         *Record         `json:"record,omitempty"`
	Slides         []Slide         `json:"slides"`
	Events         []Event         `json:"events"`
	WebcamSettings *WebcamSettings `json:"webcam_settings,omitempty"`
	Fade           bool            `json:"fade"`
	ProducedHash   *string         `json:"produced_hash"`
	Produced       TaskStatus      `json:"produced"`
}

// SoundTrack is the capsule's optional background audio track.
type SoundTrack struct {
	UUID   string  `json:"uuid"`
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
}

// Capsule is the persistent document described in §3.1.
type Capsule struct {
	ID int64 `json:"id"`

	Structure      []Gos           `json:"structure"`
	WebcamSettings WebcamSettings  `json:"webcam_settings"`
	SoundTrack     *SoundTrack     `json:"sound_track,omitempty"`
	Privacy        Privacy         `json:"privacy"`
	PromptSubtitles bool           `json:"prompt_subtitles"`

	Produced       TaskStatus `json:"produced"`
	Published      TaskStatus `json:"published"`
	VideoUploaded  TaskStatus `json:"video_uploaded"`

	ProductionPID      *int `json:"production_pid,omitempty"`
	PublicationPID     *int `json:"publication_pid,omitempty"`
	VideoUploadedPID   *int `json:"video_uploaded_pid,omitempty"`

	ProducedHash *string `json:"produced_hash"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
	DiskUsageMB  float64 `json:"disk_usage_mb"`

	LastModified time.Time `json:"last_modified"`

	Participants map[string]Role `json:"participants"`
}

// Owner returns the single participant with RoleOwner, per the exactly-one
// -owner invariant (§3.1). Ok is false if the invariant is violated.
func (c *Capsule) Owner() (user string, ok bool) {
	for u, r := range c.Participants {
		if r == RoleOwner {
			if ok {
				return "", false
			}
			user, ok = u, true
		}
	}
	return user, ok
}

// CanTransition reports whether moving a task track from `from` to `to` is
// one of the legal transitions enumerated in §4.7.
func CanTransition(from, to TaskStatus) bool {
	switch {
	case from == StatusIdle && to == StatusRunning:
		return true
	case from == StatusRunning && (to == StatusDone || to == StatusIdle):
		return true
	case from == StatusDone && to == StatusIdle:
		return true
	default:
		return false
	}
}
