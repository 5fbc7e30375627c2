package common

type EventMeta struct {
	EventType string // e.g. "entity.changed.v1"
	Exchange  string // e.g. "changes"
}
