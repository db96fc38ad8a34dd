package infrastructure

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	eventNameKey    = "event.name"
	listenerNameKey = "listener.name"
	statusKey       = "status"
)

func EventNameAttr(eventName string) attribute.KeyValue {
	return attribute.String(eventNameKey, eventName)
}

func ListenerNameAttr(listenerName string) attribute.KeyValue {
	return attribute.String(listenerNameKey, listenerName)
}

func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(statusKey, status)
}
