package core

import "sync"

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A shader manifest changed on disk.
	/* Context usage:
	 * path := data.Data.(string)
	 */
	EVENT_CODE_MANIFEST_CHANGED SystemEventCode = 0x02

	// A completion token wait failed and the device must be torn down.
	/* Context usage:
	 * err := data.Data.(error)
	 */
	EVENT_CODE_DEVICE_LOST SystemEventCode = 0x03

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mu sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

var eventState *eventSystemState = nil

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener_inst interface{}, data EventContext) bool

// EventInitialize sets up the event tables. Calling it again drops every registration.
func EventInitialize() bool {
	eventState = &eventSystemState{}
	return true
}

func EventShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	// Free the events arrays. And objects pointed to should be destroyed on their own.
	for i := 0; i < MAX_MESSAGE_CODES; i++ {
		eventState.registered[i].events = nil
	}
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be 0/NULL.
 * @param on_event The callback function pointer to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	for _, e := range eventState.registered[code].events {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	// If at this point, no duplicate was found. Proceed with registration.
	eventState.registered[code].events = append(eventState.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	events := eventState.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code].events = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @returns TRUE if handled, otherwise FALSE.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.RLock()
	events := make([]*registeredEvent, len(eventState.registered[code].events))
	copy(events, eventState.registered[code].events)
	eventState.mu.RUnlock()

	context.Type = code
	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
