/*
Package event provides a type-safe, pub/sub event system for the conductor engine.

The event system enables decoupled communication between different components of the
engine by allowing publishers to emit events and subscribers to react to them without
direct dependencies.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while maintaining
direct-call semantics to preserve type information. It provides both synchronous and
asynchronous event publishing patterns.

# Event Types

The system supports various event categories:

Command Events:
  - command.registered: Command added to the registry
  - command.unregistered: Command removed from the registry
  - command.dispatched: Invocation started
  - command.succeeded: Invocation finished without error
  - command.failed: Invocation finished with an error
  - command.completed: Invocation settled, chaining evaluated

Chain Events:
  - chain.scheduled: A chained command was queued (possibly delayed)
  - chain.executed: A chained command finished

Trigger Events:
  - trigger.bound: Event listener attached to an element
  - trigger.unbound: Event listener detached
  - trigger.fired: A bound listener matched an incoming event

Document Events:
  - document.loaded: A document was parsed and activated
  - document.mutated: Observed DOM mutations were flushed

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.CommandDispatched,
		Data: event.CommandDispatchedData{
			Info: invocation,
		},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.CommandCompleted,
		Data: event.CommandCompletedData{
			Info: result,
		},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.CommandDispatched, func(e event.Event) {
		data := e.Data.(event.CommandDispatchedData)
		log.Info("Command dispatched", "name", data.Info.Name)
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug("Event received", "type", e.Type)
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

Example of a safe subscriber:

	event.SubscribeAll(func(e event.Event) {
	    select {
	    case eventChan <- e:
	        // Event sent successfully
	    default:
	        // Channel full, drop event to avoid blocking
	        log.Warn("Event dropped due to full channel", "type", e.Type)
	    }
	})

# Custom Event Bus

For testing or isolation, you can create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.CommandDispatched, handler)
	bus.PublishSync(event.Event{Type: event.CommandDispatched, Data: data})

# Testing

The package provides utilities for testing:

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple goroutines.
Both publishing and subscribing operations are protected by internal synchronization.

# Performance Considerations

- Asynchronous publishing (Publish) creates a goroutine per subscriber per event
- Synchronous publishing (PublishSync) calls all subscribers in the current goroutine
- Use PublishSync for critical events where ordering matters
- Use Publish for fire-and-forget notifications
- Consider subscriber performance impact on PublishSync calls

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the underlying
pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.

This allows future migration to distributed message brokers if needed while maintaining
the current API.
*/
package event
