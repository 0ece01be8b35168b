/*
Package eventchain provides ordered, in-process dispatch of entity lifecycle
events to independent processors.

# Overview

A caller wraps a changed entity in an Event and submits it to a Manager.
The Manager hands it to a Service, which asks the Registry for the
processors registered for the event's content type and event type, then
runs them one at a time in ascending Order. Each processor may mutate the
content, set properties for later processors, or mark the event complete
to stop the chain.

	type User struct {
	    Name  string
	    Email string
	}

	normalize := eventchain.NewProcessor("normalize", 10,
	    func(ctx context.Context, evt *eventchain.Event[*User]) (*eventchain.Event[*User], error) {
	        evt.Content().Email = strings.ToLower(evt.Content().Email)
	        return evt, nil
	    },
	    eventchain.WithEventTypes(eventchain.Create, eventchain.Update))

	registry, err := eventchain.NewRegistry([]eventchain.Registration{
	    eventchain.Bind(normalize),
	})
	if err != nil {
	    log.Fatal(err)
	}

	service, _ := eventchain.NewService(registry)
	manager, _ := eventchain.NewManager(service)

	evt, _ := eventchain.NewEvent(eventchain.Create, &User{Email: "A@B.C"})
	results, err := eventchain.Dispatch(ctx, manager, evt)

# Ordering

Processors run in ascending Order. Processors with equal Order run in the
order they were passed to NewRegistry. Given the same registry and the same
event, the chain is always the same.

# Short-circuit

A processor calls evt.Complete() to veto the rest of the chain. It is not an
error: Dispatch returns normally and the context holds the results up to and
including the completing processor.

# Errors

A processor error aborts the chain. It is returned wrapped in a
*ProcessorError that names the processor and its position, and unwraps to
the original error. Changes already made to the content are not rolled back.
Panics are recovered into a *PanicError unless WithPanicRecovery(false).

Wiring mistakes (nil registry, nil event, duplicate names) are reported as
*ConfigurationError.

# Cascading

A processor may dispatch a new event for a related entity with
DispatchChild. The child links back to its parent and its depth is checked
against WithMaxDepth (default 16), so runaway cascades fail with a
*DepthExceededError instead of exhausting the stack.

# Concurrency

Dispatch is synchronous. The Registry, Service and Manager are immutable
after construction and safe for concurrent use. Events are owned by one
dispatch and must not be shared between goroutines.

# Observability

Service accepts a slog logger, a MetricsRecorder and a SpanManager from the
observability package. All three default to silent implementations.
Manager listeners receive an Outcome after every dispatch; the journal and
notify packages provide listeners that record and publish them.
*/
package eventchain
