// Package dispatch routes gotapi requests to a handler and guarantees that each
// one is answered exactly once.
//
// A request is classified in this order:
//   - API segment other than "gotapi": rejected with ErrNotFound, no envelope
//   - built-in descriptor match: handled synchronously, then sent
//   - missing serviceId: error 5
//   - malformed serviceId or unknown plugin: error 6
//   - otherwise the plugin entry point is invoked under a response timer
//
// Plugin calls race three senders: the engine (Immediate completion), the
// plugin itself (Deferred completion) and the timer (error 7). The first one
// wins; the rest are no-ops. The first send stops the timer and cancels the
// context handed to the plugin.
//
// Handler errors and panics are reported as error 1. Nothing escapes to the
// transport.
package dispatch
