// Package events provides types and interfaces for an event-driven architecture.
//
// Services emit domain events (for example, a ticket unsnoozing) without
// knowing which handlers consume them; handlers react by sending
// notifications or enqueuing follow-up background tasks. This keeps the
// evaluators decoupled from delivery concerns and avoids circular
// dependencies between packages.
package events
