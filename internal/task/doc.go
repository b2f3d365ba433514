// Package task implements the durable background task queue: the task
// record model, the compile-time registry mapping type tags to handlers,
// the enqueuer producers use to submit work, and the dispatcher loop that
// claims and executes tasks one at a time per wake.
package task
