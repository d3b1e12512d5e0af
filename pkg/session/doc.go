/*
Package session binds one WebSocket connection to at most one cluster
lifecycle operation.

The read loop runs on the caller's goroutine and exists mostly to notice the
client going away; the operation runs on its own goroutine and writes frames
through a stream.Dispatcher. On disconnect the session detaches the
dispatcher before cancelling the operation context, so no frame can race the
teardown and stages that persist after disconnect keep running unobserved.

RunTail is the second, simpler session kind: it follows `kubectl logs -f`
for one pod and, unlike provisioning, never outlives its client.
*/
package session
