// Package approval correlates held tool-permission requests with the human
// decisions that resolve them.
//
// A webhook caller submits a request and its connection stays open until an
// explicit decide call or the timeout resolves it. Each request transitions
// exactly once from pending to a terminal status; the pending-waiter take is
// atomic so a decide racing the timeout can never resolve twice.
package approval
