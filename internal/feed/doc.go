// Package feed broadcasts ledger events to WebSocket subscribers.
//
// The Hub consumes one event bus subscription and fans each event out
// to every connected client as a JSON text frame. Delivery is
// best-effort: a client whose send buffer is full is evicted rather
// than allowed to stall the broadcast loop. The feed is one-way;
// inbound frames from clients are read (to service pongs) and
// discarded.
package feed
