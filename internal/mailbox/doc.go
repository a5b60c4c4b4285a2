// Package mailbox holds per-session signaling state: the pending offer slot and
// the two ICE candidate queues of every session.
//
// Payloads are opaque. The store never parses SDP or candidate strings; it only
// orders and hands them over.
//
// Two implementations exist. MemoryStore keeps everything in process and is the
// default. RedisStore keeps the same layout in Redis keys so state survives a
// relay restart within the idle TTL.
package mailbox
