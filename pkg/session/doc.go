/*
Package session orchestrates access to participants, one call at a time.

The Manager wraps a ports.ParticipantStore and serializes work on a single call ID
with a reference-counted in-process mutex, optionally backed by a distributed lock so
replicas do not interleave. Work on different call IDs never waits on each other.
*/
package session
