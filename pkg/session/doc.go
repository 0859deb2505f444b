/*
Package session coordinates access to checkpointed runs.

A run may be resumed from several places at once (two CLI invocations, or
replicas of the HTTP service). The Manager serializes access per run ID with
reference-counted local locks and, when configured, a distributed lock.
*/
package session
