// Package funnel serializes all storage writes of a scan through one
// consumer goroutine. Workers and the supervisor send messages from any
// goroutine; the funnel applies them in receipt order, so the store never
// sees concurrent writers.
package funnel
