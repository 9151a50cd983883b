/*
Package watch implements agentstate's per-namespace change feed: an
ordered broadcast of put/delete events with resumable subscriptions.

# Architecture

Hub generalizes the event broker pattern (a per-namespace publish loop
fanning out to non-blocking per-subscriber channels) with a bounded
ring buffer of recent events and an injected HistorySource used to
replay events a slow subscriber has fallen behind on, before resorting
to a terminal Overflow event.

	Publish(event) ──► namespace publish loop ──► ring buffer
	                                          └──► each Subscriber (non-blocking send)

	Subscribe(fromSeq): delivers events with commit_seq > fromSeq
	  fromSeq within ring ──► replay from ring, then live-tail
	  fromSeq behind ring, still on WAL ──► replay via HistorySource, then live-tail
	  fromSeq trimmed from WAL ──► terminal Overflow{LastCommit: fromSeq}

A subscriber whose buffer fills is dropped rather than blocking the
publish loop: its Done channel is closed and it receives no further
events. A terminal Overflow event (LastCommit is the last commit_seq
queued to it, plus a ReconnectAfter backoff hint) is queued only if
the buffer still has room, which a full buffer usually does not; the
closed Done channel is the signal that always arrives.
*/
package watch
