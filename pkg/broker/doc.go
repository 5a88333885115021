/*
Package broker queues work for asynchronous processing.

A Broker is an in-process queue drained by a bounded pool of workers.
Handlers acknowledge a message by returning nil and reject it by returning
an error, after which the message is queued again once the redelivery delay
has passed.

Messages may carry a dedup key. A message waiting for a worker absorbs later
pushes with the same key, which collapses bursts of triggers for one path
into a single drain. The key is released as soon as a worker takes the
message.

Two instances are used: write triggers, which block senders when full and
always redeliver, and after-task notices, which are best effort and drop
messages rather than slow down projection.
*/
package broker
