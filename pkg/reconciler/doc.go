/*
Package reconciler sweeps the task store on a cron schedule.

A write is accepted once it is in the task store, but it is projected only
when a trigger for its path reaches the projector. Triggers live in memory,
so a crash between the append and the push, or a trigger dropped after
redelivery gave up, leaves the task behind. The manager fast-forwards the
task store at startup; the reconciler repeats that sweep on a schedule
(every five minutes by default) so the backlog is recovered without a restart.

Schedules are standard five-field cron expressions parsed by gronx.
*/
package reconciler
