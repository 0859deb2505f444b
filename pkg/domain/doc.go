/*
Package domain contains the core models of the Socrates refinement engine.

It defines the run snapshot, the partial updates steps return, the step graph
and the progress events. This package is kept pure and free of I/O so the
runtime, the steps and every adapter can share it.

# Key Entities

  - State: immutable-per-step snapshot of a run (task, counters, queue, history).
  - Update: the partial result of a step; merged into a new State by Apply.
  - Graph/Node: the small directed graph of steps with static or routed edges.
  - DepthPolicy: fixed-N or evaluated-expansion budget settings.
  - Event/Observer: the progress side channel.
*/
package domain
