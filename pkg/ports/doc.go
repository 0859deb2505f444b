/*
Package ports defines the driven ports (interfaces) of the Socrates engine.

These interfaces decouple the runtime and the steps from concrete backends,
so generation providers, search services and storage can be swapped.

# Key Interfaces

  - Generator: text-in/text-out generation backend.
  - Searcher: query-in/results-out web search; never fails the caller.
  - Sink: persists final run records and serves list/get/delete over them.
  - StateStore: checkpoints the latest merged State of a run for resume.
  - DistributedLocker: coordinates access to a run across replicas.
*/
package ports
