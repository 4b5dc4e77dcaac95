/*
Package ports defines the driven ports (interfaces) of the voice survey.

These interfaces decouple the call-flow engine from external implementations, allowing
it to work with various storage backends and question sources.

# Key Interfaces

  - ParticipantStore: Durable per-call participant records with an atomic answer append.
  - QuestionSource: Supplies the ordered question texts once at start-up.
  - DistributedLocker: Serializes work on one call ID across replicas.
  - CallFlowEngine: What inbound adapters (HTTP) drive.
*/
package ports
