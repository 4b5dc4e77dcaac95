/*
Package domain contains the core domain models of the voice survey.

It defines the entities the call-flow engine reasons about: the ordered question
catalog, the participant (one per call) with its recorded answers, and the
flow-instruction document returned to the telephony platform. This package is kept
pure and free of I/O or persistence concerns.

# Key Entities

  - Catalog: The ordered, immutable list of survey questions.
  - Participant: One call's identity and the answers recorded so far, in arrival order.
  - Answer: An opaque reference to a finished recording (leg + recording id).
  - FlowDocument: The ordered steps (say / record) the platform executes next.
  - Status: The per-call survey state (not started, awaiting answer k, completed).
*/
package domain
