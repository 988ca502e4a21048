// Package events defines the allocation related events emitted on the event
// bus.
//
// Available event types:
//   - RunStarted: a pipeline run began for an event
//   - RulesMatched: rule evaluation finished
//   - SequencePlanned: task decomposition finished
//   - OptimizerEvent: optimizer mode selection and fallback information
//   - PlanCommitted: a plan was locked and committed
//   - RunFailed: a run aborted with an error
package events
