// Package backlog defines the work-item model shared by the coordinator,
// reaper, resolver, and stores: an item carries a status partition (ready,
// claimed, completed, blocked), a priority, declared dependencies, and the
// lease bookkeeping a claim needs.
package backlog
