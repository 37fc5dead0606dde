// Package notify delivers job and invocation completion callbacks
// asynchronously, decoupling the compute services' message loops from
// however long a submitter's callback takes to run.
package notify
