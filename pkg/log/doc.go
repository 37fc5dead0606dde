// Package log provides structured logging shared by every simulated
// service (batch and serverless compute services, schedulers, the
// function manager) using zerolog. Services obtain a component-scoped
// child logger via WithComponent and tag individual log lines with
// WithJobID / WithInvocationID rather than building ad-hoc prefixes.
package log
