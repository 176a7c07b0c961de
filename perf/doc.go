// Package perf wires the diagram performance subsystem together.
//
// Service is the composition root. It builds the observer, the spec codec
// (with the CUE schema validator) and four explicitly owned cache
// instances, then serves cache-aside reads over a Source:
//
//	diagrams  current specs, stored encoded (codec.Payload)
//	versions  historical specs, stored encoded
//	lists     summary pages per owner and query
//	exports   rendered artifacts per diagram and format
//
// Keys are namespaced ("diagram:<id>", "version:<id>:<n>",
// "export:<id>:<format>", "list:<owner>:<hash>") so Invalidate can drop
// every entry derived from one diagram by prefix.
//
// Source calls on a miss run through a resilience.Guard: a per-attempt
// timeout, retries for transient errors and a circuit breaker whose state
// is reported by Health under "source".
//
// Configuration is a YAML file loaded with LoadConfig. ${VAR} references
// are expanded from the environment and must be set; $$ is a literal $.
package perf
