// Package schema provides best-effort validation of tool arguments
// against the JSON Schemas servers declare for their tools.
//
// The client caches each tool's inputSchema at list time and runs
// arguments through Validate before transmission. Validation is
// intentionally shallow: it checks required properties and primitive
// types, and passes everything it does not understand through to the
// server untouched. Unknown arguments are never dropped.
//
//	s, _ := schema.FromAny(tool.InputSchema)
//	if err := s.Validate(args); err != nil { ... }
package schema
