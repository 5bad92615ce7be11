// Package protocol builds typed instrument command layers on top of a line
// connection.
//
// An instrument family is described by a Dialect (how verbs and arguments
// are put on the wire) and a Registry of Commands (the verbs themselves,
// each with optional argument validation and reply parsing). A Device binds
// the two to a connection and exposes Execute, which formats a command,
// performs the synchronous exchange, and decodes the reply.
//
// Concrete instrument drivers live in the devices subpackages and are thin
// wrappers over a Device with a pre-populated Registry.
package protocol
