// Package core reconciles uploaded user rows against a user directory.
//
// # Architecture
//
// Each row passes through one lifecycle:
//
//	RawRow -> Prepare -> Plan{prepared | rejected} -> Commit -> Outcome
//
// Prepare validates the identity columns (username, mnethostid, id), looks
// the user up, classifies the row as create, update or delete and builds the
// FinalRecord. Commit writes the record through the Executor, applies
// session invalidation, password preferences and numbered directives, and
// returns the Outcome. A Plan can be committed once; committing a rejected or
// already committed plan returns ErrContractViolation.
//
// # Collaborators
//
// The engine never reaches for ambient state. Everything it needs is passed
// to NewEngine:
//
//   - Directory: user lookup and duplicate email checks
//   - Executor: create, update, delete and preference writes
//   - SessionInvalidator: ends sessions after suspension or nologin
//   - DirectiveExecutor: cohort, system role and course enrolment side effects
//   - AuthResolver, PasswordHasher, PasswordChecker, LanguageValidator
//
// # Runs
//
// Runner drives an Engine over a RowSource strictly in order, so lookups see
// every earlier commit of the same run. A RunLimiter keeps separate runs from
// interleaving. Row problems are reported through the Tracker; only
// collaborator failures and contract violations abort a run.
//
// # Error Handling
//
// Row problems are Code values (see codes.go). Errors that abort a run are
// mapped to operator messages by MapError (see error_messages.go).
package core
