// Package mock defines the expectation model: declarative request
// definitions, usage budgets (Times, TimeToLive), the action union and the
// Expectation record itself.
//
// Types in this package are pure data plus small invariant-preserving
// methods. Compiling a RequestDefinition into an executable matcher happens
// in internal/matching; storing and selecting expectations happens in
// internal/storage.
package mock
