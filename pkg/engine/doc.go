// Package engine ties the expectation store, the request log and the action
// executor together behind one HTTP handler. Data-plane requests are matched
// against the active expectation set and answered by the matched action;
// control-plane requests under the configured prefix manage expectations and
// query recorded traffic.
package engine
