/*
Package runner drives a compiled graph from a terminal or another process.

The Runner consumes a run's stream events and hands them to an EventHandler:
TextHandler prints a human readable feed (tokens inline, node deltas, final state),
JSONHandler writes one JSON object per line for machine consumers.

When a run is suspended at an interrupt, the Runner consults an ApprovalPolicy to
decide whether to resume it. ConfirmationPolicy asks the user through the handler;
AutoApprove resumes unconditionally, which is what headless mode uses.
*/
package runner
