// Package gui attaches an interactive front end to executions over
// socket.io. The server broadcasts every task state change as a "progress"
// event and the final report as a "report" event, and accepts a "cancel"
// command that cancels the execution in flight.
package gui
