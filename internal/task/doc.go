// Package task holds the runtime unit of execution: one attempt at running a
// module instance against resolved inputs, and the state machine it moves
// through from Pending to a terminal state.
package task
