// Package executor runs Ready tasks on a bounded pool of worker slots.
//
// Tasks start in submission order. At most Size tasks hold a slot at once; a
// module that has to wait for something other than CPU (a remote object, a
// peer's answer) calls Suspend, which gives the slot back for the duration of
// the wait. Module failures and panics are captured on the task and never
// reach the pool itself.
package executor
