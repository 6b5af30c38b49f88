// Package router moves control envelopes between ranks of a process group.
//
// A Router owns one rank. Outbound envelopes are stamped with the sender rank
// and a sequence number that is monotonic per (sender, destination) pair, then
// queued on a bounded per-destination queue that a single pump drains into the
// Transport, so delivery between one sender and one destination is FIFO.
//
// Inbound envelopes are checked against the expected sequence number for
// their sender. A gap means a frame was lost or reordered; the sender is then
// reported through Events as unreachable instead of being retried. Accepted
// envelopes land in one of two lanes and Receive always drains the priority
// lane first.
//
// The Router carries object handles and small metadata only. Bulk object
// bytes travel through the shared object store.
package router
