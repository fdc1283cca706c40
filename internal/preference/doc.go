// Package preference negotiates which profile carries output and
// duplex audio for dual-mode devices and coordinated sets.
//
// A request flows through a fixed sequence:
//
//	reject if a request is already pending for the group
//	    │
//	no delta against the stored bundle? → immediate success
//	    │
//	persist the merged bundle to every set member
//	    │   (storage failure aborts; the framework is never contacted)
//	    │
//	one async framework request per changed role the target
//	currently routes  →  zero issued? → immediate success
//	    │
//	bounded wait: each acknowledgement decrements the counter;
//	zero before the deadline → success, deadline first → timeout
//
// The timeout is hard: the persisted value is not rolled back, only the
// confirmation callback reports failure. After a timeout the pending
// record is gone, so an identical retry is accepted.
package preference
