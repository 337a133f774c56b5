// Package notify implements a transactional LISTEN/NOTIFY engine over a
// shared paged queue.
//
// Workers attach to one Bus and get a Session. LISTEN, UNLISTEN, and NOTIFY
// requests buffer in the session's transaction scopes and take effect only
// through the commit protocol: PreCommit publishes staged listener records
// and appends the notification entries in commit order, PostCommit applies
// the listen actions, wakes the listeners that need to read, and OnAbort
// discards everything.
//
// Every entry is written once and read by every interested listener at its
// own pace; storage is reclaimed from the tail once the slowest listener
// has moved past a segment boundary. Delivery is at-most-once per listener
// and in queue order, which is commit order.
package notify
