package notify

type actionKind uint8

const (
	actionListen actionKind = iota
	actionUnlisten
	actionUnlistenAll
)

// pendingAction is one LISTEN/UNLISTEN/UNLISTEN-ALL request, kept verbatim.
// Conflicting requests within one transaction are deliberately preserved in
// order and resolved at commit time.
type pendingAction struct {
	kind    actionKind
	channel string
}

// txScope holds the pending lists for one (sub)transaction level.
type txScope struct {
	notifications notificationSet
	actions       []pendingAction
	// intent is the final intended listen state per channel named by a
	// listen action in this scope; sawUnlistenAll widens an overlay to
	// channels the scope never named.
	intent         map[string]bool
	sawUnlistenAll bool
}

func newTxScope() *txScope {
	return &txScope{intent: make(map[string]bool)}
}

// txBuffer stages a transaction's outbound notifications and listen
// actions, one scope per open (sub)transaction level. Scope zero is the
// top-level transaction.
type txBuffer struct {
	scopes []*txScope
}

func newTxBuffer() *txBuffer {
	return &txBuffer{scopes: []*txScope{newTxScope()}}
}

func (b *txBuffer) current() *txScope {
	return b.scopes[len(b.scopes)-1]
}

func (b *txBuffer) root() *txScope {
	return b.scopes[0]
}

// notify buffers n in the current scope; duplicates count once.
func (b *txBuffer) notify(n Notification) {
	b.current().notifications.Add(n)
}

func (b *txBuffer) listen(channel string) {
	sc := b.current()
	sc.actions = append(sc.actions, pendingAction{kind: actionListen, channel: channel})
	sc.intent[channel] = true
}

func (b *txBuffer) unlisten(channel string) {
	sc := b.current()
	sc.actions = append(sc.actions, pendingAction{kind: actionUnlisten, channel: channel})
	sc.intent[channel] = false
}

func (b *txBuffer) unlistenAll() {
	sc := b.current()
	sc.actions = append(sc.actions, pendingAction{kind: actionUnlistenAll})
	for ch := range sc.intent {
		sc.intent[ch] = false
	}
	sc.sawUnlistenAll = true
}

// push opens a nested scope.
func (b *txBuffer) push() {
	b.scopes = append(b.scopes, newTxScope())
}

func (b *txBuffer) depth() int { return len(b.scopes) }

// commitScope merges the innermost scope into its parent: notifications are
// deduplicated against the parent's, actions are appended in order, and the
// child's intent overlays the parent's.
func (b *txBuffer) commitScope() {
	if len(b.scopes) == 1 {
		return
	}
	child := b.current()
	b.scopes = b.scopes[:len(b.scopes)-1]
	parent := b.current()

	for _, n := range child.notifications.items {
		parent.notifications.Add(n)
	}
	parent.actions = append(parent.actions, child.actions...)
	if child.sawUnlistenAll {
		for ch := range parent.intent {
			parent.intent[ch] = false
		}
		parent.sawUnlistenAll = true
	}
	for ch, on := range child.intent {
		parent.intent[ch] = on
	}
}

// abortScope discards the innermost scope entirely.
func (b *txBuffer) abortScope() {
	if len(b.scopes) == 1 {
		return
	}
	b.scopes = b.scopes[:len(b.scopes)-1]
}

// reset drops everything, leaving one empty top-level scope.
func (b *txBuffer) reset() {
	b.scopes = []*txScope{newTxScope()}
}

// hasWork reports whether the top-level scope has anything to commit.
func (b *txBuffer) hasWork() bool {
	root := b.root()
	return root.notifications.len() > 0 || len(root.actions) > 0
}
