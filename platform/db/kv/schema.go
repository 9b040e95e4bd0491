package kv

// The schema defines how platform entities are laid out across BoltDB
// buckets. Entities are stored as JSON under their ID; ordered data (audit
// entries, trades, stage changes) is keyed so that a cursor walk returns
// rows in their natural order without sorting.
var (
	botsBucket        = []byte("bots")
	generationsBucket = []byte("generations")
	// generationIndexBucket maps botID + big-endian generation number to the
	// generation ID, so per-bot generations scan in numeric order.
	generationIndexBucket = []byte("generation-index")
	sessionsBucket        = []byte("backtest-sessions")
	// sessionIndexBucket maps botID|sessionID to the session ID for per-bot scans.
	sessionIndexBucket = []byte("session-index")
	// tradesBucket keys trade rows by sessionID + big-endian insert index.
	tradesBucket       = []byte("trade-logs")
	stageChangesBucket = []byte("bot-stage-changes")
	approvalsBucket    = []byte("governance-approvals")
	// auditBucket keys entries by big-endian sequence number; a Last() cursor
	// read gives the chain head.
	auditBucket           = []byte("immutable-audit-log")
	accountsBucket        = []byte("accounts")
	positionsBucket       = []byte("positions")
	accountAttemptsBucket = []byte("account-attempts")
)

// allBuckets lists every bucket created at store open.
func allBuckets() [][]byte {
	return [][]byte{
		botsBucket,
		generationsBucket,
		generationIndexBucket,
		sessionsBucket,
		sessionIndexBucket,
		tradesBucket,
		stageChangesBucket,
		approvalsBucket,
		auditBucket,
		accountsBucket,
		positionsBucket,
		accountAttemptsBucket,
	}
}
