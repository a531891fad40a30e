package sessions

import "time"

// Record holds the credential pair a client last authenticated with,
// correlated to the client by an opaque session identifier and scoped
// to one collection. Query keeps the narrowing filter the signin was
// made under; it is re-applied on every use. Presence of a record is
// never sufficient for trust: the pair is re-verified against the
// account store each time.
type Record struct {
	SessionID  string         `bson:"sessionId" json:"sessionId"`
	Collection string         `bson:"collection" json:"collection"`
	Key        string         `bson:"key" json:"key"`
	Password   string         `bson:"password" json:"password"`
	Query      map[string]any `bson:"query,omitempty" json:"query,omitempty"`
	CreatedAt  time.Time      `bson:"createdAt" json:"createdAt"`
	ExpiresAt  time.Time      `bson:"expiresAt" json:"expiresAt"`
}
