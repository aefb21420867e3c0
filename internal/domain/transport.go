package domain

// TransportErrorSnapshot is an aggregate view of classified transport errors,
// reported periodically by the health monitor.
type TransportErrorSnapshot struct {
	BenignResets    int64 `json:"benign_resets"`
	Faults          int64 `json:"faults"`
	NormalCloses    int64 `json:"normal_closes"`
	AbnormalCloses  int64 `json:"abnormal_closes"`
	UnusualCloses   int64 `json:"unusual_closes"`
	TotalDisconnect int64 `json:"total_disconnects"`
}
