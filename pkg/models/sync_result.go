package models

// SyncResult is the outcome of one sync session as reported to a trigger caller
type SyncResult struct {
	Success    bool   `json:"success"`
	NewEmails  int    `json:"newEmails"`
	TotalFound int    `json:"totalFound"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`   // Human-readable classification
	Details    string `json:"details,omitempty"` // Raw cause
}
