package domain

import "time"

// StarEvent represents a single "account starred a repository" observation.
// Events are immutable once stored; (AccountID, RepoFullName, OccurredAt) is
// the dedup key and Sequence is assigned by the store at insert time to break
// ties between events that share a timestamp.
type StarEvent struct {
	Sequence        int64     `json:"sequence"`
	AccountID       int64     `json:"-"`
	AccountHandle   string    `json:"login"`
	RepoFullName    string    `json:"repo_full_name"`
	RepoHTMLURL     string    `json:"repo_html_url"`
	RepoDescription string    `json:"repo_description,omitempty"`
	RepoLanguage    string    `json:"repo_language,omitempty"`
	RepoTopics      []string  `json:"repo_topics"`
	OccurredAt      time.Time `json:"starred_at"`
	ObservedAt      time.Time `json:"observed_at"`
	AccountTier     string    `json:"account_activity_tier,omitempty"`
}
