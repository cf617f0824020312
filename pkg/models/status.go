package models

// ArticleStatus represents the processing status of an article URL in the database
type ArticleStatus string

const (
	ArticleStatusUnset    ArticleStatus = ""          // Zero value = unset/unknown
	ArticleStatusPending  ArticleStatus = "pending"   // URL queued but not processed
	ArticleStatusSuccess  ArticleStatus = "success"   // Article extracted and saved
	ArticleStatusFailure  ArticleStatus = "failure"   // Fetch or extraction failed
	ArticleStatusSkipped  ArticleStatus = "skipped"   // Deliberately not saved (duplicate content, filtered)
	ArticleStatusNotFound ArticleStatus = "not_found" // URL not in database
	ArticleStatusDBError  ArticleStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s ArticleStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ArticleStatus) IsValid() bool {
	switch s {
	case ArticleStatusPending, ArticleStatusSuccess, ArticleStatusFailure, ArticleStatusSkipped:
		return true
	}
	return false
}

// IsTerminal returns true for statuses that will not be retried on resume
func (s ArticleStatus) IsTerminal() bool {
	return s == ArticleStatusSuccess || s == ArticleStatusSkipped
}
