package domain

import "time"

// ResponseFilter narrows admin response listings. Zero values mean "any".
type ResponseFilter struct {
	SurveyID      string
	InterviewerID string
	Status        string
	Mode          string
	BatchID       string
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
}

// BatchFilter narrows admin batch listings. Zero values mean "any".
type BatchFilter struct {
	SurveyID      string
	InterviewerID string
	Status        string
	BatchDate     *time.Time
}
