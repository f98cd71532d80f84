package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PrimaryContextKey returns the cache key for a case's primary context
func (r *CacheKeyStruct) PrimaryContextKey(caseID string) string {
	return fmt.Sprintf("primary-context-%s", caseID)
}

// OSCEHistoryKey returns the cache key for a session's OSCE history questions
func (r *CacheKeyStruct) OSCEHistoryKey(sessionID string) string {
	return fmt.Sprintf("osce-history-%s", sessionID)
}

// OSCEFollowUpKey returns the cache key for a session's OSCE follow-up questions
func (r *CacheKeyStruct) OSCEFollowUpKey(sessionID string) string {
	return fmt.Sprintf("osce-followup-%s", sessionID)
}

// OSCEEvaluationKey returns the cache key for a session's OSCE evaluation
func (r *CacheKeyStruct) OSCEEvaluationKey(sessionID string) string {
	return fmt.Sprintf("osce-evaluation-%s", sessionID)
}

// OSCEAnswerKey returns the cache key for a case's hidden OSCE answer key
func (r *CacheKeyStruct) OSCEAnswerKey(caseID string) string {
	return fmt.Sprintf("osce-answers-%s", caseID)
}

// SecondaryContextKey returns the cache key for a case's autosaved secondary context
func (r *CacheKeyStruct) SecondaryContextKey(caseID string) string {
	return fmt.Sprintf("secondary-context-%s", caseID)
}

var CacheKey = NewCacheKeyStruct()
