package models

import "time"

// KnowledgeFile describes one document attached to a user's knowledge index
type KnowledgeFile struct {
	ID              string     `json:"id" firestore:"id"`
	Filename        string     `json:"filename" firestore:"filename"`
	Bytes           int64      `json:"bytes" firestore:"bytes"`
	Status          string     `json:"status" firestore:"status"`
	LastProcessedAt *time.Time `json:"last_processed_at" firestore:"last_processed_at"`
}

// KnowledgeRecord is the persisted view of a user's index
type KnowledgeRecord struct {
	UserID    string          `json:"-" firestore:"user_id"`
	IndexID   string          `json:"indexId" firestore:"index_id"`
	Files     []KnowledgeFile `json:"files" firestore:"files"`
	UpdatedAt time.Time       `json:"updatedAt" firestore:"updated_at"`
}

// KnowledgeHit is a single search result from the index
type KnowledgeHit struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}
