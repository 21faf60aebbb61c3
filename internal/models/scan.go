package models

import (
	"time"
)

// Upload statuses, in the order an analysis submission moves through them
const (
	ScanIdle      = "idle"
	ScanUploading = "uploading"
	ScanAnalyzing = "analyzing"
	ScanSuccess   = "success"
	ScanError     = "error"
)

// UploadScan records one image submitted for analysis
type UploadScan struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ResultID    int64     `json:"result_id,omitempty"` // canned food created by the backend
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
