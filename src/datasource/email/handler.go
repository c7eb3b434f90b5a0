// handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AttachmentHandler saves CSV and spreadsheet attachments of matching
// emails into the data directory, where the file monitor picks them up.
type AttachmentHandler struct {
	TargetSubject string
	DataDir       string

	processedUIDs map[uint32]bool
	mu            sync.RWMutex
}

func NewAttachmentHandler(subject, dataDir string) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

func (h *AttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *AttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle saves every .csv/.xlsx/.xls attachment of the email. The UID is
// marked processed only after at least one attachment was saved, so an
// empty mail can be retried once it gains an attachment.
func (h *AttachmentHandler) Handle(email *Email) error {
	if h.isProcessed(email.UID) {
		return nil
	}
	if !strings.Contains(email.Subject, h.TargetSubject) {
		return nil
	}

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	saved := false
	for _, attachment := range email.Attachments {
		if !isDataAttachment(attachment.Filename) {
			continue
		}

		// strip any path component a hostile sender might smuggle in
		filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return fmt.Errorf("saving attachment %q: %w", attachment.Filename, err)
		}
		saved = true
	}

	if saved {
		h.markAsProcessed(email.UID)
	}
	return nil
}

func isDataAttachment(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}
