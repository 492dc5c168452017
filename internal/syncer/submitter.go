package syncer

import (
	"context"

	"voicelog/internal/models"
)

// Submitter delivers one entry to the remote endpoint. Implementations must be
// idempotent on the request's ClientID and classify failures through
// apperr.Classifier.
type Submitter interface {
	SubmitEntry(ctx context.Context, entry models.SubmitEntryRequest) (*models.SubmitEntryResponse, error)
}
