package notify

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// LeadContact is the subset of a lead forwarded to the lead-processing
// webhook.
type LeadContact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
}

// LeadSyncJobArgs carries one batch of newly registered leads to the
// lead-processing webhook.
type LeadSyncJobArgs struct {
	PartnerID uuid.UUID     `json:"partner_id"`
	Leads     []LeadContact `json:"leads"`
}

func (LeadSyncJobArgs) Kind() string { return "lead_sync" }

func (LeadSyncJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: MaxAttempts}
}
