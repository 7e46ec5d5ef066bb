package contracts

// CallbackStatus reports the outcome of processing one SyncRequest.
type CallbackStatus string

const (
	// StatusSuccess means the device agent applied the mutation.
	StatusSuccess CallbackStatus = "success"
	// StatusFailure means the device agent could not apply the mutation.
	StatusFailure CallbackStatus = "failure"
)

// SyncCallback represents the device agent's result for one SyncRequest.
// ContactID correlates by value to the originating request's ID; the
// harness treats that correlation as advisory and never enforces it.
type SyncCallback struct {
	ContactID        string         `json:"contact_id"`
	Status           CallbackStatus `json:"status"`
	Message          string         `json:"message,omitempty"`
	Error            string         `json:"error,omitempty"`
	AndroidContactID string         `json:"android_contact_id,omitempty"`
	DeviceID         string         `json:"device_id"`
	Timestamp        int64          `json:"timestamp"`
}

// Succeeded reports whether the callback carries a success status. The
// status field alone decides the outcome; an error string on a success
// callback is a malformed fixture, not a failure.
func (c *SyncCallback) Succeeded() bool {
	return c.Status == StatusSuccess
}
