package profile

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no profile matches
	ErrNotFound = errors.New("profile not found")
	// ErrAlreadyLinked is returned when the identity already has a profile
	ErrAlreadyLinked = errors.New("identity already has a profile")
)

// DefaultCountry is used when an address omits the country
const DefaultCountry = "Perú"

// Status mirrors the identity's account state for read convenience
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusInactive            Status = "INACTIVE"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusLocked              Status = "LOCKED"
	StatusDeleted             Status = "DELETED"
)

// StatusFor derives the mirrored status from identity flags. Deletion wins
// over lock, lock over disabled, disabled over unverified.
func StatusFor(enabled, locked, verified, deleted bool) Status {
	switch {
	case deleted:
		return StatusDeleted
	case locked:
		return StatusLocked
	case !enabled:
		return StatusInactive
	case !verified:
		return StatusPendingVerification
	default:
		return StatusActive
	}
}

// Address is a postal address
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

// NotificationPreferences are the user's opt-ins
type NotificationPreferences struct {
	EmailAlerts        bool `json:"email_alerts"`
	InAppNotifications bool `json:"in_app_notifications"`
	MarketingEmails    bool `json:"marketing_emails"`
	OrderUpdates       bool `json:"order_updates"`
}

// DefaultNotificationPreferences returns the opt-ins for a new profile
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailAlerts:        true,
		InAppNotifications: true,
		MarketingEmails:    false,
		OrderUpdates:       true,
	}
}

// Profile holds non-authoritative user data. Email, Name, Status, Role and
// Verified are copies of identity fields kept current by the synchronizer.
type Profile struct {
	ID         string `json:"id"`
	IdentityID int64  `json:"identity_id,omitempty"`

	// Mirrored from the identity
	Email    string `json:"email"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`

	FirstName   string                  `json:"first_name,omitempty"`
	LastName    string                  `json:"last_name,omitempty"`
	Phone       string                  `json:"phone,omitempty"`
	Address     *Address                `json:"address,omitempty"`
	Preferences NotificationPreferences `json:"notification_preferences"`
	Metadata    map[string]interface{}  `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the mirrored status is ACTIVE
func (p *Profile) Active() bool {
	return p.Status == StatusActive
}

// Patch is a partial update of the user-editable attributes. Nil fields
// are left unchanged; metadata keys are merged, and a nil value removes
// the key.
type Patch struct {
	FirstName   *string                  `json:"first_name,omitempty"`
	LastName    *string                  `json:"last_name,omitempty"`
	Phone       *string                  `json:"phone,omitempty"`
	Address     *Address                 `json:"address,omitempty"`
	Preferences *NotificationPreferences `json:"notification_preferences,omitempty"`
	Metadata    map[string]interface{}   `json:"metadata,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil &&
		p.Address == nil && p.Preferences == nil && len(p.Metadata) == 0
}

// Fields names the attributes the patch touches, in a stable order
func (p Patch) Fields() []string {
	var fields []string
	if p.FirstName != nil {
		fields = append(fields, "first_name")
	}
	if p.LastName != nil {
		fields = append(fields, "last_name")
	}
	if p.Phone != nil {
		fields = append(fields, "phone")
	}
	if p.Address != nil {
		fields = append(fields, "address")
	}
	if p.Preferences != nil {
		fields = append(fields, "notification_preferences")
	}
	if len(p.Metadata) > 0 {
		fields = append(fields, "metadata")
	}
	return fields
}

// Apply merges the patch into the profile
func (p Patch) Apply(target *Profile) {
	if p.FirstName != nil {
		target.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		target.LastName = *p.LastName
	}
	if p.Phone != nil {
		target.Phone = *p.Phone
	}
	if p.Address != nil {
		addr := *p.Address
		if addr.Country == "" {
			addr.Country = DefaultCountry
		}
		target.Address = &addr
	}
	if p.Preferences != nil {
		target.Preferences = *p.Preferences
	}
	for k, v := range p.Metadata {
		if target.Metadata == nil {
			target.Metadata = make(map[string]interface{})
		}
		if v == nil {
			delete(target.Metadata, k)
			continue
		}
		target.Metadata[k] = v
	}
}
