package store

import (
	"time"
)

// Role constants.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Post status constants.
const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// DefaultSettingsOwner owns the single project visibility record.
const DefaultSettingsOwner = "default"

// User is a registered account, keyed by the identity provider's uid.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UID         string    `gorm:"uniqueIndex;not null" json:"uid"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `gorm:"not null;default:user" json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session represents an active user session.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Token        string     `gorm:"uniqueIndex;not null" json:"-"`
	UserID       uint       `gorm:"not null" json:"user_id"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
}

// Credential is an email/password login used by the local identity
// provider.
type Credential struct {
	ID           uint      `gorm:"primaryKey"`
	UID          string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	DisplayName  string
	CreatedAt    time.Time
}

// BlogPost is a blog article together with its moderation state.
type BlogPost struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"not null"`
	Excerpt   string `gorm:"not null"`
	Content   string `gorm:"type:text"`
	Image     string
	Date      string
	ReadTime  string
	Category  string
	Published bool   `gorm:"not null;default:false;index"`
	Status    string `gorm:"not null;default:draft;index"`

	AuthorUID   string `gorm:"index"`
	AuthorEmail string
	AuthorName  string

	SubmittedAt     *time.Time
	ReviewedAt      *time.Time
	ReviewedBy      string
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides gorm's pluralized default.
func (BlogPost) TableName() string {
	return "blog_posts"
}

// HasAuthor reports whether the post carries an author sub-record.
func (p *BlogPost) HasAuthor() bool {
	return p.AuthorUID != ""
}

// IsPublic applies the public listing rule: a post is visible to
// anonymous readers only when it is both published and approved.
func (p *BlogPost) IsPublic() bool {
	return p.Published && p.Status == StatusApproved
}

// ProjectSettings stores the repository visibility map for one owner,
// keyed by repository id, in a JSON column.
type ProjectSettings struct {
	ID         uint            `gorm:"primaryKey"`
	Owner      string          `gorm:"uniqueIndex;not null"`
	Visibility map[string]bool `gorm:"serializer:json;type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PostFilter narrows ListPosts results. Zero values mean "no filter".
type PostFilter struct {
	// Published filters on the raw published flag.
	Published *bool
	// PublicOnly applies the public listing rule (published and approved).
	PublicOnly bool
	Status     string
	AuthorUID  string
	// SortBySubmitted orders by submission time instead of creation time.
	SortBySubmitted bool
}
