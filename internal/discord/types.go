package discord

import "time"

// Wire types for raw REST calls. Only the fields the dashboard consumes.

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Banner        string `json:"banner,omitempty"`
	Bot           bool   `json:"bot"`
}

type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	MemberCount int    `json:"approximate_member_count,omitempty"`
	Presences   int    `json:"approximate_presence_count,omitempty"`
}

type Member struct {
	User     User       `json:"user"`
	Nick     string     `json:"nick,omitempty"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Channel type constants (subset of the wire protocol).
const (
	ChannelTypeText  = 0
	ChannelTypeVoice = 2
)

type DMChannel struct {
	ID string `json:"id"`
}

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Sticker struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	FormatType  int    `json:"format_type"`
	Available   bool   `json:"available"`
}

// PresenceUpdate describes a requested bot presence change.
type PresenceUpdate struct {
	Status       string // online | idle | dnd | invisible
	ActivityType string // playing | streaming | listening | watching | custom | competing
	ActivityName string
	StreamingURL string
}

// ProfileUpdate patches the bot account itself. Nil fields are left alone.
// Avatar/Banner are data URIs ("data:image/png;base64,...").
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Banner   *string `json:"banner,omitempty"`
}
