package models

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// ConversationFilter selects which conversations GetConversations returns.
type ConversationFilter string

const (
	ConversationFilterAll      ConversationFilter = "all"
	ConversationFilterUnread   ConversationFilter = "unread"
	ConversationFilterArchived ConversationFilter = "archived"
)

// ConversationSort orders the result of GetConversations.
type ConversationSort string

const (
	ConversationSortRecent       ConversationSort = "recent"
	ConversationSortUnreadFirst  ConversationSort = "unread_first"
	ConversationSortAlphabetical ConversationSort = "alphabetical"
	ConversationSortPinnedFirst  ConversationSort = "pinned_first"
)

// Conversation is the thread-level aggregate for a single normalized
// recipient identifier.
type Conversation struct {
	ID                   int64      `db:"id" json:"id"`
	ThreadID             string     `db:"thread_id" json:"threadId"`
	RecipientNumber      string     `db:"recipient_number" json:"recipientNumber"`
	RecipientName        string     `db:"recipient_name" json:"recipientName,omitempty"`
	LastMessageTimestamp time.Time  `db:"last_message_timestamp" json:"lastMessageTimestamp"`
	Snippet              string     `db:"snippet" json:"snippet,omitempty"`
	UnreadCount          int        `db:"unread_count" json:"unreadCount"`
	Archived             bool       `db:"archived" json:"archived"`
	Pinned               bool       `db:"pinned" json:"pinned"`
	Muted                bool       `db:"muted" json:"muted"`
	DraftText            *string    `db:"draft_text" json:"draftText,omitempty"`
	DraftSavedAt         *time.Time `db:"draft_saved_at" json:"draftSavedAt,omitempty"`
	Color                string     `db:"color" json:"color,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// MaxSnippetLength bounds Conversation.Snippet per the data model.
const MaxSnippetLength = 100

// TruncateSnippet trims body to at most MaxSnippetLength runes.
func TruncateSnippet(body string) string {
	r := []rune(body)
	if len(r) <= MaxSnippetLength {
		return body
	}
	return string(r[:MaxSnippetLength])
}

// ColorForAddress derives a stable color hash for a normalized address,
// used when a Conversation is first created.
func ColorForAddress(address string) string {
	sum := sha1.Sum([]byte(address))
	return "#" + hex.EncodeToString(sum[:3])
}

// ConversationListOptions bundles the GetConversations query parameters.
type ConversationListOptions struct {
	Filter ConversationFilter
	Sort   ConversationSort
	Query  string
	Limit  int
	Offset int
}
