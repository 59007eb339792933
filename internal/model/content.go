package model

import "time"

// ProcessingStatus tracks where a unit of content is in the trust pipeline.
// A completed unit has the status field removed entirely from the stored
// document; absence of the field means processing is done.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusInProgress ProcessingStatus = "in_progress"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Content is the structural interface shared by posts and comments so the
// pipeline stages can process either without adaptation.
type Content interface {
	ContentID() string
	AuthorID() string
	Body() string
	ImageRef() string
}

// Post represents a user-authored post.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author_id"`
	Text      string    `json:"text"`
	Image     string    `json:"image_ref,omitempty"` // Reference only; storage is out of scope
	CreatedAt time.Time `json:"created_at"`

	// RepostOf / QuoteOf reference an original post. A repost carries no
	// text of its own; a quote adds the author's own text on top.
	RepostOf string `json:"repost_of,omitempty"`
	QuoteOf  string `json:"quote_of,omitempty"`

	Insights Insights `json:"insights,omitempty"`
}

func (p *Post) ContentID() string { return p.ID }
func (p *Post) AuthorID() string  { return p.Author }
func (p *Post) Body() string      { return p.Text }
func (p *Post) ImageRef() string  { return p.Image }

// IsShare reports whether the post re-shares another post.
func (p *Post) IsShare() bool { return p.RepostOf != "" || p.QuoteOf != "" }

// OriginalID returns the id of the re-shared post, or "" for original content.
func (p *Post) OriginalID() string {
	if p.RepostOf != "" {
		return p.RepostOf
	}
	return p.QuoteOf
}

// Comment represents a reply to a post. Comments form a tree via ParentID
// (empty for top-level comments); depth is bounded at creation time.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Author    string    `json:"author_id"`
	Text      string    `json:"text"`
	Image     string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Insights Insights `json:"insights,omitempty"`
}

func (c *Comment) ContentID() string { return c.ID }
func (c *Comment) AuthorID() string  { return c.Author }
func (c *Comment) Body() string      { return c.Text }
func (c *Comment) ImageRef() string  { return c.Image }

// Insights is the incrementally persisted pipeline output for one unit of
// content. Every field is optional: a stage that fails simply leaves its
// field absent and downstream stages work with what exists.
type Insights struct {
	Claims              []Claim            `json:"claims,omitempty"`
	FactChecks          []FactCheck        `json:"fact_checks,omitempty"`
	FactCheckStatus     PolicyStatus       `json:"fact_check_status,omitempty"`
	ValueScore          *ValueScore        `json:"value_score,omitempty"`
	ValueExplanation    string             `json:"value_explanation,omitempty"`
	DiscussionQuality   *DiscussionQuality `json:"discussion_quality,omitempty"`
	ProcessingStatus    ProcessingStatus   `json:"processing_status,omitempty"`
	ProcessingStartedAt *time.Time         `json:"processing_started_at,omitempty"`
}
