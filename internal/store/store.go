// Package store is the typed access layer over the document store. It maps
// posts, comments, contribution records, and trust scores to their
// collections and keeps the patch vocabulary for pipeline progress in one
// place.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/model"
)

// Collection names.
const (
	ColPosts         = "posts"
	ColComments      = "comments"
	ColContributions = "contributions"
	ColTrustScores   = "trust_scores"
)

// ErrNotFound mirrors the docstore sentinel for callers that do not want to
// import docstore directly.
var ErrNotFound = docstore.ErrNotFound

// Store wraps a document store with typed operations.
type Store struct {
	docs docstore.Store
}

// New creates a typed store over the given document store.
func New(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// Docs exposes the underlying document store.
func (s *Store) Docs() docstore.Store { return s.docs }

// Close closes the underlying document store.
func (s *Store) Close() error { return s.docs.Close() }

// toDoc converts a struct to a JSON document map.
func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}

// fromDoc converts a document map back into a typed value.
func fromDoc(doc *docstore.Document, v any) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// CreatePost stores a new post.
func (s *Store) CreatePost(p *model.Post) error {
	doc, err := toDoc(p)
	if err != nil {
		return err
	}
	return s.docs.Create(ColPosts, p.ID, doc)
}

// GetPost retrieves a post by id.
func (s *Store) GetPost(id string) (*model.Post, error) {
	doc, err := s.docs.Get(ColPosts, id)
	if err != nil {
		return nil, err
	}
	var p model.Post
	if err := fromDoc(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateComment stores a new comment.
func (s *Store) CreateComment(c *model.Comment) error {
	doc, err := toDoc(c)
	if err != nil {
		return err
	}
	return s.docs.Create(ColComments, c.ID, doc)
}

// GetComment retrieves a comment by id.
func (s *Store) GetComment(id string) (*model.Comment, error) {
	doc, err := s.docs.Get(ColComments, id)
	if err != nil {
		return nil, err
	}
	var c model.Comment
	if err := fromDoc(doc, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCommentsByPost returns all comments on a post, oldest first.
func (s *Store) ListCommentsByPost(postID string) ([]*model.Comment, error) {
	res, err := s.docs.Query(ColComments, docstore.Query{
		Filters:   []docstore.Filter{{Field: "post_id", Op: "==", Value: postID}},
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}
	comments := make([]*model.Comment, 0, len(res.Docs))
	for i := range res.Docs {
		var c model.Comment
		if err := fromDoc(&res.Docs[i], &c); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, nil
}

// PatchPostInsights applies a partial insights update to a post. Keys are
// relative to the insights object; untouched fields are not written.
func (s *Store) PatchPostInsights(id string, patch docstore.Patch) error {
	return s.docs.Update(ColPosts, id, prefixInsights(patch))
}

// PatchCommentInsights applies a partial insights update to a comment.
func (s *Store) PatchCommentInsights(id string, patch docstore.Patch) error {
	return s.docs.Update(ColComments, id, prefixInsights(patch))
}

// PatchInsights routes an insights patch to the right collection for a unit
// of content.
func (s *Store) PatchInsights(content model.Content, patch docstore.Patch) error {
	switch content.(type) {
	case *model.Post:
		return s.PatchPostInsights(content.ContentID(), patch)
	case *model.Comment:
		return s.PatchCommentInsights(content.ContentID(), patch)
	default:
		return errors.New("unknown content type")
	}
}

func prefixInsights(patch docstore.Patch) docstore.Patch {
	out := make(docstore.Patch, len(patch))
	for k, v := range patch {
		out["insights."+k] = v
	}
	return out
}

// ListSharesOf returns posts that repost or quote the given original.
func (s *Store) ListSharesOf(originalID string) ([]*model.Post, error) {
	var shares []*model.Post
	for _, field := range []string{"repost_of", "quote_of"} {
		res, err := s.docs.Query(ColPosts, docstore.Query{
			Filters:   []docstore.Filter{{Field: field, Op: "==", Value: originalID}},
			Ascending: true,
		})
		if err != nil {
			return nil, err
		}
		for i := range res.Docs {
			var p model.Post
			if err := fromDoc(&res.Docs[i], &p); err != nil {
				return nil, err
			}
			shares = append(shares, &p)
		}
	}
	return shares, nil
}

// ListPostsByStatus returns up to limit posts in the given processing
// status, oldest first.
func (s *Store) ListPostsByStatus(status model.ProcessingStatus, limit int) ([]*model.Post, error) {
	res, err := s.docs.Query(ColPosts, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "insights.processing_status", Op: "==", Value: string(status)},
		},
		Ascending: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	posts := make([]*model.Post, 0, len(res.Docs))
	for i := range res.Docs {
		var p model.Post
		if err := fromDoc(&res.Docs[i], &p); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, nil
}

// ListCommentsByStatus returns up to limit comments in the given processing
// status, oldest first.
func (s *Store) ListCommentsByStatus(status model.ProcessingStatus, limit int) ([]*model.Comment, error) {
	res, err := s.docs.Query(ColComments, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "insights.processing_status", Op: "==", Value: string(status)},
		},
		Ascending: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	comments := make([]*model.Comment, 0, len(res.Docs))
	for i := range res.Docs {
		var c model.Comment
		if err := fromDoc(&res.Docs[i], &c); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, nil
}

// CreateContribution appends a ledger row.
func (s *Store) CreateContribution(rec *model.ContributionRecord) error {
	doc, err := toDoc(rec)
	if err != nil {
		return err
	}
	return s.docs.Create(ColContributions, rec.ID, doc)
}

// ListContributions returns all ledger rows for a user created at or after
// the cutoff. A zero cutoff returns the full lifetime ledger.
func (s *Store) ListContributions(userID string, since time.Time) ([]*model.ContributionRecord, error) {
	filters := []docstore.Filter{{Field: "user_id", Op: "==", Value: userID}}
	if !since.IsZero() {
		filters = append(filters, docstore.Filter{Field: "created_at", Op: ">=", Value: since})
	}
	res, err := s.docs.Query(ColContributions, docstore.Query{
		Filters:   filters,
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}
	records := make([]*model.ContributionRecord, 0, len(res.Docs))
	for i := range res.Docs {
		var rec model.ContributionRecord
		if err := fromDoc(&res.Docs[i], &rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, nil
}

// FindContribution looks up a ledger row by its idempotency key
// (user + source + type). Returns nil when absent.
func (s *Store) FindContribution(userID, sourceID string, typ model.ContributionType) (*model.ContributionRecord, error) {
	records, err := s.ListContributions(userID, time.Time{})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.SourceID == sourceID && rec.Type == typ {
			return rec, nil
		}
	}
	return nil, nil
}

// GetTrustScore retrieves a user's trust score. Returns nil when the user
// has no score yet.
func (s *Store) GetTrustScore(userID string) (*model.TrustScore, error) {
	doc, err := s.docs.Get(ColTrustScores, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ts model.TrustScore
	if err := fromDoc(doc, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// PutTrustScore creates or replaces a user's trust score document.
func (s *Store) PutTrustScore(ts *model.TrustScore) error {
	doc, err := toDoc(ts)
	if err != nil {
		return err
	}
	err = s.docs.Create(ColTrustScores, ts.UserID, doc)
	if errors.Is(err, docstore.ErrExists) {
		patch := make(docstore.Patch, len(doc))
		for k, v := range doc {
			patch[k] = v
		}
		return s.docs.Update(ColTrustScores, ts.UserID, patch)
	}
	return err
}
