// Package thread manages comment reply trees. Comments keep a parent
// pointer only; depth and subtree membership are computed on demand with
// iterative walks so a corrupt or adversarial chain cannot blow the stack.
package thread

import (
	"errors"
	"fmt"

	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/store"
)

// ErrTooDeep is returned when a reply would exceed the maximum depth.
var ErrTooDeep = errors.New("reply depth limit exceeded")

// ErrCycle is returned when the parent chain loops back on itself.
var ErrCycle = errors.New("comment parent chain contains a cycle")

// Threads validates and walks comment trees.
type Threads struct {
	store    *store.Store
	maxDepth int
}

// New creates a thread manager. Depth 1 is a top-level comment.
func New(s *store.Store, maxDepth int) *Threads {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Threads{store: s, maxDepth: maxDepth}
}

// ValidateReply checks that a new comment may be created: its parent (if
// any) must exist on the same post and the resulting depth must stay within
// the limit.
func (t *Threads) ValidateReply(c *model.Comment) error {
	if c.ParentID == "" {
		return nil
	}
	parent, err := t.store.GetComment(c.ParentID)
	if err != nil {
		return fmt.Errorf("load parent comment: %w", err)
	}
	if parent.PostID != c.PostID {
		return errors.New("parent comment belongs to a different post")
	}
	depth, err := t.Depth(parent)
	if err != nil {
		return err
	}
	if depth+1 > t.maxDepth {
		return fmt.Errorf("%w: max %d", ErrTooDeep, t.maxDepth)
	}
	return nil
}

// Depth walks the parent chain iteratively and returns the comment's depth,
// where a top-level comment has depth 1.
func (t *Threads) Depth(c *model.Comment) (int, error) {
	depth := 1
	seen := map[string]bool{c.ID: true}
	cur := c
	for cur.ParentID != "" {
		if seen[cur.ParentID] {
			return 0, ErrCycle
		}
		seen[cur.ParentID] = true
		parent, err := t.store.GetComment(cur.ParentID)
		if err != nil {
			return 0, fmt.Errorf("load parent comment: %w", err)
		}
		depth++
		if depth > t.maxDepth {
			return 0, fmt.Errorf("%w: max %d", ErrTooDeep, t.maxDepth)
		}
		cur = parent
	}
	return depth, nil
}

// Subtree returns the given comment and all of its descendants, collected
// breadth-first over the post's full comment list.
func (t *Threads) Subtree(c *model.Comment) ([]*model.Comment, error) {
	all, err := t.store.ListCommentsByPost(c.PostID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	children := make(map[string][]*model.Comment, len(all))
	for _, cm := range all {
		if cm.ParentID != "" {
			children[cm.ParentID] = append(children[cm.ParentID], cm)
		}
	}

	result := []*model.Comment{c}
	queue := []*model.Comment{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur.ID] {
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}

// Build arranges a post's comments into parent-ordered traversal order:
// each comment appears after its parent, siblings oldest first. Orphans
// (parent missing) surface at the top level rather than disappearing.
func (t *Threads) Build(postID string) ([]*model.Comment, error) {
	all, err := t.store.ListCommentsByPost(postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	byID := make(map[string]*model.Comment, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	children := make(map[string][]*model.Comment, len(all))
	var roots []*model.Comment
	for _, c := range all {
		if c.ParentID == "" {
			roots = append(roots, c)
			continue
		}
		if _, ok := byID[c.ParentID]; !ok {
			roots = append(roots, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	var ordered []*model.Comment
	stack := make([]*model.Comment, len(roots))
	// Reverse so the oldest root pops first.
	for i, r := range roots {
		stack[len(roots)-1-i] = r
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ordered = append(ordered, cur)
		kids := children[cur.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return ordered, nil
}
