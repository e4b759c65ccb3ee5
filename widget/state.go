package widget

import (
	"maps"

	"github.com/nasermirzaei89/commentbox/discuss"
)

// State is the widget's view of the thread. Instances hand out copies only.
type State struct {
	Comments        []*discuss.Comment
	TotalCount      int
	CurrentPage     int
	TotalPages      int
	IsLoading       bool
	Error           error
	ExpandedReplies map[string]bool
	ReplyEditors    map[string]bool
	// EditingComment is the id of the comment whose body shows an edit composer.
	EditingComment string
}

func newState() State {
	return State{
		Comments:        make([]*discuss.Comment, 0),
		ExpandedReplies: make(map[string]bool),
		ReplyEditors:    make(map[string]bool),
	}
}

func (s State) clone() State {
	out := s

	out.Comments = make([]*discuss.Comment, 0, len(s.Comments))
	for _, c := range s.Comments {
		out.Comments = append(out.Comments, c.Clone())
	}

	out.ExpandedReplies = maps.Clone(s.ExpandedReplies)
	if out.ExpandedReplies == nil {
		out.ExpandedReplies = make(map[string]bool)
	}

	out.ReplyEditors = maps.Clone(s.ReplyEditors)
	if out.ReplyEditors == nil {
		out.ReplyEditors = make(map[string]bool)
	}

	return out
}

func (s State) findComment(id string) *discuss.Comment {
	for _, c := range s.Comments {
		if c.ID == id {
			return c
		}
	}

	return nil
}

// totalPages is ceil(total / pageSize).
func totalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}

	return (total + pageSize - 1) / pageSize
}
