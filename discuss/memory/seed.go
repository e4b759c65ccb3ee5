package memory

import (
	"time"

	"github.com/nasermirzaei89/commentbox/discuss"
)

// SeedObjectID is the object the demo thread belongs to.
const SeedObjectID = "test-object"

// SeedComments returns the demo thread: three top-level comments and three replies,
// timestamped relative to now.
func SeedComments(now time.Time) []*discuss.Comment {
	ts := now.Unix()

	tester := discuss.Author{
		ID:         "user-1",
		Nickname:   "tester1",
		ProfileURL: "https://via.placeholder.com/40",
		IsManager:  false,
	}

	manager := discuss.Author{
		ID:         "user-2",
		Nickname:   "manager",
		ProfileURL: "https://via.placeholder.com/40",
		IsManager:  true,
	}

	regular := discuss.Author{
		ID:        "user-3",
		Nickname:  "regular",
		IsManager: false,
	}

	parentOf := func(id string) *string {
		return &id
	}

	return []*discuss.Comment{
		{
			ID:         "comment-1",
			ObjectID:   SeedObjectID,
			Content:    "First comment. This comment box is really useful!",
			Author:     tester,
			CreatedAt:  ts - 3600,
			UpdatedAt:  ts - 3600,
			ReplyCount: 2,
		},
		{
			ID:         "comment-2",
			ObjectID:   SeedObjectID,
			Content:    "Second comment.",
			Author:     manager,
			CreatedAt:  ts - 7200,
			UpdatedAt:  ts - 7200,
			ReplyCount: 0,
		},
		{
			ID:         "comment-3",
			ObjectID:   SeedObjectID,
			Content:    "Third comment. Have a nice day!",
			Author:     regular,
			CreatedAt:  ts - 86400,
			UpdatedAt:  ts - 86400,
			ReplyCount: 1,
		},
		{
			ID:        "reply-1",
			ObjectID:  SeedObjectID,
			ParentID:  parentOf("comment-1"),
			Content:   "A reply to the first comment.",
			Author:    discuss.Author{ID: manager.ID, Nickname: manager.Nickname, IsManager: true},
			CreatedAt: ts - 1800,
			UpdatedAt: ts - 1800,
		},
		{
			ID:        "reply-2",
			ObjectID:  SeedObjectID,
			ParentID:  parentOf("comment-1"),
			Content:   "I agree!",
			Author:    regular,
			CreatedAt: ts - 900,
			UpdatedAt: ts - 900,
		},
		{
			ID:        "reply-3",
			ObjectID:  SeedObjectID,
			ParentID:  parentOf("comment-3"),
			Content:   "Thanks!",
			Author:    discuss.Author{ID: tester.ID, Nickname: tester.Nickname},
			CreatedAt: ts - 43200,
			UpdatedAt: ts - 43200,
		},
	}
}
