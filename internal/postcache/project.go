package postcache

import (
	"fmt"

	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

// FromCommit derives the ephemeral Post projection of a single commit:
// explicit when a GitMsg header parses and validates, implicit
// otherwise, always
// typed via gitmsg.DetectPostType so post-type detection stays a pure
// function of the parsed message (or its absence).
func FromCommit(repository string, c gitref.Commit) Post {
	id := fmt.Sprintf("#commit:%s", shortHash(c.Hash))

	msg, ok := gitmsg.ParseMessage(c.Message)
	source := "implicit"
	clean := c.Message
	var postType gitmsg.PostType = gitmsg.PostTypePost
	var refs []string
	if ok && gitmsg.Validate(msg) {
		source = "explicit"
		clean = gitmsg.CleanContent(c.Message)
		postType = gitmsg.DetectPostType(msg)
		for _, r := range msg.Refs {
			refs = append(refs, r.Ref)
		}
	}

	return Post{
		ID:           id,
		Repository:   repository,
		AuthorName:   c.AuthorName,
		AuthorEmail:  c.AuthorEmail,
		Timestamp:    c.Time,
		Content:      c.Message,
		CleanContent: clean,
		Type:         postType,
		Source:       source,
		References:   refs,
	}
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
