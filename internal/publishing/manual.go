package publishing

import (
	"fmt"
	"strings"

	"github.com/vietddude/socialhub/internal/core/domain"
)

func manualPosting(post *domain.Post) *ManualPosting {
	name := post.Platform.DisplayName()

	steps := []string{fmt.Sprintf("Open %s and start a new post.", name)}
	if post.MediaURL != "" {
		steps = append(steps, "Download the media from the link below and attach it.")
	}
	steps = append(steps,
		"Paste the copied text as the caption.",
		"Publish, then mark this post as published here so engagement can be tracked.",
	)

	var b strings.Builder
	fmt.Fprintf(&b, "%s posts from this account must be published manually.", name)
	for i, s := range steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}

	return &ManualPosting{
		Instructions:  b.String(),
		ContentToCopy: post.Content,
		MediaURL:      post.MediaURL,
		PlatformURL:   domain.PlatformHomeURL[post.Platform],
	}
}
