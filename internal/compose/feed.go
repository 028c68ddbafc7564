// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package compose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// ErrNoPosts is returned when the content provider has no published posts.
var ErrNoPosts = errors.New("no published posts found")

// Post is a published blog post. Either Markdown or HTML holds the content.
type Post struct {
	Title       string
	Author      string
	Description string
	URL         string
	Tags        []string
	Date        time.Time
	Markdown    string
	HTML        string
}

// PostProvider returns the latest published post.
type PostProvider interface {
	LatestPost(ctx context.Context) (*Post, error)
}

// FeedProvider reads posts from the RSS or Atom feed of the blog.
type FeedProvider struct {
	url    string
	parser *gofeed.Parser
}

// NewFeedProvider creates a provider for the feed url.
func NewFeedProvider(url string) *FeedProvider {
	return &FeedProvider{
		url:    url,
		parser: gofeed.NewParser(),
	}
}

// LatestPost fetches the feed and returns its most recent item.
func (p *FeedProvider) LatestPost(ctx context.Context) (*Post, error) {
	feed, err := p.parser.ParseURLWithContext(p.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read feed %q: %w", p.url, err)
	}

	return LatestFromFeed(feed)
}

// LatestFromFeed returns the item of the feed with the most recent publication date.
func LatestFromFeed(feed *gofeed.Feed) (*Post, error) {
	var (
		latest     *gofeed.Item
		latestDate time.Time
	)

	for _, item := range feed.Items {
		date := itemDate(item)

		if latest == nil || date.After(latestDate) {
			latest, latestDate = item, date
		}
	}

	if latest == nil {
		return nil, ErrNoPosts
	}

	post := Post{
		Title:       latest.Title,
		Description: latest.Description,
		URL:         latest.Link,
		Tags:        latest.Categories,
		Date:        latestDate,
		HTML:        latest.Content,
	}

	if post.HTML == "" {
		post.HTML = latest.Description
	}

	if len(latest.Authors) > 0 {
		post.Author = latest.Authors[0].Name
	} else if latest.Author != nil {
		post.Author = latest.Author.Name
	}

	return &post, nil
}

func itemDate(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	default:
		return time.Time{}
	}
}
