// Package feed renders recent star events as an RSS document.
package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/feeds"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
)

// Renderer turns star events into an RSS feed.
type Renderer struct {
	title   string
	siteURL string
}

// NewRenderer creates a renderer. siteURL is used as the channel link.
func NewRenderer(title, siteURL string) *Renderer {
	return &Renderer{title: title, siteURL: siteURL}
}

// Render produces the RSS XML for the given events, newest star first. The
// GUID is derived from the event identity, so readers deduplicate reliably
// across fetches.
func (r *Renderer) Render(events []domain.StarEvent, generatedAt time.Time) (string, error) {
	ordered := append([]domain.StarEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.After(ordered[j].OccurredAt)
	})

	out := &feeds.Feed{
		Title:       r.title,
		Link:        &feeds.Link{Href: r.siteURL},
		Description: "Repositories recently starred by accounts you follow",
		Created:     generatedAt,
	}

	for _, ev := range ordered {
		out.Items = append(out.Items, &feeds.Item{
			Title:       fmt.Sprintf("%s starred %s", ev.AccountHandle, ev.RepoFullName),
			Link:        &feeds.Link{Href: ev.RepoHTMLURL},
			Description: itemDescription(ev),
			Id:          GUID(ev),
			Created:     ev.OccurredAt,
		})
	}

	return out.ToRss()
}

// GUID is the stable per-event identifier used as the RSS item id.
func GUID(ev domain.StarEvent) string {
	return fmt.Sprintf("github-star://%s/%s/%s",
		ev.AccountHandle, ev.RepoFullName, ev.OccurredAt.UTC().Format(time.RFC3339))
}

func itemDescription(ev domain.StarEvent) string {
	desc := ev.RepoDescription
	if desc == "" {
		desc = "No description"
	}
	if ev.RepoLanguage != "" {
		return fmt.Sprintf("%s (%s)", desc, ev.RepoLanguage)
	}
	return desc
}
