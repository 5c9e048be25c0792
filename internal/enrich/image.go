package enrich

import "github.com/TobiSchelling/benreader/internal/feed"

// ChannelImage returns the feed's own image: an RSS image/url, an iTunes
// image href, or an Atom logo or icon. It returns "" when none is set.
func ChannelImage(channel *feed.Node) string {
	if u := channel.Child("image").Child("url"); u != nil && u.Text != "" {
		return u.Text
	}
	if href := channel.Child("itunes:image").Attr("href"); href != "" {
		return href
	}
	for _, name := range []string{"logo", "icon"} {
		if n := channel.Child(name); n != nil && !n.Structured() && n.Text != "" {
			return n.Text
		}
	}
	return ""
}
