package database

// Folder groups feeds. Order is the display position.
type Folder struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Feed is a subscription. Timestamps are epoch milliseconds.
type Feed struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	XMLURL        string  `json:"xmlUrl"`
	HTMLURL       string  `json:"htmlUrl"`
	FolderID      int64   `json:"folderId"`
	ImageURL      *string `json:"imageUrl,omitempty"`
	BrandColor    *string `json:"brandColor,omitempty"`
	LastFetchedAt *int64  `json:"lastFetchedAt,omitempty"`
}

// Post is one stored feed item. GUID is unique across all feeds.
type Post struct {
	ID          int64   `json:"id"`
	FeedID      int64   `json:"feedId"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     *string `json:"content,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	PublishedAt int64   `json:"publishedAt"`
	IsRead      bool    `json:"isRead"`
	IsStarred   bool    `json:"isStarred"`
	IsPaywalled bool    `json:"isPaywalled"`
	ReadAt      *int64  `json:"readAt,omitempty"`
	GUID        string  `json:"guid"`
	Author      *string `json:"author,omitempty"`
	WordCount   *int    `json:"wordCount,omitempty"`
}

// PostView is a post with the display fields of its feed.
type PostView struct {
	Post
	FeedTitle      string  `json:"feedTitle"`
	FeedImageURL   *string `json:"feedImageUrl,omitempty"`
	FeedHTMLURL    *string `json:"feedHtmlUrl,omitempty"`
	FeedBrandColor *string `json:"feedBrandColor,omitempty"`
}

// NewPost is a post as produced by a refresh, before it has an ID.
type NewPost struct {
	Title       string
	URL         string
	Content     *string
	ImageURL    *string
	PublishedAt int64
	GUID        string
	Author      *string
	IsPaywalled bool
	WordCount   *int
}

// UpsertResult counts what an UpsertPosts call did.
type UpsertResult struct {
	Inserted       int
	PaywallUpdated int
	Unchanged      int
}

// PostFilter selects posts for ListPosts. At most one scope applies, in
// the order HistoryOnly, StarredOnly, FeedID, FolderID.
type PostFilter struct {
	FeedID      *int64
	FolderID    *int64
	StarredOnly bool
	HistoryOnly bool
	Limit       int
}

// Stats summarizes the database contents.
type Stats struct {
	Folders int
	Feeds   int
	Posts   int
	Unread  int
	Starred int
}
