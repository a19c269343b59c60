package inkdex

// RegisterRequest creates a persisted query from text, an image, or both.
type RegisterRequest struct {
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

// RegisterResult is the outcome of query registration.
type RegisterResult struct {
	QueryID        string  `json:"queryId"`
	DetectedStyles []Style `json:"detectedStyles,omitempty"`
	IsColor        *bool   `json:"isColor,omitempty"`
}

// Style is one detected style with classifier confidence.
type Style struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Image is one matching portfolio image in a result row.
type Image struct {
	ImageID    string  `json:"imageId"`
	Similarity float64 `json:"similarity"`
	LikesCount int     `json:"likesCount"`
	IsColor    *bool   `json:"isColor,omitempty"`
}

// Artist is one ranked result row.
type Artist struct {
	ArtistID      string  `json:"artistId"`
	MaxSimilarity float64 `json:"maxSimilarity"`
	StyleBoost    float64 `json:"styleBoost"`
	ColorBoost    float64 `json:"colorBoost"`
	Score         float64 `json:"score"`
	LocationCount int     `json:"locationCount"`
	Images        []Image `json:"images"`
}

// Page is one window of the ranked result list.
type Page struct {
	Artists    []Artist `json:"artists"`
	TotalCount int      `json:"totalCount"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
	HasMore    bool     `json:"hasMore"`
	QueryTime  int64    `json:"queryTime"`
}

// SearchOptions narrow and paginate a search.
type SearchOptions struct {
	Country string
	Region  string
	City    string
	Style   string
	Limit   int
}
