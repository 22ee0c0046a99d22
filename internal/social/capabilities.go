package social

// Features are the declarative feature flags of a platform.
type Features struct {
	Text       bool `json:"text"`
	Images     bool `json:"images"`
	Video      bool `json:"video"`
	Stories    bool `json:"stories"`
	Reels      bool `json:"reels"`
	Carousel   bool `json:"carousel"`
	Scheduling bool `json:"scheduling"`
	Hashtags   bool `json:"hashtags"`
	Mentions   bool `json:"mentions"`
	Links      bool `json:"links"`
	Threads    bool `json:"threads"`
}

// Limits are the numeric limits of a platform. A zero limit is not enforced.
type Limits struct {
	TextLength      int `json:"text_length"`
	HashtagsMax     int `json:"hashtags_max"`
	ImagesMax       int `json:"images_max"`
	VideoMaxSeconds int `json:"video_max_seconds"`
	FileMaxMB       int `json:"file_max_mb"`
	PostsPerDay     int `json:"posts_per_day"`
}

// CapabilityDescriptor is the static declaration of what a platform accepts.
type CapabilityDescriptor struct {
	Platform Platform `json:"platform"`
	Features Features `json:"features"`
	Limits   Limits   `json:"limits"`
}

var capabilities = map[Platform]CapabilityDescriptor{
	Facebook: {
		Platform: Facebook,
		Features: Features{Text: true, Images: true, Video: true, Stories: true, Reels: true, Carousel: true, Scheduling: true, Hashtags: true, Mentions: true, Links: true},
		Limits:   Limits{TextLength: 63206, HashtagsMax: 30, ImagesMax: 10, VideoMaxSeconds: 14400, FileMaxMB: 4096, PostsPerDay: 200},
	},
	Instagram: {
		Platform: Instagram,
		Features: Features{Images: true, Video: true, Stories: true, Reels: true, Carousel: true, Hashtags: true, Mentions: true},
		Limits:   Limits{TextLength: 2200, HashtagsMax: 30, ImagesMax: 10, VideoMaxSeconds: 90, FileMaxMB: 100, PostsPerDay: 25},
	},
	Twitter: {
		Platform: Twitter,
		Features: Features{Text: true, Images: true, Video: true, Hashtags: true, Mentions: true, Links: true, Threads: true},
		Limits:   Limits{TextLength: 280, HashtagsMax: 10, ImagesMax: 4, VideoMaxSeconds: 140, FileMaxMB: 512, PostsPerDay: 300},
	},
	Telegram: {
		Platform: Telegram,
		Features: Features{Text: true, Images: true, Video: true, Carousel: true, Hashtags: true, Mentions: true, Links: true},
		Limits:   Limits{TextLength: 4096, HashtagsMax: 50, ImagesMax: 10, VideoMaxSeconds: 3600, FileMaxMB: 2000, PostsPerDay: 1000},
	},
	Discord: {
		Platform: Discord,
		Features: Features{Text: true, Images: true, Video: true, Mentions: true, Links: true},
		Limits:   Limits{TextLength: 2000, HashtagsMax: 0, ImagesMax: 10, VideoMaxSeconds: 600, FileMaxMB: 8, PostsPerDay: 1000},
	},
	YouTube: {
		Platform: YouTube,
		Features: Features{Video: true, Scheduling: true, Hashtags: true, Links: true},
		Limits:   Limits{TextLength: 5000, HashtagsMax: 15, ImagesMax: 0, VideoMaxSeconds: 43200, FileMaxMB: 256000, PostsPerDay: 100},
	},
	LinkedIn: {
		Platform: LinkedIn,
		Features: Features{Text: true, Images: true, Video: true, Carousel: true, Hashtags: true, Mentions: true, Links: true},
		Limits:   Limits{TextLength: 3000, HashtagsMax: 30, ImagesMax: 9, VideoMaxSeconds: 900, FileMaxMB: 5120, PostsPerDay: 150},
	},
	Mastodon: {
		Platform: Mastodon,
		Features: Features{Text: true, Images: true, Video: true, Hashtags: true, Mentions: true, Links: true, Threads: true},
		Limits:   Limits{TextLength: 500, HashtagsMax: 0, ImagesMax: 4, VideoMaxSeconds: 3600, FileMaxMB: 40, PostsPerDay: 300},
	},
	Bluesky: {
		Platform: Bluesky,
		Features: Features{Text: true, Images: true, Video: true, Hashtags: true, Mentions: true, Links: true, Threads: true},
		Limits:   Limits{TextLength: 300, HashtagsMax: 0, ImagesMax: 4, VideoMaxSeconds: 180, FileMaxMB: 50, PostsPerDay: 1000},
	},
}

// CapabilitiesFor returns the descriptor of p. The second result is false for
// an unknown platform.
func CapabilitiesFor(p Platform) (CapabilityDescriptor, bool) {
	c, ok := capabilities[p]
	return c, ok
}
