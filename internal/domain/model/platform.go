package model

type Platform string

const (
	PlatformYouTube    Platform = "youtube"
	PlatformSoundCloud Platform = "soundcloud"
	PlatformDirect     Platform = "direct"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformSoundCloud, PlatformDirect:
		return true
	}
	return false
}

// StreamingAudio reports whether downloads from this platform need the
// post-download content validation pass.
func (p Platform) StreamingAudio() bool { return p == PlatformSoundCloud }

// PlatformMetadata is a tagged union: exactly one variant is non-nil,
// matching the item's platform.
type PlatformMetadata struct {
	YouTube    *YouTubeMetadata    `json:"youtube,omitempty"`
	SoundCloud *SoundCloudMetadata `json:"soundcloud,omitempty"`
	Direct     *DirectMetadata     `json:"direct,omitempty"`
}

type YouTubeMetadata struct {
	VideoID         string  `json:"video_id"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	ViewCount       int64   `json:"view_count"`
	UploadDate      string  `json:"upload_date"`
}

type SoundCloudMetadata struct {
	TrackID         string  `json:"track_id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSeconds float64 `json:"duration_seconds"`
	ArtworkURL      string  `json:"artwork_url"`
	Genre           string  `json:"genre"`
}

type DirectMetadata struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// NormalizedMetadata is the shared subset projected out for persistence.
type NormalizedMetadata struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
}

// Platform reports which variant of the union is populated.
func (m PlatformMetadata) Platform() Platform {
	switch {
	case m.YouTube != nil:
		return PlatformYouTube
	case m.SoundCloud != nil:
		return PlatformSoundCloud
	default:
		return PlatformDirect
	}
}

// Normalized projects the union's common fields.
func (m PlatformMetadata) Normalized() NormalizedMetadata {
	switch {
	case m.YouTube != nil:
		return NormalizedMetadata{
			Title:           m.YouTube.Title,
			Author:          m.YouTube.Channel,
			DurationSeconds: m.YouTube.DurationSeconds,
			ThumbnailURL:    m.YouTube.ThumbnailURL,
		}
	case m.SoundCloud != nil:
		return NormalizedMetadata{
			Title:           m.SoundCloud.Title,
			Author:          m.SoundCloud.Artist,
			DurationSeconds: m.SoundCloud.DurationSeconds,
			ThumbnailURL:    m.SoundCloud.ArtworkURL,
		}
	case m.Direct != nil:
		return NormalizedMetadata{Title: m.Direct.Filename}
	}
	return NormalizedMetadata{}
}
