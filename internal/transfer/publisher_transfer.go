package transfer

type PublisherError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// OK reports whether the platform signalled success in the envelope.
func (e PublisherError) OK() bool {
	return e.Code == "" || e.Code == "ok"
}

type UserInfoResponse struct {
	Data  UserInfoData   `json:"data"`
	Error PublisherError `json:"error"`
}

type UserInfoData struct {
	User PlatformUser `json:"user"`
}

type PlatformUser struct {
	OpenID      string `json:"open_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

type CreatorInfoResponse struct {
	Data  CreatorInfo    `json:"data"`
	Error PublisherError `json:"error"`
}

type CreatorInfo struct {
	CreatorUsername         string   `json:"creator_username"`
	PrivacyLevelOptions     []string `json:"privacy_level_options"`
	MaxVideoPostDurationSec int32    `json:"max_video_post_duration_sec"`
}

type VideoPostInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms"`
}

type VideoSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type VideoPublishRequest struct {
	PostInfo   VideoPostInfo   `json:"post_info"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type PublishResponse struct {
	Data  PublishData    `json:"data"`
	Error PublisherError `json:"error"`
}

type PublishData struct {
	PublishID string `json:"publish_id"`
}
