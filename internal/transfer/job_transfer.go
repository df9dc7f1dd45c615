package transfer

type CreateJobsRequest struct {
	AccountIDs      []int64 `json:"account_ids"`
	IntervalMinutes *int    `json:"interval_minutes"`
}

type AssetUpload struct {
	Caption       string
	Hashtags      string
	CutVertical   bool
	CutSquare     bool
	CutHorizontal bool
}
