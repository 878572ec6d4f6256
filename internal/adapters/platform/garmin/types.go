package garmin

import "time"

// Default values for the Garmin Connect API.
const (
	DefaultDomain   = "garmin.com"
	DefaultClientID = "activitysync"
	DefaultPageSize = 20
	DefaultTimeout  = 30 * time.Second
)

// API endpoints, relative to the API base URL.
const (
	EndpointSearch = "/activitylist-service/activities/search/activities"
	EndpointUpload = "/upload-service/upload/.fit"
	EndpointToken  = "/oauth-service/oauth/token"

	searchDateLayout  = "2006-01-02"
	searchDatePadding = 24 * time.Hour
	maxSearchPages    = 500
	platformName      = "garmin"
	userAgent         = "activitysync"
)

// searchResult is an entry of the activity search response.
type searchResult struct {
	ActivityID   int64   `json:"activityId"`
	ActivityName string  `json:"activityName"`
	StartTimeGMT string  `json:"startTimeGMT"`
	Duration     float64 `json:"duration"`
}

// uploadResponse is the body returned by the upload service, for both
// accepted uploads and conflicts.
type uploadResponse struct {
	DetailedImportResult struct {
		UploadID  int64 `json:"uploadId"`
		Successes []struct {
			InternalID int64 `json:"internalId"`
		} `json:"successes"`
		Failures []struct {
			InternalID int64 `json:"internalId"`
			Messages   []struct {
				Code    int    `json:"code"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"failures"`
	} `json:"detailedImportResult"`
}

// APIBaseURL returns the connect API base URL for a Garmin domain.
func APIBaseURL(domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return "https://connectapi." + domain
}
