package igpsport

import (
	"encoding/json"
	"time"
)

// Default values for the iGPSport web API.
const (
	DefaultBaseURL  = "https://prod.zh.igpsport.com/service"
	DefaultPageSize = 20
	DefaultTimeout  = 30 * time.Second

	// AppID identifies the web client in login requests.
	AppID = "igpsport-web"

	// PassportOrigin is sent as Origin and Referer, matching the web login page.
	PassportOrigin = "https://login.passport.igpsport.cn"
)

// API endpoints, relative to the base URL.
const (
	EndpointLogin    = "/auth/account/login"
	EndpointList     = "/web-gateway/web-analyze/activity/queryMyActivity"
	EndpointDetail   = "/web-gateway/web-analyze/activity/queryActivityDetail/"
	rowDateLayout    = "2006.01.02"
	platformName     = "igpsport"
	listRequestType  = "0"
	listSortNewFirst = "1"
)

// envelope is the wrapper around every JSON response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AppID    string `json:"appId"`
}

type loginData struct {
	AccessToken string `json:"access_token"`
}

// activityPage is one page of queryMyActivity.
type activityPage struct {
	Rows      []activityRow `json:"rows"`
	TotalPage int           `json:"totalPage"`
}

// activityRow is a list entry. StartTime only carries the date.
type activityRow struct {
	RideID     int64  `json:"rideId"`
	StartTime  string `json:"startTime"`
	Title      string `json:"title"`
	FitOssPath string `json:"fitOssPath"`
}

// activityDetail carries the exact start time and the elapsed seconds.
// StartTime has been seen both as a string and as an epoch number.
type activityDetail struct {
	StartTime json.RawMessage `json:"startTime"`
	TotalTime float64         `json:"totalTime"`
}
