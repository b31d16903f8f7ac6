package server

import "time"

// APIError is the JSON error envelope for all endpoints.
type APIError struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// BedStatus is one bed's snapshot in the status response.
type BedStatus struct {
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Connected        bool    `json:"connected"`
	HeadPosition     int     `json:"headPosition"`
	FeetPosition     int     `json:"feetPosition"`
	BothPosition     int     `json:"bothPosition"`
	CalibrationState string  `json:"calibrationState"`
	CalibrationPart  string  `json:"calibrationPart,omitempty"`
	HeadTravelSecs   float64 `json:"headTravelSeconds"`
	FeetTravelSecs   float64 `json:"feetTravelSeconds"`
}

type StatusResponse struct {
	Combined bool        `json:"combined"`
	Beds     []BedStatus `json:"beds"`
}

// CommandRequest triggers a single command frame.
type CommandRequest struct {
	Bed    string `json:"bed,omitempty"` // empty targets the default unit
	Action string `json:"action"`
}

// MoveRequest starts a timed move of a joint group to a position.
type MoveRequest struct {
	Bed      string `json:"bed,omitempty"`
	Group    string `json:"group"`
	Position int    `json:"position"`
}

type CalStartRequest struct {
	Bed  string `json:"bed,omitempty"`
	Part string `json:"part"`
}

type CalCompleteResponse struct {
	Part           string  `json:"part"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
