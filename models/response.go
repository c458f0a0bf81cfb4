package models

// Response is the envelope returned by the sample app's JSON endpoints.
type Response struct {
	Success int         `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
