package request

// SubmitSearchRequest holds comma-separated search terms and localities.
// Every term is searched in every locality.
type SubmitSearchRequest struct {
	Terms      string `json:"terms"`
	Localities string `json:"localities"`
}
