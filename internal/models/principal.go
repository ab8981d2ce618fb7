package models

// Principal is the authenticated operator a request runs on behalf of. Its
// username is recorded verbatim as created_by, completed_by and checked_by.
type Principal struct {
	Username string `json:"username"`
	Shift    string `json:"shift"`
}
