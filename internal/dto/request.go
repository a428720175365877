package dto

// StarsQuery binds the query string of GET /api/stars. Validation happens in
// the service layer so every offending field can be reported at once.
type StarsQuery struct {
	Search   string `form:"q"`
	Language string `form:"language"`
	Activity string `form:"activity"`
	UserMode string `form:"user_mode"`
	User     string `form:"user"`
	Sort     string `form:"sort"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=25"`
}
