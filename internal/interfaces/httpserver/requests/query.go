package requests

// ListQuery bounds list endpoints.
type ListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// LimitOr returns the requested limit or def.
func (q ListQuery) LimitOr(def int) int {
	if q.Limit <= 0 {
		return def
	}
	return q.Limit
}

// DiffQuery selects the version compared with its predecessor.
type DiffQuery struct {
	Version int `form:"version" binding:"required,min=2"`
}
