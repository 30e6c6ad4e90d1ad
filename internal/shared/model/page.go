package model

// PageMeta 分页元信息
type PageMeta struct {
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// NewPageMeta 根据总数和页大小计算分页信息，page 从 1 开始
func NewPageMeta(total, perPage, page int) PageMeta {
	if perPage <= 0 {
		perPage = 1
	}
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	if page < 1 {
		page = 1
	}
	return PageMeta{Total: total, PerPage: perPage, CurrentPage: page, LastPage: last}
}

// Offset 当前页的偏移量
func (m PageMeta) Offset() int {
	return (m.CurrentPage - 1) * m.PerPage
}
