package models

// Setting holds the editable options of one collection, e.g. the stage fee
// table of trades or the communication ways offered for members.
type Setting struct {
	ID             string         `bson:"id,omitempty" json:"id"`
	CollectionName string         `bson:"collection_name" json:"collection_name"`
	Fields         map[string]any `bson:"fields" json:"fields"`
}

// PaginatedResult is one page of typed items.
type PaginatedResult[T any] struct {
	Items      []T `json:"items"`
	PageCount  int `json:"page_count"`
	TotalCount int `json:"total_count"`
}
