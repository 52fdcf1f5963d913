package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Pagination carries the cursor query parameters of a list endpoint.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=50" validate:"gte=1,lte=250"`
}

// Cursor marks the last row of the previous page.
type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// BuildPageInfo trims an overfetched page (limit+1 rows) back to limit and
// returns the cursor of the last row kept. The caller passes the trimmed
// slice onward.
func BuildPageInfo[T any](rows []*T, limit int, cursorOf func(*T) (string, error)) ([]*T, *PageInfo, error) {
	info := &PageInfo{}
	if limit > 0 && len(rows) > limit {
		info.HasMore = true
		rows = rows[:limit]
	}
	if len(rows) == 0 {
		return rows, info, nil
	}

	next, err := cursorOf(rows[len(rows)-1])
	if err != nil {
		return nil, nil, err
	}
	info.NextCursor = next
	return rows, info, nil
}
