package transfer

import "time"

type PostCreation struct {
	ClientID int64  `json:"client_id" form:"client_id"`
	DesignID *int64 `json:"design_id,omitempty" form:"design_id"`
	Title    string `json:"title" form:"title"`
	Content  string `json:"content" form:"content"`
}

type PublishRequest struct {
	AccountIDs []int64 `json:"account_ids"`
}

type ScheduleRequest struct {
	AccountIDs  []int64   `json:"account_ids"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type ScheduleResponse struct {
	PostID      int64     `json:"post_id"`
	Entries     int       `json:"entries"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
