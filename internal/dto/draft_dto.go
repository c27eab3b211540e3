package dto

// DraftRequest is the body of a draft save.
type DraftRequest struct {
	Code string `json:"code"`
}

// DraftResponse returns the stored draft.
type DraftResponse struct {
	QuestionID uint   `json:"question_id"`
	Code       string `json:"code"`
}
