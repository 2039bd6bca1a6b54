package models

// TriggerRequest is the body of a "record created" event pushed to the HTTP trigger.
type TriggerRequest struct {
	ID     string                 `json:"id" validate:"required,max=1500"`
	Source string                 `json:"source,omitempty" validate:"omitempty,max=30"`
	Data   map[string]interface{} `json:"data" validate:"required"`
}

// TriggerResponse reports what the dispatcher did with the record.
type TriggerResponse struct {
	RecordID string  `json:"record_id"`
	Outcome  Outcome `json:"outcome"`
}
