package models

import (
	"fmt"
	"time"
)

// Field names of a notification record as stored in Firestore and MongoDB.
const (
	FieldTitle      = "title"
	FieldBody       = "body"
	FieldType       = "type"
	FieldTableID    = "tableId"
	FieldOrderID    = "orderId"
	FieldTargetRole = "targetRole"
	FieldSent       = "sent"
	FieldSentAt     = "sentAt"
	FieldError      = "error"
)

// NotificationRecord is a document in the notifications collection. It is written by
// the ordering app; this service only ever sets Sent, SentAt and Error.
type NotificationRecord struct {
	ID         string     `json:"id,omitempty" firestore:"-" bson:"-"`
	Title      string     `json:"title" firestore:"title" bson:"title"`
	Body       string     `json:"body" firestore:"body" bson:"body"`
	Type       string     `json:"type" firestore:"type" bson:"type"`
	TableID    string     `json:"tableId" firestore:"tableId" bson:"tableId"`
	OrderID    string     `json:"orderId" firestore:"orderId" bson:"orderId"`
	TargetRole string     `json:"targetRole,omitempty" firestore:"targetRole,omitempty" bson:"targetRole,omitempty"`
	Sent       *bool      `json:"sent,omitempty" firestore:"sent,omitempty" bson:"sent,omitempty"`
	SentAt     *time.Time `json:"sentAt,omitempty" firestore:"sentAt,omitempty" bson:"sentAt,omitempty"`
	Error      string     `json:"error,omitempty" firestore:"error,omitempty" bson:"error,omitempty"`
}

// Fields returns the record as a raw field map, the shape trigger sources deliver.
// Empty optional fields are left out.
func (r *NotificationRecord) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		FieldTitle:   r.Title,
		FieldBody:    r.Body,
		FieldType:    r.Type,
		FieldTableID: r.TableID,
		FieldOrderID: r.OrderID,
	}
	if r.TargetRole != "" {
		fields[FieldTargetRole] = r.TargetRole
	}
	if r.Sent != nil {
		fields[FieldSent] = *r.Sent
	}
	if r.SentAt != nil {
		fields[FieldSentAt] = *r.SentAt
	}
	if r.Error != "" {
		fields[FieldError] = r.Error
	}
	return fields
}

// TargetRole returns the topic named by the raw fields and whether it is usable. A missing,
// null or empty targetRole means there is nobody to notify. A present value that is not a
// string is still reported as set so that building the message fails on it.
func TargetRole(fields map[string]interface{}) (interface{}, bool) {
	v, ok := fields[FieldTargetRole]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && s == "" {
		return nil, false
	}
	return v, true
}

// AlreadyProcessed reports whether the fields carry a status written by an earlier run.
func AlreadyProcessed(fields map[string]interface{}) bool {
	v, ok := fields[FieldSent]
	return ok && v != nil
}

// DeliveryStatus is the outcome written back onto a record. SentAt is assigned by the
// store from server time when Sent is true.
type DeliveryStatus struct {
	Sent  bool
	Error string
}

// Outcome describes what one invocation did with a record.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// PushMessage is the message handed to the push provider.
type PushMessage struct {
	Notification PushNotification  `json:"notification"`
	Data         map[string]string `json:"data"`
	Topic        string            `json:"topic"`
}

// PushNotification is the display part of a PushMessage.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// dataFields are copied from the record into the message data payload as they are.
var dataFields = []string{FieldType, FieldTableID, FieldOrderID}

// BuildPushMessage turns the raw fields of a record into a push message addressed to its
// targetRole topic. Values are copied verbatim. Every data field must be present as a
// string, since the provider rejects data payloads with missing values.
func BuildPushMessage(fields map[string]interface{}) (*PushMessage, error) {
	role, ok := TargetRole(fields)
	if !ok {
		return nil, fmt.Errorf("record has no %s", FieldTargetRole)
	}
	topic, isString := role.(string)
	if !isString {
		return nil, fmt.Errorf("%s must be a string, got %T", FieldTargetRole, role)
	}

	title, err := optionalString(fields, FieldTitle)
	if err != nil {
		return nil, err
	}
	body, err := optionalString(fields, FieldBody)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string, len(dataFields))
	for _, key := range dataFields {
		v, present := fields[key]
		if !present || v == nil {
			return nil, fmt.Errorf("data field %s is missing", key)
		}
		s, isString := v.(string)
		if !isString {
			return nil, fmt.Errorf("data field %s must be a string, got %T", key, v)
		}
		data[key] = s
	}

	return &PushMessage{
		Notification: PushNotification{Title: title, Body: body},
		Data:         data,
		Topic:        topic,
	}, nil
}

func optionalString(fields map[string]interface{}, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}
