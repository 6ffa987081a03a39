package model

import (
	"database/sql"
	"time"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"  // customer -> support
	DirectionOutbound Direction = "outbound" // support -> customer
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// ConversationMessage is one message in a customer support thread.
// ReplyToMessageID/ReplyToSnippet are captured by value at write time: the
// thread keeps rendering even if the subject message is later re-imported
// under a new id.
type ConversationMessage struct {
	ID               string         `db:"id"`
	CustomerAlias    string         `db:"customer_alias"`
	Direction        Direction      `db:"direction"`
	Body             string         `db:"body"`
	ReplyToMessageID sql.NullString `db:"reply_to_message_id"`
	ReplyToSnippet   sql.NullString `db:"reply_to_snippet"`
	CreatedAt        time.Time      `db:"created_at"`
}

// ReplySnippetLen caps the stored snippet of the replied-to message.
const ReplySnippetLen = 120
