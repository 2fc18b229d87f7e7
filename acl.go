package masfro

import "time"

// Performative is the speech-act category of an ACL message.
type Performative string

const (
	Request  Performative = "REQUEST"
	Inform   Performative = "INFORM"
	Query    Performative = "QUERY"
	Confirm  Performative = "CONFIRM"
	Refuse   Performative = "REFUSE"
	Agree    Performative = "AGREE"
	Failure  Performative = "FAILURE"
	Propose  Performative = "PROPOSE"
	CFP      Performative = "CFP"
)

// Content is the structured payload of an ACLMessage. Exactly one of
// Action (for REQUEST) or InfoType (for INFORM/QUERY replies) is
// normally set; Data carries the performative-specific body.
type Content struct {
	Action   string         `json:"action,omitempty"`
	InfoType string         `json:"info_type,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ACLMessage is a FIPA-ACL style message exchanged between agents over
// the MessageBus. Messages are immutable once enqueued.
type ACLMessage struct {
	Performative   Performative
	Sender         string
	Receiver       string
	Content        Content
	Language       string // default "json"
	Ontology       string // default "routing"
	ConversationID string // propagated end-to-end across a mission
	ReplyWith      string // id assigned by the sender for fine-grained correlation
	InReplyTo      string // ReplyWith of the message being answered
	Timestamp      time.Time
}

// NewMessage constructs an ACLMessage with defaults applied
// (Language=json, Ontology=routing, Timestamp=now, ReplyWith=NewID()).
func NewMessage(perf Performative, sender, receiver string, content Content) ACLMessage {
	return ACLMessage{
		Performative: perf,
		Sender:       sender,
		Receiver:     receiver,
		Content:      content,
		Language:     "json",
		Ontology:     "routing",
		ReplyWith:    NewID(),
		Timestamp:    Now(),
	}
}

// ReplyTo constructs an ACLMessage addressed back to the sender of msg,
// carrying msg's conversation id and in_reply_to correlation.
func ReplyTo(msg ACLMessage, perf Performative, from string, content Content) ACLMessage {
	reply := NewMessage(perf, from, msg.Sender, content)
	reply.ConversationID = msg.ConversationID
	reply.InReplyTo = msg.ReplyWith
	return reply
}
