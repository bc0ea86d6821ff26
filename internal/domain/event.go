package domain

// Event is a committed state change handed to the fan-out task.
type Event interface {
	EventName() string
}

type BidPlaced struct {
	Bid     Bid
	Listing Listing
}

type BidAccepted struct {
	Bid         Bid
	Listing     Listing
	Declined    []Bid
	Transaction Transaction
	Thread      Thread
	ThreadIsNew bool
}

type BidDeclined struct {
	Bid     Bid
	Listing Listing
}

type StageAdvanced struct {
	Transaction Transaction
	From        Stage
	ActorID     string
}

type DocumentAttached struct {
	Transaction Transaction
	Document    string
	ActorID     string
}

type MessageSent struct {
	Message Message
	Thread  Thread
}

type ThreadRead struct {
	Thread Thread
	Reader string
}

type NotificationCreated struct {
	Notification Notification
}

func (BidPlaced) EventName() string           { return "bid.placed" }
func (BidAccepted) EventName() string         { return "bid.accepted" }
func (BidDeclined) EventName() string         { return "bid.declined" }
func (StageAdvanced) EventName() string       { return "transaction.stage_advanced" }
func (DocumentAttached) EventName() string    { return "transaction.document_attached" }
func (MessageSent) EventName() string         { return "message.sent" }
func (ThreadRead) EventName() string          { return "thread.read" }
func (NotificationCreated) EventName() string { return "notification.created" }
