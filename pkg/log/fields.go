package log

const (
	// Actor
	FieldUserID    = "user_id"
	FieldUserEmail = "user_email"

	// Chat
	FieldTripID    = "trip_id"
	FieldRoomID    = "room_id"
	FieldClientID  = "client_id"
	FieldMessageID = "message_id"
	FieldFrameType = "frame_type"

	// Service
	FieldService = "service"
)
