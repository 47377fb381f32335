package types

// MessageType is the discriminator carried in the "type" field of every frame
type MessageType string

// Outbound (client to server)
const (
	MessageFetchPreview      MessageType = "fetchPreview"
	MessageFetchMore         MessageType = "fetchMore"
	MessageFetchAllForStatus MessageType = "fetchAllForStatus"
	MessageUpdate            MessageType = "update"
	MessageSearchInStatus    MessageType = "searchInStatus"
	MessageSetAssignee       MessageType = "setAssignee"
	MessagePing              MessageType = "ping"
)

// Inbound (server to client)
const (
	MessagePreview             MessageType = "preview"
	MessageClients             MessageType = "clients"
	MessageAllClientsForStatus MessageType = "allClientsForStatus"
	MessageSearchResults       MessageType = "searchResults"
	MessageStatusUpdated       MessageType = "statusUpdated"
	MessageError               MessageType = "error"
	MessagePong                MessageType = "pong"
)

// String returns the string representation of the message type
func (t MessageType) String() string {
	return string(t)
}
