package parser

import (
	"github.com/buger/jsonparser"
)

// validPayload checks the shape of the raw JSON payload for a packet type
// without fully decoding it. An empty payload is represented by nil.
func validPayload(t PacketType, raw []byte) bool {
	if len(raw) == 0 {
		switch t {
		case CONNECT, DISCONNECT, CONNECT_ERROR:
			return true
		default:
			return false
		}
	}

	_, dataType, _, err := jsonparser.Get(raw)
	if err != nil {
		return false
	}

	switch t {
	case CONNECT:
		return dataType == jsonparser.Object
	case DISCONNECT:
		return false
	case CONNECT_ERROR:
		return dataType == jsonparser.String || dataType == jsonparser.Object
	case EVENT, BINARY_EVENT:
		if dataType != jsonparser.Array {
			return false
		}
		_, first, _, err := jsonparser.Get(raw, "[0]")
		if err != nil {
			return false
		}
		return first == jsonparser.String || first == jsonparser.Number
	case ACK, BINARY_ACK:
		return dataType == jsonparser.Array
	}
	return false
}
