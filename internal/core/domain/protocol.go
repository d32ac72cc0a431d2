package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

// MessageType is the closed set of requests a caller can send.
type MessageType string

const (
	MessagePing            MessageType = "PING"
	MessagePong            MessageType = "PONG"
	MessageConnect         MessageType = "CONNECT"
	MessageDisconnect      MessageType = "DISCONNECT"
	MessageGetAddress      MessageType = "GET_ADDRESS"
	MessageGetPublicKey    MessageType = "GET_PUBLIC_KEY"
	MessageGetBalance      MessageType = "GET_BALANCE"
	MessageGetNetwork      MessageType = "GET_NETWORK"
	MessageIsConnected     MessageType = "IS_CONNECTED"
	MessageSignMessage     MessageType = "SIGN_MESSAGE"
	MessageSignTransaction MessageType = "SIGN_TRANSACTION"
	MessageSendTransaction MessageType = "SEND_TRANSACTION"
	MessageAddToken        MessageType = "ADD_TOKEN"
)

// MessageTypes lists every request type in protocol order.
var MessageTypes = []MessageType{
	MessagePing, MessagePong, MessageConnect, MessageDisconnect,
	MessageGetAddress, MessageGetPublicKey, MessageGetBalance,
	MessageGetNetwork, MessageIsConnected, MessageSignMessage,
	MessageSignTransaction, MessageSendTransaction, MessageAddToken,
}

// IsValid returns whether t belongs to the protocol.
func (t MessageType) IsValid() bool {
	for _, mt := range MessageTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// ResponseType tells a successful response apart from an error.
type ResponseType string

const (
	ResponseOK    ResponseType = "RESPONSE"
	ResponseError ResponseType = "ERROR"
)

// EventType is the closed set of unsolicited outbound events.
type EventType string

const (
	EventAccountChanged EventType = "ACCOUNT_CHANGED"
	EventDisconnected   EventType = "DISCONNECTED"
	EventNetworkChanged EventType = "NETWORK_CHANGED"
)

// Request is the protocol envelope sent by a caller. Origin is attached by
// the transport and must be trustworthy.
type Request struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Origin    string          `json:"origin"`
	Timestamp int64           `json:"timestamp"`
}

// Validate checks the envelope shape, not the payload.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRequest
	}
	if strings.TrimSpace(r.Origin) == "" {
		return ErrInvalidRequest
	}
	if !r.Type.IsValid() {
		return ErrInvalidRequest
	}
	return nil
}

// Response correlates to a Request by ID.
type Response struct {
	ID               string       `json:"id"`
	Type             ResponseType `json:"type"`
	Payload          interface{}  `json:"payload,omitempty"`
	Error            string       `json:"error,omitempty"`
	Code             string       `json:"code,omitempty"`
	RemainingSeconds int64        `json:"remainingSeconds,omitempty"`
	Timestamp        int64        `json:"timestamp"`
}

// NewResponse returns a successful response for the given request id.
func NewResponse(id string, payload interface{}) Response {
	return Response{
		ID:        id,
		Type:      ResponseOK,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorResponse returns an ERROR response carrying the wire code of err.
func NewErrorResponse(id string, err error) Response {
	res := Response{
		ID:        id,
		Type:      ResponseError,
		Error:     err.Error(),
		Code:      ErrorCode(err),
		Timestamp: time.Now().UnixMilli(),
	}
	var lerr *LockedOutError
	if errors.As(err, &lerr) {
		res.RemainingSeconds = lerr.RemainingSeconds()
	}
	return res
}

// Event is pushed to connected origins without a prior request.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewEvent ...
func NewEvent(t EventType, payload interface{}) Event {
	return Event{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ConnectPayload is the optional payload of a CONNECT request.
type ConnectPayload struct {
	DisplayName string `json:"displayName,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// SignMessagePayload is the payload of a SIGN_MESSAGE request.
type SignMessagePayload struct {
	Message string `json:"message"`
}

func (p SignMessagePayload) validate() error {
	if p.Message == "" {
		return ErrInvalidRequest
	}
	return nil
}

// TransactionPayload is the payload of SIGN_TRANSACTION and
// SEND_TRANSACTION requests.
type TransactionPayload struct {
	Transaction wallet.Transaction `json:"transaction"`
}

func (p TransactionPayload) validate() error {
	return p.Transaction.Validate()
}

// AddTokenPayload is the payload of an ADD_TOKEN request.
type AddTokenPayload struct {
	Token Token `json:"token"`
}

func (p AddTokenPayload) validate() error {
	if p.Token.Denom == "" || p.Token.Symbol == "" {
		return ErrInvalidRequest
	}
	return nil
}

// DecodePayload unmarshals a request payload into the type expected for t and
// validates it. Types without payload return nil.
func DecodePayload(t MessageType, raw json.RawMessage) (interface{}, error) {
	switch t {
	case MessageConnect:
		p := ConnectPayload{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidPayload(err)
			}
		}
		return p, nil
	case MessageSignMessage:
		p := SignMessagePayload{}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if err := p.validate(); err != nil {
			return nil, invalidPayload(wallet.ErrNullMessage)
		}
		return p, nil
	case MessageSignTransaction, MessageSendTransaction:
		p := TransactionPayload{}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if err := p.validate(); err != nil {
			return nil, invalidPayload(err)
		}
		return p, nil
	case MessageAddToken:
		p := AddTokenPayload{}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if err := p.validate(); err != nil {
			return nil, invalidPayload(err)
		}
		return p, nil
	case MessagePing, MessagePong, MessageDisconnect, MessageGetAddress,
		MessageGetPublicKey, MessageGetBalance, MessageGetNetwork,
		MessageIsConnected:
		return nil, nil
	default:
		return nil, ErrInvalidRequest
	}
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if len(raw) <= 0 {
		return invalidPayload(errMissingPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidPayload(err)
	}
	return nil
}

// Identity is returned by CONNECT and GET_ADDRESS.
type Identity struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Network   string `json:"network"`
}

// Balance is the ledger balance of an address.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Staked    decimal.Decimal `json:"staked"`
	Rewards   decimal.Decimal `json:"rewards"`
}

// SendTransactionResult always carries the signature, even when broadcast
// failed.
type SendTransactionResult struct {
	Signature      string `json:"signature"`
	Hash           string `json:"hash,omitempty"`
	BroadcastError string `json:"broadcastError,omitempty"`
}
