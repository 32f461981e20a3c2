package authmanagement

import (
	"bytes"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-command"
)

// Action names accepted in a request envelope.
type Action string

const (
	ActionCheckUnique        Action = "checkUnique"
	ActionResendVerifySignup Action = "resendVerifySignup"
	ActionVerifySignupLong   Action = "verifySignupLong"
	ActionVerifySignupShort  Action = "verifySignupShort"
	ActionSendResetPwd       Action = "sendResetPwd"
	ActionResetPwdLong       Action = "resetPwdLong"
	ActionResetPwdShort      Action = "resetPwdShort"
	ActionPasswordChange     Action = "passwordChange"
	ActionIdentityChange     Action = "identityChange"
	ActionOptions            Action = "options"
)

func messageType(a Action) string { return "authmanagement." + string(a) }

// Message is a typed action understood by Service.Dispatch. Validate checks
// the payload shape only, identity fields are checked against the service
// configuration by the engines.
type Message interface {
	command.Message
	Action() Action
}

// payloadError turns validation failures into ErrInvalidPayload with one
// entry per offending field.
func payloadError(err error) error {
	if err == nil {
		return nil
	}
	errs, ok := err.(validation.Errors)
	if !ok {
		return wrapError(err, ErrInvalidPayload, nil)
	}
	fields := make(map[string]string, len(errs))
	for name, fieldErr := range errs {
		if fieldErr != nil {
			fields[name] = fieldErr.Error()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return newError(ErrInvalidPayload, fieldErrors(fields))
}

type CheckUniqueMessage struct {
	Identity Query  `json:"value"`
	OwnID    string `json:"ownId,omitempty"`
	NoErrMsg bool   `json:"noErrMsg,omitempty"`
}

func (m CheckUniqueMessage) Type() string   { return messageType(m.Action()) }
func (m CheckUniqueMessage) Action() Action { return ActionCheckUnique }

// Validate accepts an empty identity, there is nothing to check then.
func (m CheckUniqueMessage) Validate() error { return nil }

type ResendVerifySignupMessage struct {
	Identity        Query          `json:"value"`
	NotifierOptions map[string]any `json:"notifierOptions,omitempty"`
}

func (m ResendVerifySignupMessage) Type() string   { return messageType(m.Action()) }
func (m ResendVerifySignupMessage) Action() Action { return ActionResendVerifySignup }

func (m ResendVerifySignupMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required),
	))
}

type VerifySignupLongMessage struct {
	Token string `json:"value"`
}

func (m VerifySignupLongMessage) Type() string   { return messageType(m.Action()) }
func (m VerifySignupLongMessage) Action() Action { return ActionVerifySignupLong }

func (m VerifySignupLongMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
	))
}

type VerifySignupShortMessage struct {
	Token    string `json:"token"`
	Identity Query  `json:"user"`
}

func (m VerifySignupShortMessage) Type() string   { return messageType(m.Action()) }
func (m VerifySignupShortMessage) Action() Action { return ActionVerifySignupShort }

func (m VerifySignupShortMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Identity, validation.Required),
	))
}

type SendResetPwdMessage struct {
	Identity        Query          `json:"value"`
	NotifierOptions map[string]any `json:"notifierOptions,omitempty"`
}

func (m SendResetPwdMessage) Type() string   { return messageType(m.Action()) }
func (m SendResetPwdMessage) Action() Action { return ActionSendResetPwd }

func (m SendResetPwdMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required),
	))
}

type ResetPwdLongMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (m ResetPwdLongMessage) Type() string   { return messageType(m.Action()) }
func (m ResetPwdLongMessage) Action() Action { return ActionResetPwdLong }

func (m ResetPwdLongMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Password, validation.Required),
	))
}

type ResetPwdShortMessage struct {
	Token    string `json:"token"`
	Identity Query  `json:"user"`
	Password string `json:"password"`
}

func (m ResetPwdShortMessage) Type() string   { return messageType(m.Action()) }
func (m ResetPwdShortMessage) Action() Action { return ActionResetPwdShort }

func (m ResetPwdShortMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Identity, validation.Required),
		validation.Field(&m.Password, validation.Required),
	))
}

type PasswordChangeMessage struct {
	Identity    Query  `json:"user"`
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password"`
}

func (m PasswordChangeMessage) Type() string   { return messageType(m.Action()) }
func (m PasswordChangeMessage) Action() Action { return ActionPasswordChange }

func (m PasswordChangeMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required),
		validation.Field(&m.OldPassword, validation.Required),
		validation.Field(&m.Password, validation.Required),
	))
}

type IdentityChangeMessage struct {
	Identity Query   `json:"user"`
	Password string  `json:"password"`
	Changes  Changes `json:"changes"`
}

func (m IdentityChangeMessage) Type() string   { return messageType(m.Action()) }
func (m IdentityChangeMessage) Action() Action { return ActionIdentityChange }

func (m IdentityChangeMessage) Validate() error {
	return payloadError(validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required),
		validation.Field(&m.Password, validation.Required),
		validation.Field(&m.Changes, validation.Required),
	))
}

type OptionsMessage struct{}

func (m OptionsMessage) Type() string   { return messageType(m.Action()) }
func (m OptionsMessage) Action() Action { return ActionOptions }

func (m OptionsMessage) Validate() error { return nil }

var (
	_ Message = CheckUniqueMessage{}
	_ Message = ResendVerifySignupMessage{}
	_ Message = VerifySignupLongMessage{}
	_ Message = VerifySignupShortMessage{}
	_ Message = SendResetPwdMessage{}
	_ Message = ResetPwdLongMessage{}
	_ Message = ResetPwdShortMessage{}
	_ Message = PasswordChangeMessage{}
	_ Message = IdentityChangeMessage{}
	_ Message = OptionsMessage{}
)

// Request is the wire envelope of an action.
type Request struct {
	Action          Action          `json:"action"`
	Value           json.RawMessage `json:"value,omitempty"`
	NotifierOptions map[string]any  `json:"notifierOptions,omitempty"`
	OwnID           json.RawMessage `json:"ownId,omitempty"`
	Meta            RequestMeta     `json:"meta,omitempty"`
}

// RequestMeta carries per request flags.
type RequestMeta struct {
	NoErrMsg bool `json:"noErrMsg,omitempty"`
}

// DecodeRequest parses a JSON envelope into a typed Message. Unknown actions
// fail with ErrInvalidAction, malformed or non string values with
// ErrInvalidPayload.
func DecodeRequest(data []byte) (Message, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, newError(ErrInvalidPayload, map[string]any{"reason": err.Error()})
	}
	return req.Message()
}

// Message converts the envelope into its typed variant.
func (r Request) Message() (Message, error) {
	switch r.Action {
	case ActionCheckUnique:
		identity, err := decodeQuery(r.Value, "value", true)
		if err != nil {
			return nil, err
		}
		ownID, err := decodeID(r.OwnID)
		if err != nil {
			return nil, err
		}
		return CheckUniqueMessage{Identity: identity, OwnID: ownID, NoErrMsg: r.Meta.NoErrMsg}, nil

	case ActionResendVerifySignup:
		identity, err := decodeQuery(r.Value, "value", false)
		if err != nil {
			return nil, err
		}
		return ResendVerifySignupMessage{Identity: identity, NotifierOptions: r.NotifierOptions}, nil

	case ActionVerifySignupLong:
		token, err := decodeString(r.Value, "value")
		if err != nil {
			return nil, err
		}
		return VerifySignupLongMessage{Token: token}, nil

	case ActionVerifySignupShort:
		fields, err := decodeObject(r.Value)
		if err != nil {
			return nil, err
		}
		msg := VerifySignupShortMessage{}
		if msg.Token, err = decodeString(fields["token"], "token"); err != nil {
			return nil, err
		}
		if msg.Identity, err = decodeQuery(fields["user"], "user", false); err != nil {
			return nil, err
		}
		return msg, nil

	case ActionSendResetPwd:
		identity, err := decodeQuery(r.Value, "value", false)
		if err != nil {
			return nil, err
		}
		return SendResetPwdMessage{Identity: identity, NotifierOptions: r.NotifierOptions}, nil

	case ActionResetPwdLong:
		fields, err := decodeObject(r.Value)
		if err != nil {
			return nil, err
		}
		msg := ResetPwdLongMessage{}
		if msg.Token, err = decodeString(fields["token"], "token"); err != nil {
			return nil, err
		}
		if msg.Password, err = decodeString(fields["password"], "password"); err != nil {
			return nil, err
		}
		return msg, nil

	case ActionResetPwdShort:
		fields, err := decodeObject(r.Value)
		if err != nil {
			return nil, err
		}
		msg := ResetPwdShortMessage{}
		if msg.Token, err = decodeString(fields["token"], "token"); err != nil {
			return nil, err
		}
		if msg.Identity, err = decodeQuery(fields["user"], "user", false); err != nil {
			return nil, err
		}
		if msg.Password, err = decodeString(fields["password"], "password"); err != nil {
			return nil, err
		}
		return msg, nil

	case ActionPasswordChange:
		fields, err := decodeObject(r.Value)
		if err != nil {
			return nil, err
		}
		msg := PasswordChangeMessage{}
		if msg.Identity, err = decodeQuery(fields["user"], "user", false); err != nil {
			return nil, err
		}
		if msg.OldPassword, err = decodeString(fields["oldPassword"], "oldPassword"); err != nil {
			return nil, err
		}
		if msg.Password, err = decodeString(fields["password"], "password"); err != nil {
			return nil, err
		}
		return msg, nil

	case ActionIdentityChange:
		fields, err := decodeObject(r.Value)
		if err != nil {
			return nil, err
		}
		msg := IdentityChangeMessage{}
		if msg.Identity, err = decodeQuery(fields["user"], "user", false); err != nil {
			return nil, err
		}
		if msg.Password, err = decodeString(fields["password"], "password"); err != nil {
			return nil, err
		}
		changes, err := decodeQuery(fields["changes"], "changes", false)
		if err != nil {
			return nil, err
		}
		msg.Changes = Changes(changes)
		return msg, nil

	case ActionOptions:
		return OptionsMessage{}, nil
	}

	return nil, newError(ErrInvalidAction, map[string]any{"action": string(r.Action)})
}

func invalidPayload(field, reason string) error {
	return newError(ErrInvalidPayload, fieldErrors(map[string]string{field: reason}))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if isNull(raw) {
		return nil, invalidPayload("value", "is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, invalidPayload("value", "must be an object")
	}
	return fields, nil
}

func decodeString(raw json.RawMessage, field string) (string, error) {
	if isNull(raw) {
		return "", invalidPayload(field, "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidPayload(field, "must be a string")
	}
	return s, nil
}

// decodeQuery reads a flat object of string values. With allowNull, null
// values are dropped instead of rejected.
func decodeQuery(raw json.RawMessage, field string, allowNull bool) (Query, error) {
	if isNull(raw) {
		return nil, invalidPayload(field, "is required")
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, invalidPayload(field, "must be an object")
	}

	q := make(Query, len(values))
	bad := make(map[string]string)
	for key, value := range values {
		switch v := value.(type) {
		case string:
			q[key] = v
		case nil:
			if !allowNull {
				bad[key] = "must be a string"
			}
		default:
			bad[key] = "must be a string"
		}
	}

	if len(bad) > 0 {
		return nil, newError(ErrInvalidPayload, fieldErrors(bad))
	}
	return q, nil
}

// decodeID accepts string or numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	// numeric ids keep their literal digits, a float64 round trip loses
	// precision past 2^53
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", invalidPayload("ownId", "must be a string or number")
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	default:
		return "", invalidPayload("ownId", "must be a string or number")
	}
}
