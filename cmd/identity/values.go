package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Column names shared by every store.
const (
	ColID              = "id"
	ColAccountID       = "account_id"
	ColParentID        = "parent_id"
	ColType            = "type"
	ColStatus          = "status"
	ColStatusChangedOn = "status_changed_on"
	ColExpiresOn       = "expires_on"
	ColLastUsed        = "last_used"
	ColToken           = "token"
	ColTokenAction     = "token_action"
	ColTokenExpiresOn  = "token_expires_on"
	ColTokenPayload    = "token_payload"
	ColFingerprint     = "fingerprint"
	ColIdentifier      = "identifier"
	ColHash            = "hash"
)

// Columns lists every stored column in a stable order.
var Columns = []string{
	ColID, ColAccountID, ColParentID, ColType, ColStatus, ColStatusChangedOn,
	ColExpiresOn, ColLastUsed, ColToken, ColTokenAction, ColTokenExpiresOn,
	ColTokenPayload, ColFingerprint, ColIdentifier, ColHash,
}

var baseColumns = []string{
	ColID, ColAccountID, ColParentID, ColType, ColStatus, ColStatusChangedOn,
	ColExpiresOn, ColLastUsed, ColToken, ColTokenAction, ColTokenExpiresOn, ColTokenPayload,
}

// Values is one stored row keyed by column name.
// Missing keys hydrate to the zero value; unknown keys are rejected.
//
// Accepted Go types per column kind:
// - integers: int, int16, int32, int64, float64 (whole), []byte/string digits
// - timestamps: time.Time, *time.Time, int64 (unix microseconds), RFC 3339 string
// - text: string, []byte
// nil is always accepted and means NULL.
type Values map[string]any

func (v Values) only(base []string, extra ...string) error {
	for k := range v {
		if !contains(base, k) && !contains(extra, k) {
			return malformed("identity.Apply", "unknown column "+strconv.Quote(k))
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Int64Ptr returns the column as an optional integer.
func (v Values) Int64Ptr(col string) (*int64, error) {
	raw, ok := v[col]
	if !ok || raw == nil {
		return nil, nil
	}
	var n int64
	switch x := raw.(type) {
	case int64:
		n = x
	case *int64:
		if x == nil {
			return nil, nil
		}
		n = *x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int16:
		n = int64(x)
	case float64:
		if x != float64(int64(x)) {
			return nil, columnErr(col, raw)
		}
		n = int64(x)
	case []byte:
		p, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return nil, columnErr(col, raw)
		}
		n = p
	case string:
		p, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, columnErr(col, raw)
		}
		n = p
	default:
		return nil, columnErr(col, raw)
	}
	return &n, nil
}

// Int64 returns the column as an integer, 0 when NULL.
func (v Values) Int64(col string) (int64, error) {
	p, err := v.Int64Ptr(col)
	if err != nil || p == nil {
		return 0, err
	}
	return *p, nil
}

// TimePtr returns the column as an optional UTC timestamp.
func (v Values) TimePtr(col string) (*time.Time, error) {
	raw, ok := v[col]
	if !ok || raw == nil {
		return nil, nil
	}
	var t time.Time
	switch x := raw.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		t = *x
	case int64:
		t = time.UnixMicro(x)
	case string:
		p, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil, columnErr(col, raw)
		}
		t = p
	default:
		return nil, columnErr(col, raw)
	}
	t = t.UTC()
	return &t, nil
}

// Time returns the column as a timestamp, the zero time when NULL.
func (v Values) Time(col string) (time.Time, error) {
	p, err := v.TimePtr(col)
	if err != nil || p == nil {
		return time.Time{}, err
	}
	return *p, nil
}

// String returns the column as text, "" when NULL.
func (v Values) String(col string) (string, error) {
	raw, ok := v[col]
	if !ok || raw == nil {
		return "", nil
	}
	switch x := raw.(type) {
	case string:
		return x, nil
	case *string:
		if x == nil {
			return "", nil
		}
		return *x, nil
	case []byte:
		return string(x), nil
	}
	return "", columnErr(col, raw)
}

func columnErr(col string, raw any) error {
	return malformed("identity.Apply", fmt.Sprintf("column %q has unsupported type %T", col, raw))
}

// applyBase hydrates the shared record. The token is restored only when the
// token column is non-empty, and then all four token fields are restored together.
func (i *Identity) applyBase(v Values) error {
	var err error

	if i.ID, err = v.Int64(ColID); err != nil {
		return err
	}
	if i.AccountID, err = v.Int64Ptr(ColAccountID); err != nil {
		return err
	}
	if i.ParentID, err = v.Int64Ptr(ColParentID); err != nil {
		return err
	}

	if _, ok := v[ColType]; ok {
		t, err := v.Int64(ColType)
		if err != nil {
			return err
		}
		if Type(t) != i.Type {
			return malformed("identity.Apply", "type mismatch")
		}
	}

	status, err := v.Int64(ColStatus)
	if err != nil {
		return err
	}
	if status != 0 && !Status(status).Valid() {
		return malformed("identity.Apply", "invalid status")
	}
	i.status = Status(status)
	if i.statusChangedOn, err = v.Time(ColStatusChangedOn); err != nil {
		return err
	}
	if i.ExpiresOn, err = v.TimePtr(ColExpiresOn); err != nil {
		return err
	}
	if i.LastUsed, err = v.TimePtr(ColLastUsed); err != nil {
		return err
	}

	tok, err := v.String(ColToken)
	if err != nil {
		return err
	}
	if tok == "" {
		i.token = nil
		return nil
	}
	action, err := v.Int64(ColTokenAction)
	if err != nil {
		return err
	}
	exp, err := v.Time(ColTokenExpiresOn)
	if err != nil {
		return err
	}
	rawPayload, err := v.String(ColTokenPayload)
	if err != nil {
		return err
	}
	var payload map[string]string
	if rawPayload != "" {
		if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
			return malformed("identity.Apply", "token_payload is not a JSON object")
		}
	}
	return i.SetToken(tok, TokenAction(action), exp, payload)
}

// baseValues returns the shared columns. NULL columns are present with a nil value.
func (i *Identity) baseValues() Values {
	v := Values{
		ColID:              i.ID,
		ColAccountID:       nil,
		ColParentID:        nil,
		ColType:            int64(i.Type),
		ColStatus:          int64(i.status),
		ColStatusChangedOn: i.statusChangedOn.UTC(),
		ColExpiresOn:       nil,
		ColLastUsed:        nil,
		ColToken:           nil,
		ColTokenAction:     int64(ActionNone),
		ColTokenExpiresOn:  nil,
		ColTokenPayload:    nil,
	}
	if i.AccountID != nil {
		v[ColAccountID] = *i.AccountID
	}
	if i.ParentID != nil {
		v[ColParentID] = *i.ParentID
	}
	if i.ExpiresOn != nil {
		v[ColExpiresOn] = i.ExpiresOn.UTC()
	}
	if i.LastUsed != nil {
		v[ColLastUsed] = i.LastUsed.UTC()
	}
	if i.token != nil {
		v[ColToken] = i.token.Value
		v[ColTokenAction] = int64(i.token.Action)
		v[ColTokenExpiresOn] = i.token.ExpiresOn.UTC()
		if len(i.token.Payload) > 0 {
			if b, err := json.Marshal(i.token.Payload); err == nil {
				v[ColTokenPayload] = string(b)
			}
		}
	}
	return v
}
