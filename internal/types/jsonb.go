package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. These ensure all JSONB types implement
// both sql.Scanner and driver.Valuer, catching method signature drift at
// compile time. Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*SessionContext)(nil)
	_ driver.Valuer = SessionContext{}
	_ sql.Scanner   = (*ChannelList)(nil)
	_ driver.Valuer = ChannelList(nil)
	_ sql.Scanner   = (*DeliveryStatusMap)(nil)
	_ driver.Valuer = DeliveryStatusMap(nil)
	_ sql.Scanner   = (*ResponseData)(nil)
	_ driver.Valuer = ResponseData(nil)
	_ sql.Scanner   = (*NotificationPreferences)(nil)
	_ driver.Valuer = NotificationPreferences{}
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB converts a Go value to a JSONB-compatible driver.Value.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (c *SessionContext) Scan(value interface{}) error {
	return scanJSONB(c, value)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (c SessionContext) Value() (driver.Value, error) {
	return valueJSONB(c)
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (cl *ChannelList) Scan(value interface{}) error {
	if value == nil {
		*cl = nil
		return nil
	}
	return scanJSONB(cl, value)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (cl ChannelList) Value() (driver.Value, error) {
	if cl == nil {
		return json.Marshal([]Channel{})
	}
	return json.Marshal([]Channel(cl))
}

// Contains reports whether ch is in the list.
func (cl ChannelList) Contains(ch Channel) bool {
	for _, c := range cl {
		if c == ch {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (m *DeliveryStatusMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (m DeliveryStatusMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[Channel]ChannelDelivery{})
	}
	return json.Marshal(map[Channel]ChannelDelivery(m))
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (d *ResponseData) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	return scanJSONB(d, value)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (d ResponseData) Value() (driver.Value, error) {
	return valueJSONB(d)
}

// Scan implements sql.Scanner for reading JSONB from the database.
func (p *NotificationPreferences) Scan(value interface{}) error {
	return scanJSONB(p, value)
}

// Value implements driver.Valuer for writing JSONB to the database.
func (p NotificationPreferences) Value() (driver.Value, error) {
	return valueJSONB(p)
}
