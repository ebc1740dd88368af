package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TimestampModel is embedded by every model in this gateway; none of
// them soft-delete, so there's no DeletedAt column to carry.
type TimestampModel struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONField stores an arbitrary JSON object in a single column —
// ChannelParams.Params, Order/Charge.Metadata, Charge.Credential, and
// every Extra/Payload map ride on this type.
type JSONField map[string]interface{}

// GormDataType implements schema.GormDataType.
func (JSONField) GormDataType() string {
	return "json"
}

// GormDBDataType picks the dialect-specific column type: sqlite has no
// native JSON column, so it falls back to TEXT.
func (j JSONField) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "JSON"
	case "sqlite":
		return "TEXT"
	}
	return "TEXT"
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("JSONField.Scan: source is not []byte")
	}

	if len(bytes) == 0 {
		*j = make(JSONField)
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}
