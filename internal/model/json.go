package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap 将 map 存储为 Postgres 的 jsonb 列。
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer 接口。
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口。
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			data = []byte(s)
		} else {
			return errors.New("unsupported jsonb source type")
		}
	}
	return json.Unmarshal(data, m)
}

// JSONArray 将列表存储为 Postgres 的 jsonb 列。
type JSONArray []interface{}

// Value 实现 driver.Valuer 接口。
func (a JSONArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan 实现 sql.Scanner 接口。
func (a *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			data = []byte(s)
		} else {
			return errors.New("unsupported jsonb source type")
		}
	}
	return json.Unmarshal(data, a)
}
