package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeTag помечает метку времени в JSON-представлении документа, чтобы time.Time
// переживал текстовые бэкенды. Формат фиксированной ширины в UTC сортируется лексикографически.
const (
	timeTag    = "$time"
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// MarshalDocument кодирует документ в JSON с тегированными метками времени.
func MarshalDocument(data map[string]any) ([]byte, error) {
	b, err := json.Marshal(EncodeValue(data))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

// UnmarshalDocument: обратное к MarshalDocument.
func UnmarshalDocument(b []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	out, _ := decodeValue(raw).(map[string]any)
	return out, nil
}

// EncodeValue приводит значение поля к JSON-совместимому виду.
func EncodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{timeTag: t.UTC().Format(timeLayout)}
	case *time.Time:
		if t == nil {
			return nil
		}
		return map[string]any{timeTag: t.UTC().Format(timeLayout)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = EncodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = EncodeValue(e)
		}
		return out
	}
	return v
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[timeTag].(string); ok {
				if ts, err := time.Parse(timeLayout, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	}
	return v
}

// CloneData копирует карту верхнего уровня и вложенные карты/срезы,
// чтобы вызывающий не мог изменить сохранённый документ.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	}
	return v
}
