package domain

// Record is one raw vendor API object. The vendor's shapes drift across API
// versions, so all field access goes through these accessors, which collapse
// missing or oddly typed values into explicit nils and zero amounts.
type Record map[string]any

// ID returns the record's external identifier, or an empty string.
func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	return ""
}

// Str returns the string value for key, or nil when absent or not a string.
func (r Record) Str(key string) any {
	if v, ok := r[key].(string); ok {
		return v
	}
	return nil
}

// Num returns the numeric value for key. Absent amounts read as 0.
func (r Record) Num(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Ts returns the unix-seconds timestamp for key, or nil when absent.
func (r Record) Ts(key string) any {
	return r.IntOrNil(key)
}

// IntOrNil returns the integer value for key, or nil when absent. Unlike
// Num this preserves absence instead of defaulting to zero.
func (r Record) IntOrNil(key string) any {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return nil
}

// Bool returns the boolean value for key, defaulting to false.
func (r Record) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Map returns the nested object at key, or nil.
func (r Record) Map(key string) Record {
	switch v := r[key].(type) {
	case map[string]any:
		return Record(v)
	case Record:
		return v
	}
	return nil
}

// Slice returns the array of objects at key, skipping non-object elements.
func (r Record) Slice(key string) []Record {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			records = append(records, Record(m))
		}
	}
	return records
}

// RefID resolves a reference field that the vendor serializes either as a
// bare ID string or as the full expanded object. Returns the ID or nil.
func (r Record) RefID(key string) any {
	switch v := r[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return id
		}
	}
	return nil
}

// RefIDString is RefID narrowed to a string, empty when unresolved.
func (r Record) RefIDString(key string) string {
	if id, ok := r.RefID(key).(string); ok {
		return id
	}
	return ""
}
