package backend

// Row property keys produced by the SQLite backend.
const (
	PropID            = "id"
	PropItemURL       = "item_url"
	PropDisplayName   = "display_name"
	PropScope         = "scope"
	PropKind          = "kind"
	PropKindText      = "kind_text"
	PropExtension     = "extension"
	PropRoot          = "root"
	PropRank          = "rank"
	PropSize          = "size"
	PropDateModified  = "date_modified"
	PropGatherTime    = "gather_time"
	PropContentLength = "content_length"
)

// Row is a property bag for one result row.
type Row map[string]any

// String returns a text property. A missing or non-text value is a
// *RowConversionError.
func (r Row) String(key string) (string, error) {
	switch v := r[key].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", &RowConversionError{Property: key, Want: "string", Value: r[key]}
	}
}

// OptString is like String but treats a missing or NULL property as "".
func (r Row) OptString(key string) (string, error) {
	if v, ok := r[key]; !ok || v == nil {
		return "", nil
	}
	return r.String(key)
}

// Int64 returns an integer property.
func (r Row) Int64(key string) (int64, error) {
	switch v := r[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	default:
		return 0, &RowConversionError{Property: key, Want: "integer", Value: r[key]}
	}
}

// HasValue reports whether the property is present and non-empty. Zero
// numbers and empty strings count as empty.
func (r Row) HasValue(key string) bool {
	switch v := r[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []byte:
		return len(v) > 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}
