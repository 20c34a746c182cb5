package log

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F constructs a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err constructs the conventional "error" field. A nil error yields an
// empty value so call sites do not need to branch.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Fields is a map of field names to values, used internally by formatters.
type Fields map[string]interface{}
