package logging

// String builds a string-valued field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int builds an int-valued field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Error builds the standard "error" field from err, or a nil-valued
// field when err is nil.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component names the subsystem emitting the log line.
func Component(name string) Field {
	return String("component", name)
}

// SSTableLevel records which LSM level an SST belongs to.
func SSTableLevel(level uint16) Field {
	return Int("level", int(level))
}

// Count records how many items a batch operation touched.
func Count(n int) Field {
	return Int("count", n)
}

// Path names the file an operation acted on.
func Path(p string) Field {
	return String("path", p)
}
