package model

// JSONMap represents a generic JSON object. Rows sent to the row store use it.
type JSONMap map[string]interface{}

// String returns the string stored under key, or "" when absent or not a string.
func (m JSONMap) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Source tells whether an operation targets a staged record or an already
// registered remote one.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

func (s Source) Valid() bool {
	return s == SourceLocal || s == SourceRemote
}
