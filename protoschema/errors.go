package protoschema

import (
	"fmt"
	"strings"
)

// SchemaError reports an invalid pbdb annotation. It is fatal for code
// generation and for building a dynamic schema.
type SchemaError struct {
	File    string
	Message string
	Field   string
	Msg     string
}

func schemaErrf(file, message, field string, format string, args ...any) error {
	return &SchemaError{file, message, field, fmt.Sprintf(format, args...)}
}

func (e *SchemaError) Error() string {
	var buf strings.Builder
	if e.File != "" {
		buf.WriteString(e.File)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Message)
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	return buf.String()
}
