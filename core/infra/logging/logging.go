package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	logFormatOnce sync.Once
	logAsJSON     bool
	debugEnabled  atomic.Bool
)

func init() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("WEFT_DEBUG"))) {
	case "1", "true", "yes", "on":
		debugEnabled.Store(true)
	}
}

func jsonFormat() bool {
	logFormatOnce.Do(func() {
		logAsJSON = strings.EqualFold(strings.TrimSpace(os.Getenv("WEFT_LOG_FORMAT")), "json")
	})
	return logAsJSON
}

// SetDebug toggles debug logging at runtime.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// Info logs a message with key/value fields using a consistent prefix.
func Info(component, msg string, kv ...any) {
	write("INFO", component, msg, kv...)
}

// Error logs an error message with key/value fields using a consistent prefix.
func Error(component, msg string, kv ...any) {
	write("ERROR", component, msg, kv...)
}

// Debug logs only when debug logging is enabled (WEFT_DEBUG or SetDebug).
func Debug(component, msg string, kv ...any) {
	if !debugEnabled.Load() {
		return
	}
	write("DEBUG", component, msg, kv...)
}

func write(level, component, msg string, kv ...any) {
	if jsonFormat() {
		payload := map[string]any{
			"level":     level,
			"component": component,
			"msg":       msg,
		}
		if len(kv)%2 != 0 {
			kv = append(kv, "(missing)")
		}
		for i := 0; i < len(kv); i += 2 {
			payload[toString(kv[i])] = kv[i+1]
		}
		if data, err := json.Marshal(payload); err == nil {
			log.Print(string(data))
			return
		}
	}
	if level == "INFO" {
		log.Printf("[%s] %s%s", strings.ToUpper(component), msg, formatFields(kv...))
		return
	}
	log.Printf("[%s] %s %s%s", strings.ToUpper(component), level, msg, formatFields(kv...))
}

func formatFields(kv ...any) string {
	if len(kv) == 0 {
		return ""
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	var b strings.Builder
	b.WriteString(" ")
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(toString(kv[i])))
		b.WriteString("=")
		b.WriteString(toString(kv[i+1]))
	}
	return b.String()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(fmt.Sprintf("%v", t)), "\n", " "), "\t", " "))
	}
}
