package internal

import (
	"fmt"
	"log"
	"time"

	"przelewy/entity"
	"przelewy/services"
)

// Logger is a component-tagged log handler. Messages go to standard output;
// when a database is attached, they are also persisted as log records.
// Debug output is emitted only when the debug flag is on.
type Logger struct {
	feature string
	debug   bool
	db      services.Database
}

func NewLogger(feature string, debug bool, db services.Database) *Logger {
	return &Logger{
		feature: feature,
		debug:   debug,
		db:      db,
	}
}

func (l *Logger) Debug(message string) {
	if !l.debug {
		return
	}
	l.write("DEBUG", message)
}

func (l *Logger) Info(message string) {
	l.write("INFO", message)
}

func (l *Logger) Warn(message string) {
	l.write("WARN", message)
}

func (l *Logger) Error(message string, err error) {
	l.write("ERROR", fmt.Sprintf("%s: %v", message, err))
}

func (l *Logger) write(level string, message string) {
	log.Printf("%s\t%s: %s", level, l.feature, message)
	if l.db == nil {
		return
	}
	record := &entity.LogMessage{
		Time:    time.Now(),
		Level:   level,
		Feature: l.feature,
		Text:    message,
	}
	if err := l.db.WriteLogMessage(record); err != nil {
		log.Printf("ERROR\t%s: write log record: %v", l.feature, err)
	}
}
