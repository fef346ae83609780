package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	log "github.com/sirupsen/logrus"
)

// JournalHook is a logrus hook that sends entries to the systemd journal.
type JournalHook struct {
	identifier string
	send       func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalHook creates a hook tagging entries with SYSLOG_IDENTIFIER.
func NewJournalHook(identifier string) *JournalHook {
	return &JournalHook{identifier: identifier, send: journal.Send}
}

// Levels returns every level; the logger's own level does the filtering.
func (h *JournalHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire sends one entry.
func (h *JournalHook) Fire(e *log.Entry) error {
	return h.send(e.Message, priority(e.Level), journalFields(e, h.identifier))
}

// UseJournal routes l to the journal when the process is running under
// systemd with a journal socket. It reports whether it did.
func UseJournal(l *log.Logger, identifier string) bool {
	if !journal.Enabled() {
		return false
	}
	l.AddHook(NewJournalHook(identifier))
	l.SetOutput(io.Discard)
	return true
}

func priority(level log.Level) journal.Priority {
	switch level {
	case log.PanicLevel:
		return journal.PriCrit
	case log.FatalLevel, log.ErrorLevel:
		return journal.PriErr
	case log.WarnLevel:
		return journal.PriWarning
	case log.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalFields converts entry data to upper-case journal variables.
func journalFields(e *log.Entry, identifier string) map[string]string {
	fields := make(map[string]string, len(e.Data)+1)
	fields["SYSLOG_IDENTIFIER"] = identifier
	for k, v := range e.Data {
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
		if err, ok := v.(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = fmt.Sprint(v)
	}
	return fields
}
