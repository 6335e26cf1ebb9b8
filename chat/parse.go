package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Log line shapes, anchored at line start:
//
//	00:00:00 --- quit: pjb (Ping timeout)
//	00:06:42 <pjb> Cons Ignucius.
var (
	controlLinePattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`^(\d\d):(\d\d):(\d\d) --- (join|quit): (\S+)(?: (.*))?$`)
	})
	chatLinePattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`^(\d\d):(\d\d):(\d\d) <([^>]+)> (.*)$`)
	})
	archiveNamePattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`^(\d\d)\.(\d\d)\.(\d\d)`)
	})
)

// ParseLine turns one log line into a Message. It returns false for lines of
// any other shape (log start markers, topic changes, garbage); those are not
// errors. The returned message has no ID yet: Session.Apply assigns it.
//
// The author is resolved through users, so a nick is registered even when the
// message is later discarded for having no text.
func ParseLine(users *Registry, date Date, line string) (Message, bool) {
	line = strings.TrimSuffix(line, "\r")

	if m := controlLinePattern().FindStringSubmatch(line); m != nil {
		ts, ok := clock(date, m[1], m[2], m[3])
		if !ok {
			return Message{}, false
		}
		author := users.FindOrCreate(m[5])
		return Message{
			ID:           NoMessage,
			Timestamp:    ts,
			Text:         m[6],
			Command:      Command(m[4]),
			Author:       author.Nick,
			InResponseTo: NoMessage,
			Conversation: NoConversation,
		}, true
	}

	if m := chatLinePattern().FindStringSubmatch(line); m != nil {
		ts, ok := clock(date, m[1], m[2], m[3])
		if !ok {
			return Message{}, false
		}
		author := users.FindOrCreate(m[4])
		return Message{
			ID:           NoMessage,
			Timestamp:    ts,
			Text:         m[5],
			Command:      CommandNone,
			Author:       author.Nick,
			InResponseTo: NoMessage,
			Conversation: NoConversation,
		}, true
	}

	return Message{}, false
}

func clock(date Date, hh, mm, ss string) (time.Time, bool) {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	if h > 23 || m > 59 || s > 59 {
		return time.Time{}, false
	}
	return date.At(h, m, s), true
}

// IsArchiveName reports whether name starts with a YY.MM.DD token.
func IsArchiveName(name string) bool {
	return archiveNamePattern().MatchString(name)
}

// ParseArchiveDate extracts the day covered by an archive named YY.MM.DD.
// Two-digit years are taken as 20YY.
func ParseArchiveDate(name string) (Date, error) {
	m := archiveNamePattern().FindStringSubmatch(name)
	if m == nil {
		return Date{}, fmt.Errorf("archive name %q is not YY.MM.DD", name)
	}
	yy, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	dd, _ := strconv.Atoi(m[3])
	d := Date{Year: 2000 + yy, Month: mo, Day: dd}
	if t := d.At(0, 0, 0); int(t.Month()) != mo || t.Day() != dd {
		return Date{}, fmt.Errorf("archive name %q is not a calendar date", name)
	}
	return d, nil
}
