// Package mail implements the mail fetch source over IMAP. It is a thin
// transport: connect, search recent mail, pull plain-text bodies, hand raw
// messages to the scan cycle.
package mail

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	log "github.com/sirupsen/logrus"

	"github.com/duewatch/duewatch/internal/config"
	"github.com/duewatch/duewatch/internal/parser"
)

// defaultTimeout bounds every IMAP round trip.
const defaultTimeout = 30 * time.Second

// Source fetches messages from one IMAP mailbox. Each Fetch opens a fresh
// session, so every cycle sees a restartable sequence.
type Source struct {
	cfg     config.IMAPConfig
	timeout time.Duration
}

// NewSource builds a Source from the IMAP configuration.
func NewSource(cfg config.IMAPConfig) *Source {
	return &Source{cfg: cfg, timeout: defaultTimeout}
}

// Fetch returns the messages received within the configured lookback
// window. A connection or protocol failure aborts only this fetch; the
// caller retries next cycle.
func (s *Source) Fetch(ctx context.Context) ([]parser.RawMessage, error) {
	c, errDial := client.DialTLS(s.cfg.Server, nil)
	if errDial != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", s.cfg.Server, errDial)
	}
	c.Timeout = s.timeout
	defer func() { _ = c.Logout() }()

	if errLogin := c.Login(s.cfg.Username, s.cfg.Password); errLogin != nil {
		return nil, fmt.Errorf("mail: login: %w", errLogin)
	}
	if _, errSelect := c.Select(s.cfg.Mailbox, true); errSelect != nil {
		return nil, fmt.Errorf("mail: select %s: %w", s.cfg.Mailbox, errSelect)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().AddDate(0, 0, -s.cfg.LookbackDays)
	seqNums, errSearch := c.Search(criteria)
	if errSearch != nil {
		return nil, fmt.Errorf("mail: search: %w", errSearch)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var out []parser.RawMessage
	for msg := range messages {
		select {
		case <-ctx.Done():
			// Drain so the fetch goroutine can finish, then give up.
			for range messages {
			}
			<-done
			return nil, ctx.Err()
		default:
		}

		raw, errExtract := s.toRawMessage(msg, section)
		if errExtract != nil {
			// One undecodable message must not sink the whole fetch.
			log.WithError(errExtract).Warn("mail: skipping undecodable message")
			continue
		}
		out = append(out, raw)
	}
	if errFetch := <-done; errFetch != nil {
		return nil, fmt.Errorf("mail: fetch: %w", errFetch)
	}
	return out, nil
}

// toRawMessage flattens one IMAP message into the parser's input shape.
func (s *Source) toRawMessage(msg *imap.Message, section *imap.BodySectionName) (parser.RawMessage, error) {
	if msg == nil || msg.Envelope == nil {
		return parser.RawMessage{}, fmt.Errorf("mail: message without envelope")
	}

	sender := ""
	if len(msg.Envelope.From) > 0 && msg.Envelope.From[0] != nil {
		sender = msg.Envelope.From[0].Address()
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return parser.RawMessage{}, fmt.Errorf("mail: message without body section")
	}
	raw, errRead := io.ReadAll(literal)
	if errRead != nil {
		return parser.RawMessage{}, fmt.Errorf("mail: read body: %w", errRead)
	}
	body, errBody := extractTextBody(raw)
	if errBody != nil {
		return parser.RawMessage{}, errBody
	}

	return parser.RawMessage{
		Sender:    sender,
		Subject:   msg.Envelope.Subject,
		Body:      body,
		MessageID: msg.Envelope.MessageId,
	}, nil
}
