// internal/common/mail/imap.go
package mail

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"inquiry-workers/internal/common/config"
	"inquiry-workers/internal/common/errors"
	"inquiry-workers/internal/common/logger"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
)

// Message is the single record the pipeline needs from the mail source.
type Message struct {
	Subject       string    `json:"subject"`
	SenderAddress string    `json:"senderAddress"`
	PlainTextBody string    `json:"-"`
	SentAt        time.Time `json:"sentAt"`
}

// IMAPSource fetches the most recent message of a mailbox over IMAP.
// Each FetchLatest call opens a fresh connection and logs out afterwards;
// the pipeline performs exactly one fetch per run.
type IMAPSource struct {
	cfg    config.IMAPConfig
	logger logger.Logger
}

func NewIMAPSource(cfg config.IMAPConfig, log logger.Logger) *IMAPSource {
	return &IMAPSource{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "imap"}),
	}
}

// FetchLatest returns the highest-sequence message in the given mailbox.
// An empty mailbox argument falls back to the configured default.
func (s *IMAPSource) FetchLatest(ctx context.Context, mailbox string) (*Message, error) {
	if mailbox == "" {
		mailbox = s.cfg.Mailbox
	}

	timeout := config.GetDuration(s.cfg.Timeout)
	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := client.DialWithDialerTLS(dialer, s.cfg.GetAddress(), nil)
	if err != nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("dial %s: %w", s.cfg.GetAddress(), err))
	}
	defer c.Logout()
	c.Timeout = timeout

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("login: %w", err))
	}

	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("select %s: %w", mailbox, err))
	}
	if mbox.Messages == 0 {
		return nil, errors.NewMailboxEmptyError(mailbox)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	if err := c.Fetch(seqset, items, messages); err != nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("fetch: %w", err))
	}

	msg := <-messages
	if msg == nil || msg.Envelope == nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("no message returned for seq %d", mbox.Messages))
	}

	out := &Message{
		Subject: msg.Envelope.Subject,
		SentAt:  msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		out.SenderAddress = msg.Envelope.From[0].Address()
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("message %d has no body section", mbox.Messages))
	}

	text, err := extractPlainText(body)
	if err != nil {
		return nil, errors.NewMailFetchFailedError(fmt.Errorf("parse body: %w", err))
	}
	out.PlainTextBody = text

	s.logger.Info("fetched latest message", map[string]interface{}{
		"mailbox": mailbox,
		"subject": out.Subject,
		"sender":  out.SenderAddress,
	})

	return out, nil
}

// extractPlainText walks the MIME parts and returns the first text/plain one.
// A single-part text message is handled by the same reader.
func extractPlainText(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", err
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		if h, ok := p.Header.(*gomail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if contentType == "" || strings.HasPrefix(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", err
				}
				return string(b), nil
			}
		}
	}

	return "", nil
}
