// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/fracabu/logistic-data-dash/src/storage"
)

const (
	// MaxFetchMessages caps one fetch round so a backlogged inbox cannot
	// blow up memory.
	MaxFetchMessages   = 100
	FetchBufferSize    = 10
	RecentMailDuration = 24 * time.Hour
)

// MailService is the mailbox access surface, narrow enough to fake in tests.
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnreadEmails() ([]*Email, error)
}

// Handler processes one fetched email.
type Handler interface {
	Handle(email *Email) error
}

// Email is one fetched message, headers decoded, attachments in memory.
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

type Attachment struct {
	Filename string
	Content  []byte
}

// Client is the IMAP implementation of MailService.
type Client struct {
	server    string
	username  string
	password  string
	client    *client.Client
	mu        sync.Mutex
	connected bool
}

func NewClient(server, username, password string) *Client {
	return &Client{
		server:   server,
		username: username,
		password: password,
	}
}

// Connect dials the server over TLS and logs in. An existing live
// connection is reused; a stale one is torn down first.
func (s *Client) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		s.client.Logout()
		s.client = nil
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.server, err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("login failed: %w", err)
	}

	s.client = c
	s.connected = true
	return nil
}

func (s *Client) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
	s.connected = false
}

// FetchUnreadEmails returns unread messages from INBOX received within
// RecentMailDuration, newest-capped at MaxFetchMessages.
func (s *Client) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, fmt.Errorf("not connected to the mail server")
	}

	if _, err := s.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-RecentMailDuration)

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxFetchMessages {
		ids = ids[:MaxFetchMessages]
	}

	return s.fetchMessages(ids)
}

func (s *Client) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		parsed, err := s.parseEmail(msg, section)
		if err != nil {
			continue
		}
		emails = append(emails, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching message bodies: %w", err)
	}
	return emails, nil
}

func (s *Client) parseEmail(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("message has no body")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating mail reader: %w", err)
	}

	header := mr.Header
	date, _ := header.Date()

	parsed := &Email{
		UID:     msg.Uid,
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if h, ok := p.Header.(*mail.AttachmentHeader); ok {
			s.parseAttachment(h, p.Body, parsed)
		}
	}

	return parsed, nil
}

func (s *Client) parseAttachment(h *mail.AttachmentHeader, body io.Reader, parsed *Email) {
	filename, err := h.Filename()
	if err != nil || filename == "" {
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return
	}

	parsed.Attachments = append(parsed.Attachments, &Attachment{
		Filename: decodeHeader(filename),
		Content:  buf.Bytes(),
	})
}

// decodeHeader decodes =?charset?encoding?...?= encoded words, falling back
// to the raw header on failure.
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// CheckAndProcessEmails runs one mailbox round: connect, fetch unread,
// pick the most recent message whose subject matches, hand it to the
// handler.
func CheckAndProcessEmails(mailService MailService, handler Handler, targetSubject string, logger *storage.Logger) error {
	startTime := time.Now()
	logger.Info("checking mailbox")

	if err := mailService.Connect(); err != nil {
		return fmt.Errorf("mailbox connect: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.FetchUnreadEmails()
	if err != nil {
		return fmt.Errorf("fetching unread mail: %w", err)
	}
	if len(emails) == 0 {
		logger.Info("no new mail")
		return nil
	}

	target := filterLatestTargetEmail(emails, targetSubject)
	if target == nil {
		logger.Info("no mail matching the target subject")
		return nil
	}

	if err := handler.Handle(target); err != nil {
		return fmt.Errorf("handling mail %q: %w", target.Subject, err)
	}

	logger.Info(fmt.Sprintf("mailbox round done in %v", time.Since(startTime)))
	return nil
}

// filterLatestTargetEmail keeps subject matches and returns the newest one.
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var matches []*Email
	for _, e := range emails {
		if strings.Contains(e.Subject, keyword) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Date.After(matches[j].Date)
	})
	return matches[0]
}
