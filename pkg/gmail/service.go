package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/pkg/apperr"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName = "gmail"
	me           = "me"
)

// Service is the Gmail-backed MailProvider. Clients are built lazily per user
// from the stored connection and cached until Forget is called.
type Service struct {
	oauth       *oauth2.Config
	connections connrepo.ConnectionRepository
	endpoint    string

	mu      sync.Mutex
	clients map[string]*gmail.Service
}

type Option func(*Service)

// WithEndpoint points the client at a different API root.
func WithEndpoint(endpoint string) Option {
	return func(s *Service) { s.endpoint = endpoint }
}

func NewService(clientID, clientSecret string, connections connrepo.ConnectionRepository, opts ...Option) *Service {
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
		connections: connections,
		clients:     make(map[string]*gmail.Service),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  string
	callback func(*oauth2.Token) error
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current != t.AccessToken {
		s.current = t.AccessToken
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// Forget drops the cached client for userID.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	delete(s.clients, userID)
	s.mu.Unlock()
}

func (s *Service) client(ctx context.Context, userID string) (*gmail.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.clients[userID]; ok {
		return srv, nil
	}

	conn, err := s.connections.Get(ctx, userID, conndomain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.AccessToken == "" {
		return nil, &apperr.NotConnectedError{Provider: providerName, UserID: userID}
	}

	// the cached client outlives this request, so token refreshes use a background context
	baseCtx := context.Background()
	token := conn.OAuthToken()
	source := &notifyTokenSource{
		src:     s.oauth.TokenSource(baseCtx, token),
		current: token.AccessToken,
		callback: func(t *oauth2.Token) error {
			persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.connections.Modify(persistCtx, userID, conndomain.ProviderGmail, func(c *conndomain.Connection) error {
				c.ApplyToken(t)
				return nil
			})
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(baseCtx, source))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	srv, err := gmail.NewService(baseCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	s.clients[userID] = srv
	return srv, nil
}

func (s *Service) ListMessages(ctx context.Context, userID string, q ingestdomain.ListQuery) (*ingestdomain.MessagePage, error) {
	srv, err := s.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	call := srv.Users.Messages.List(me).Context(ctx).Q(q.Query)
	if q.MaxResults > 0 {
		call = call.MaxResults(q.MaxResults)
	}
	if len(q.LabelIDs) > 0 {
		call = call.LabelIds(q.LabelIDs...)
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, providerError("messages.list", err)
	}

	page := &ingestdomain.MessagePage{
		IDs:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

func (s *Service) GetMessage(ctx context.Context, userID, messageID string) (*ingestdomain.RawMessage, error) {
	srv, err := s.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get(me, messageID).Context(ctx).Format("full").Do()
	if err != nil {
		return nil, providerError("messages.get", err)
	}

	raw := &ingestdomain.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
		Payload:  convertPart(msg.Payload),
	}
	if msg.InternalDate > 0 {
		raw.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	return raw, nil
}

func (s *Service) GetAttachment(ctx context.Context, userID, messageID, attachmentID string) ([]byte, error) {
	srv, err := s.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	body, err := srv.Users.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, providerError("attachments.get", err)
	}
	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

func convertPart(part *gmail.MessagePart) *ingestdomain.MessagePart {
	if part == nil {
		return nil
	}
	out := &ingestdomain.MessagePart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		out.Headers = append(out.Headers, ingestdomain.Header{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		out.AttachmentID = part.Body.AttachmentId
		out.Size = int(part.Body.Size)
		if part.Body.Data != "" {
			if data, err := decodeBase64URL(part.Body.Data); err == nil {
				out.Data = data
			} else {
				log.Printf("[Gmail] Failed to decode part %s: %v", part.PartId, err)
			}
		}
	}
	for _, child := range part.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

// decodeBase64URL accepts Gmail's URL-safe base64 with or without padding.
func decodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func providerError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &apperr.ProviderError{Provider: providerName, Op: op, StatusCode: gerr.Code, Body: gerr.Message, Err: err}
	}
	return &apperr.ProviderError{Provider: providerName, Op: op, Err: err}
}
