package cli

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	api "github.com/kowsik11/abhivan/cmd/api"
	authUsecase "github.com/kowsik11/abhivan/internal/auth/usecase"
	connectionDelivery "github.com/kowsik11/abhivan/internal/connection/delivery"
	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	connectionUsecase "github.com/kowsik11/abhivan/internal/connection/usecase"
	crmdomain "github.com/kowsik11/abhivan/internal/crm/domain"
	crmusecase "github.com/kowsik11/abhivan/internal/crm/usecase"
	extractionUsecase "github.com/kowsik11/abhivan/internal/extraction/usecase"
	ingestDelivery "github.com/kowsik11/abhivan/internal/ingest/delivery"
	ingestrepo "github.com/kowsik11/abhivan/internal/ingest/repository"
	ingestUsecase "github.com/kowsik11/abhivan/internal/ingest/usecase"
	pipelineDelivery "github.com/kowsik11/abhivan/internal/pipeline/delivery"
	pipelineUsecase "github.com/kowsik11/abhivan/internal/pipeline/usecase"
	"github.com/kowsik11/abhivan/pkg/config"
	"github.com/kowsik11/abhivan/pkg/crmhttp"
	"github.com/kowsik11/abhivan/pkg/database"
	"github.com/kowsik11/abhivan/pkg/extract"
	"github.com/kowsik11/abhivan/pkg/gemini"
	"github.com/kowsik11/abhivan/pkg/gmail"
	"github.com/kowsik11/abhivan/pkg/hubspot"
	"github.com/kowsik11/abhivan/pkg/kvstore"
	"github.com/kowsik11/abhivan/pkg/zoho"
)

// Container holds the wired application graph shared by every command.
type Container struct {
	Config *config.Config
	db     *gorm.DB

	Connections connrepo.ConnectionRepository
	Cursors     ingestrepo.CursorRepository
	Messages    ingestrepo.MessageRepository

	Gmail      *gmail.Service
	Auth       authUsecase.AuthUsecase
	Connection connectionUsecase.ConnectionUsecase
	Mailbox    ingestUsecase.MailboxUsecase
	Runner     *pipelineUsecase.Runner
}

func NewContainer(cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{Config: cfg}

	store, err := c.openStore()
	if err != nil {
		return nil, err
	}

	// Initialize repositories (dependency injection)
	c.Connections = connrepo.NewConnectionRepository(store)
	c.Cursors = ingestrepo.NewCursorRepository(store)
	c.Messages = ingestrepo.NewMessageRepository(store, cfg.MessageIndexLimit)

	// Ingestion
	c.Gmail = gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, c.Connections)
	fetcher := ingestUsecase.NewFetcher(c.Gmail, extract.NewExtractor(), c.Cursors, c.Messages)
	c.Mailbox = ingestUsecase.NewMailboxUsecase(fetcher, c.Connections, c.Cursors, c.Messages)

	// Extraction
	geminiService := gemini.NewGeminiService(gemini.Config{
		Endpoint:    cfg.GeminiEndpoint,
		Model:       cfg.GeminiModel,
		APIKeys:     cfg.GeminiAPIKeys,
		Temperature: cfg.GeminiTemperature,
	})
	analyzer := extractionUsecase.NewAnalyzer(geminiService)
	validator, err := extractionUsecase.NewValidator(analyzer, cfg.ExtractionMaxRetries)
	if err != nil {
		return nil, err
	}

	// CRM backends
	syncer := crmusecase.NewSyncer(map[crmdomain.Target]crmdomain.SyncEngine{
		crmdomain.TargetHubSpot: hubspot.NewEngine(c.crmClient(conndomain.ProviderHubSpot, "Bearer", cfg.HubSpotClientID, cfg.HubSpotClientSecret, cfg.HubSpotTokenURL, cfg.HubSpotAPIBase), c.Connections),
		crmdomain.TargetZoho:    zoho.NewEngine(c.crmClient(conndomain.ProviderZoho, "Zoho-oauthtoken", cfg.ZohoClientID, cfg.ZohoClientSecret, cfg.ZohoAccountsURL+"/oauth/v2/token", cfg.ZohoAPIBase)),
	})

	c.Runner = pipelineUsecase.NewRunner(fetcher, analyzer, validator, syncer, c.Connections, c.Messages)
	c.Connection = connectionUsecase.NewConnectionUsecase(c.Connections, c.Cursors, c.Messages, c.Gmail)
	c.Auth = authUsecase.NewAuthUsecase(cfg.JWTSecret)

	log.Printf("[Container] Ready (store=%s, gemini keys=%d)", cfg.StoreBackend, len(cfg.GeminiAPIKeys))
	return c, nil
}

func (c *Container) openStore() (kvstore.Store, error) {
	switch c.Config.StoreBackend {
	case "", "memory":
		log.Println("[Container] Using in-memory store; state is lost on exit")
		return kvstore.NewMemoryStore(), nil
	case "postgres":
		db, err := database.NewPostgresConnection(c.Config)
		if err != nil {
			return nil, err
		}
		if err := kvstore.Migrate(db); err != nil {
			return nil, fmt.Errorf("unable to migrate store: %w", err)
		}
		c.db = db
		return kvstore.NewGormStore(db), nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", c.Config.StoreBackend)
}

func (c *Container) crmClient(provider conndomain.Provider, scheme, clientID, clientSecret, tokenURL, apiBase string) *crmhttp.Client {
	tokens := crmhttp.NewOAuthTokenSource(crmhttp.OAuthConfig{
		Provider:     provider,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		APIBase:      apiBase,
	}, c.Connections)
	return crmhttp.NewClient(crmhttp.Config{
		Provider:   string(provider),
		AuthScheme: scheme,
		Tokens:     tokens,
		RetryPause: c.Config.CRMRetryPause,
	})
}

// APIHandler wires the HTTP delivery layer on top of the container.
func (c *Container) APIHandler() (*api.Handler, error) {
	defaultCRM, err := crmdomain.ParseTarget(c.Config.DefaultCRM)
	if err != nil {
		return nil, err
	}
	return api.NewHandler(
		c.Auth,
		connectionDelivery.NewConnectionHandler(c.Connection),
		ingestDelivery.NewMailboxHandler(c.Mailbox, c.Config.PollMaxMessages),
		pipelineDelivery.NewPipelineHandler(c.Runner, defaultCRM, c.Config.PollMaxMessages),
	), nil
}

func (c *Container) Close() {
	if c.db == nil {
		return
	}
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
