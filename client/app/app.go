package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	chatsvc "takahome/client/chat/service"
	contractsvc "takahome/client/contract/service"
	"takahome/common/apiclient"
	"takahome/common/auth"
	"takahome/common/infra/cache"
	commonlog "takahome/common/log"
)

type tokenStore interface {
	auth.TokenProvider
	auth.TokenInvalidator
	Save(ctx context.Context, token string) error
}

// App wires the REST client, contract listing and chat session around one
// shared token provider.
type App struct {
	Config    Config
	Tokens    auth.TokenProvider
	API       *apiclient.Client
	Bookings  *contractsvc.BookingClient
	Projector *contractsvc.Projector
	Contracts *contractsvc.ContractService
	History   *chatsvc.HistoryClient
	Chat      *chatsvc.SessionManager

	store tokenStore
	redis *redis.Client
}

func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{Config: cfg}
	switch cfg.TokenStore {
	case TokenStoreRedis:
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect token store redis=%s: %w", cfg.RedisAddr, err)
		}
		a.redis = client
		a.store = auth.NewRedisTokenStore(client, cfg.Profile)
	case TokenStoreMemory, "":
		a.store = auth.NewMemoryTokenStore("")
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
	a.Tokens = auth.ChainProvider{auth.StaticToken(cfg.Token), a.store}

	a.API = apiclient.New(a.Tokens, apiclient.Options{Timeout: cfg.HTTPTimeout}, cfg.APIURLs...)
	a.Bookings = contractsvc.NewBookingClient(a.API)
	a.Projector = contractsvc.NewProjector()
	a.Contracts = contractsvc.NewContractService(a.Bookings, a.Projector)
	a.History = chatsvc.NewHistoryClient(a.API)
	a.Chat = chatsvc.NewSessionManager(chatsvc.WSTransportFactory(chatsvc.WSOptions{
		BaseURL:   cfg.BaseURL(),
		Reconnect: cfg.Reconnect,
	}), a.Tokens)

	commonlog.Debugf("event=client_app action=init status=ok api=%s token_store=%s profile=%s", cfg.BaseURL(), cfg.TokenStore, cfg.Profile)
	return a, nil
}

func (a *App) SaveToken(ctx context.Context, token string) error {
	if _, err := auth.InspectToken(token); err != nil {
		return fmt.Errorf("inspect token: %w", err)
	}
	return a.store.Save(ctx, token)
}

func (a *App) Logout(ctx context.Context) error {
	a.Chat.Disconnect()
	return a.store.Invalidate(ctx)
}

// CurrentUser reads the identity claims of the active token without
// verifying its signature; the backend does that.
func (a *App) CurrentUser(ctx context.Context) (auth.Claims, error) {
	token, err := a.Tokens.Token(ctx)
	if err != nil {
		return auth.Claims{}, err
	}
	claims, err := auth.InspectToken(token)
	if err != nil {
		return auth.Claims{}, err
	}
	if claims.Principal() == "" {
		return auth.Claims{}, errors.New("token carries no user id")
	}
	return claims, nil
}

func (a *App) Close() {
	a.Chat.Disconnect()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
