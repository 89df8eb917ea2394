package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/Netflix/go-env"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"pdf-chat/internal/integrations/chatpdf"
	"pdf-chat/internal/integrations/paramstore"
	"pdf-chat/internal/logging"
	"pdf-chat/internal/repository"
	"pdf-chat/internal/usecase"
)

// staticKey serves an API key taken from the environment.
type staticKey string

func (k staticKey) GetSecret(_ context.Context, _ string) (string, error) {
	return string(k), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pdfchat:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.NewText(os.Stderr, cfg.LogLevel)

	secrets, keyName, err := apiKeySource(ctx, cfg)
	if err != nil {
		return err
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	defer db.Close()

	store, err := repository.NewBadgerStore(db)
	if err != nil {
		return err
	}
	client, err := chatpdf.NewClient(secrets, keyName,
		chatpdf.WithBaseURL(cfg.ChatPDFBaseURL),
		chatpdf.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)
	if err != nil {
		return err
	}

	library, err := usecase.NewLibrary(store)
	if err != nil {
		return err
	}
	if err := library.Load(ctx); err != nil {
		return err
	}
	sources, err := usecase.NewSourceService(client, library, log)
	if err != nil {
		return err
	}
	chat, err := usecase.NewChatService(client, usecase.Limits{
		MaxMessages:    cfg.MaxMessages,
		MaxTokens:      cfg.MaxTokens,
		MaxQuestionLen: cfg.MaxQuestionLength,
	}, log)
	if err != nil {
		return err
	}
	conv, err := usecase.NewConversation(chat, "")
	if err != nil {
		return err
	}

	return newREPL(sources, conv, os.Stdout).Run(ctx, os.Stdin)
}

// apiKeySource prefers CHATPDF_API_KEY and falls back to the SSM parameter
// under PARAM_PREFIX.
func apiKeySource(ctx context.Context, cfg Config) (chatpdf.SecretGetter, string, error) {
	if cfg.ChatPDFAPIKey != "" {
		return staticKey(cfg.ChatPDFAPIKey), "env", nil
	}
	if cfg.ParamPrefix == "" {
		return nil, "", errors.New("set CHATPDF_API_KEY or PARAM_PREFIX")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load AWS config: %w", err)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, "", err
	}
	return ssmClient, cfg.ParamPrefix + "/chatpdf-api-key", nil
}
