package main

import (
	"context"
	"net/http"
	"os"

	"github.com/Netflix/go-env"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"pdf-chat/handler"
	"pdf-chat/internal/integrations/chatpdf"
	"pdf-chat/internal/integrations/paramstore"
	"pdf-chat/internal/logging"
	"pdf-chat/internal/repository"
	"pdf-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		logging.NewJSON(os.Stderr, "error").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.NewJSON(os.Stdout, cfg.LogLevel)

	// ---- AWS SDK config ----
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		log.Error("failed to create source store", "err", err)
		os.Exit(1)
	}
	chatpdfClient, err := chatpdf.NewClient(ssmClient, cfg.APIKeyParam(),
		chatpdf.WithBaseURL(cfg.ChatPDFBaseURL),
		chatpdf.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)
	if err != nil {
		log.Error("failed to create ChatPDF client", "err", err)
		os.Exit(1)
	}

	// ---- Use cases ----
	library, err := usecase.NewLibrary(store)
	if err != nil {
		log.Error("failed to create library", "err", err)
		os.Exit(1)
	}
	if err := library.Load(ctx); err != nil {
		log.Error("failed to load sources", "err", err)
		os.Exit(1)
	}
	sources, err := usecase.NewSourceService(chatpdfClient, library, log)
	if err != nil {
		log.Error("failed to create source service", "err", err)
		os.Exit(1)
	}
	chat, err := usecase.NewChatService(chatpdfClient, usecase.Limits{
		MaxMessages:    cfg.MaxMessages,
		MaxTokens:      cfg.MaxTokens,
		MaxQuestionLen: cfg.MaxQuestionLength,
	}, log)
	if err != nil {
		log.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(sources, chat, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
