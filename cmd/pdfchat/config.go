package main

import "time"

type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=.pdfchat"`
	ChatPDFAPIKey     string        `env:"CHATPDF_API_KEY"`
	ParamPrefix       string        `env:"PARAM_PREFIX"`
	ChatPDFBaseURL    string        `env:"CHATPDF_BASE_URL,default=https://api.chatpdf.com/v1"`
	MaxMessages       int           `env:"MAX_MESSAGES,default=6"`
	MaxTokens         int           `env:"MAX_TOKENS,default=2500"`
	MaxQuestionLength int           `env:"MAX_QUESTION_LENGTH,default=2000"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=30s"`
	LogLevel          string        `env:"LOG_LEVEL,default=warn"`
}
