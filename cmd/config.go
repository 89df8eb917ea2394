package main

import "time"

type Config struct {
	StateTable        string        `env:"STATE_TABLE,required=true"`
	ParamPrefix       string        `env:"PARAM_PREFIX,required=true"`
	ChatPDFBaseURL    string        `env:"CHATPDF_BASE_URL,default=https://api.chatpdf.com/v1"`
	MaxMessages       int           `env:"MAX_MESSAGES,default=6"`
	MaxTokens         int           `env:"MAX_TOKENS,default=2500"`
	MaxQuestionLength int           `env:"MAX_QUESTION_LENGTH,default=2000"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=30s"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

// APIKeyParam is the SSM parameter holding the document service key.
func (c Config) APIKeyParam() string {
	return c.ParamPrefix + "/chatpdf-api-key"
}
