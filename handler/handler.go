package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"pdf-chat/internal/domain"
	"pdf-chat/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	uploadField       = "file"
)

// SourceUseCase manages the registered documents.
type SourceUseCase interface {
	Refresh(ctx context.Context) error
	List() []domain.Source
	Selected() (domain.Source, bool)
	Select(id string) (domain.Source, error)
	AddByURL(ctx context.Context, rawURL string) (domain.Source, error)
	AddByFile(ctx context.Context, name string, data []byte) (domain.Source, error)
	Delete(ctx context.Context, id string) error
}

// ChatUseCase answers questions about a document.
type ChatUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type Handler struct {
	sources  SourceUseCase
	chat     ChatUseCase
	log      *slog.Logger
	validate *validator.Validate
}

type sourceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DateAdded time.Time `json:"dateAdded"`
}

type listResponse struct {
	Sources    []sourceResponse `json:"sources"`
	SelectedID string           `json:"selectedId,omitempty"`
}

type addURLRequest struct {
	URL string `json:"url" validate:"required"`
}

type selectRequest struct {
	SourceID string `json:"sourceId" validate:"required"`
}

type messageBody struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type chatRequest struct {
	// SourceID defaults to the selected source.
	SourceID string        `json:"sourceId"`
	Messages []messageBody `json:"messages" validate:"required,min=1,dive"`
}

type chatResponse struct {
	Content    string                 `json:"content"`
	References []domain.PageReference `json:"references"`
	HTML       string                 `json:"html"`
	Sent       int                    `json:"sent"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(sources SourceUseCase, chat ChatUseCase, log *slog.Logger) (*Handler, error) {
	if sources == nil {
		return nil, errors.New("handler: source use case must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		sources:  sources,
		chat:     chat,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Handle routes an API Gateway proxy event. Failures are always reported as
// JSON responses; the returned error is reserved for the runtime.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	status, body := h.route(ctx, event, log)
	resp := jsonResponse(status, body, correlationID)
	log.Info("request handled", "status", status, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	path := "/" + strings.Trim(event.Path, "/")
	method := strings.ToUpper(event.HTTPMethod)

	switch {
	case method == http.MethodDelete && strings.HasPrefix(path, "/sources/"):
		id := strings.TrimPrefix(path, "/sources/")
		if v, ok := event.PathParameters["id"]; ok && v != "" {
			id = v
		}
		return h.deleteSource(ctx, id, log)
	case path == "/sources":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.listSources(ctx, log)
	case path == "/sources/url":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.addURL(ctx, event, log)
	case path == "/sources/file":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.addFile(ctx, event, log)
	case path == "/sources/select":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.selectSource(event, log)
	case strings.HasPrefix(path, "/sources/"):
		return methodNotAllowed()
	case path == "/chat":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.ask(ctx, event, log)
	default:
		return http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"}
	}
}

// listSources reloads first so sources saved by other instances show up.
func (h *Handler) listSources(ctx context.Context, log *slog.Logger) (int, any) {
	if err := h.sources.Refresh(ctx); err != nil {
		return failure(log, "refresh sources failed", err)
	}
	return http.StatusOK, h.sourceList()
}

func (h *Handler) sourceList() listResponse {
	resp := listResponse{Sources: toSourceResponses(h.sources.List())}
	if sel, ok := h.sources.Selected(); ok {
		resp.SelectedID = sel.ID
	}
	return resp
}

func (h *Handler) addURL(ctx context.Context, event events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	var req addURLRequest
	if status, body, ok := h.decode(event, &req); !ok {
		return status, body
	}
	src, err := h.sources.AddByURL(ctx, req.URL)
	if err != nil {
		return failure(log, "add source by url failed", err)
	}
	return http.StatusCreated, toSourceResponse(src)
}

func (h *Handler) addFile(ctx context.Context, event events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	name, data, err := readUpload(event)
	if err != nil {
		log.Warn("invalid upload", "err", err)
		return badRequest("invalid_upload")
	}
	src, err := h.sources.AddByFile(ctx, name, data)
	if err != nil {
		return failure(log, "add source by file failed", err)
	}
	return http.StatusCreated, toSourceResponse(src)
}

func (h *Handler) selectSource(event events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	var req selectRequest
	if status, body, ok := h.decode(event, &req); !ok {
		return status, body
	}
	src, err := h.sources.Select(req.SourceID)
	if err != nil {
		return failure(log, "select source failed", err)
	}
	return http.StatusOK, toSourceResponse(src)
}

func (h *Handler) deleteSource(ctx context.Context, id string, log *slog.Logger) (int, any) {
	if strings.TrimSpace(id) == "" {
		return badRequest("empty_source_id")
	}
	if err := h.sources.Delete(ctx, id); err != nil {
		return failure(log, "delete source failed", err)
	}
	return http.StatusOK, h.sourceList()
}

func (h *Handler) ask(ctx context.Context, event events.APIGatewayProxyRequest, log *slog.Logger) (int, any) {
	var req chatRequest
	if status, body, ok := h.decode(event, &req); !ok {
		return status, body
	}

	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		sel, ok := h.sources.Selected()
		if !ok {
			return badRequest("no_source_selected")
		}
		sourceID = sel.ID
	}

	out, err := h.chat.Ask(ctx, usecase.AskInput{
		SourceID: sourceID,
		Messages: lo.Map(req.Messages, func(m messageBody, _ int) domain.ChatMessage {
			return domain.ChatMessage{Role: m.Role, Content: m.Content}
		}),
	})
	if err != nil {
		return failure(log, "ask failed", err)
	}

	refs := out.References
	if refs == nil {
		refs = []domain.PageReference{}
	}
	return http.StatusOK, chatResponse{Content: out.Content, References: refs, HTML: out.HTML, Sent: out.Sent}
}

// decode unmarshals and validates a JSON body into dst. ok is false when the
// returned status and body should be sent as is.
func (h *Handler) decode(event events.APIGatewayProxyRequest, dst any) (int, any, bool) {
	raw, err := requestBody(event)
	if err != nil {
		status, body := badRequest("invalid_body")
		return status, body, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		status, body := badRequest("invalid_json")
		return status, body, false
	}
	if err := h.validate.Struct(dst); err != nil {
		status, body := badRequest("invalid_request")
		return status, body, false
	}
	return 0, nil, true
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if event.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(event.Body)
	}
	return []byte(event.Body), nil
}

// readUpload extracts the "file" part of a multipart/form-data body. Reading
// stops one byte past the upload limit so oversized files are still rejected
// by the use case.
func readUpload(event events.APIGatewayProxyRequest) (string, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(headerValue(event.Headers, "Content-Type"))
	if err != nil {
		return "", nil, err
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return "", nil, errors.New("expected multipart/form-data")
	}
	raw, err := requestBody(event)
	if err != nil {
		return "", nil, err
	}

	mr := multipart.NewReader(bytes.NewReader(raw), params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errors.New("missing file part")
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != uploadField {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, usecase.MaxUploadBytes+1))
		if err != nil {
			return "", nil, err
		}
		return part.FileName(), data, nil
	}
}

func failure(log *slog.Logger, msg string, err error) (int, any) {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		log.Error(msg, "err", err)
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}

	status := statusFor(usecaseErr.Code)
	if status >= http.StatusInternalServerError {
		log.Error(msg, "code", usecaseErr.Code, "reason", usecaseErr.Reason, "err", err)
	} else {
		log.Warn(msg, "code", usecaseErr.Code, "reason", usecaseErr.Reason)
	}
	return status, errorResponse{Error: string(usecaseErr.Code), Reason: usecaseErr.Reason}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(reason string) (int, any) {
	return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: reason}
}

func methodNotAllowed() (int, any) {
	return http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"}
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func toSourceResponse(src domain.Source) sourceResponse {
	return sourceResponse{ID: src.ID, Name: src.Name, DateAdded: src.DateAdded}
}

func toSourceResponses(sources []domain.Source) []sourceResponse {
	return lo.Map(sources, func(s domain.Source, _ int) sourceResponse { return toSourceResponse(s) })
}
