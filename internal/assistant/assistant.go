package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"go.uber.org/zap"
)

// Mode selects how an instruction is answered.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeResearch Mode = "research"
	ModeDraft    Mode = "draft"
	ModeContext  Mode = "context"
)

const (
	draftContentMarker = "__DRAFT_CONTENT__"
	// externalFailureText is shown in place of generator error details.
	externalFailureText = "Sorry, an error occurred while contacting the assistant. Please try again."
)

var (
	// ErrExternalService indicates that the generative service failed.
	ErrExternalService = errors.New("assistant: external service failure")
	// ErrInvalidMode indicates an unknown assistant mode.
	ErrInvalidMode = errors.New("assistant: invalid mode")
	// ErrEmptyInstruction indicates a request without instruction text.
	ErrEmptyInstruction = errors.New("assistant: empty instruction")
)

// ParseMode maps a request value to a Mode. "chatbot" is accepted for chat.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeChat, "chatbot":
		return ModeChat, nil
	case ModeResearch:
		return ModeResearch, nil
	case ModeDraft:
		return ModeDraft, nil
	case ModeContext:
		return ModeContext, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Prompt is one request to the generative service.
type Prompt struct {
	Mode Mode
	Text string
}

// Generator produces text for a prompt. A nil result with a nil error means
// the service returned no response.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*string, error)
}

// DraftStore is the subset of the version history store the assistant uses.
type DraftStore interface {
	Document(conversationID drafts.ConversationID) drafts.Document
	NewVersion(ctx context.Context, conversationID drafts.ConversationID, content drafts.Snapshot) (drafts.Transition, error)
}

// Request is one user instruction for a conversation.
type Request struct {
	ConversationID drafts.ConversationID
	Mode           Mode
	Instruction    string
}

// Reply is the assistant's answer. Err is set when the answer is a locally
// generated error message.
type Reply struct {
	Mode        Mode
	Text        string
	Placeholder bool
	Draft       *drafts.Transition
	Err         error
}

type Config struct {
	Generator Generator
	Drafts    DraftStore
	Logger    *zap.Logger
}

// Service answers instructions and turns draft responses into new versions.
type Service struct {
	generator  Generator
	drafts     DraftStore
	summarizer *summarizer
	logger     *zap.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Drafts == nil {
		return nil, errors.New("draft store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		generator:  cfg.Generator,
		drafts:     cfg.Drafts,
		summarizer: newSummarizer(),
		logger:     logger,
	}, nil
}

// Assist answers request. Generator failures are recovered into Reply.Err and
// leave the draft history untouched; only store failures are returned.
func (s *Service) Assist(ctx context.Context, request Request) (Reply, error) {
	if strings.TrimSpace(request.Instruction) == "" {
		return Reply{}, ErrEmptyInstruction
	}
	if _, err := ParseMode(string(request.Mode)); err != nil {
		return Reply{}, err
	}

	document := s.drafts.Document(request.ConversationID)
	reply := Reply{Mode: request.Mode}

	response, err := s.generate(ctx, Prompt{Mode: request.Mode, Text: buildPrompt(request, document)})
	if err != nil {
		s.logger.Warn("assistant generation failed",
			zap.String("conversation_id", request.ConversationID.String()),
			zap.String("mode", string(request.Mode)),
			zap.Error(err))
		reply.Err = fmt.Errorf("%w: %v", ErrExternalService, err)
		reply.Text = externalFailureText
		return reply, nil
	}

	text := ""
	if response == nil {
		text = placeholderFor(request.Mode)
		reply.Placeholder = true
	} else {
		text = *response
	}

	if request.Mode != ModeDraft {
		reply.Text = text
		return reply, nil
	}

	markup := richtext.DraftMarkup(text)
	transition, err := s.drafts.NewVersion(ctx, request.ConversationID, drafts.Snapshot(markup))
	if err != nil {
		return Reply{}, err
	}
	reply.Draft = &transition
	reply.Text = s.summarize(ctx, request, markup, previousDrafts(document))
	return reply, nil
}

func (s *Service) generate(ctx context.Context, prompt Prompt) (*string, error) {
	if s.generator == nil {
		return nil, nil
	}
	return s.generator.Generate(ctx, prompt)
}

func (s *Service) summarize(ctx context.Context, request Request, draft string, previous []string) string {
	prompt, err := s.summarizer.prompt(request.Instruction, draft, previous)
	if err != nil {
		s.logger.Warn("summary prompt failed", zap.Error(err))
		return localSummary(request.Instruction, draft, len(previous)+1)
	}
	summary, err := s.generate(ctx, Prompt{Mode: ModeDraft, Text: prompt})
	if err != nil || summary == nil || strings.TrimSpace(*summary) == "" {
		if err != nil {
			s.logger.Warn("draft summary failed",
				zap.String("conversation_id", request.ConversationID.String()),
				zap.Error(err))
		}
		return localSummary(request.Instruction, draft, len(previous)+1)
	}
	return *summary
}

func previousDrafts(document drafts.Document) []string {
	versions := document.Versions()
	contents := make([]string, 0, len(versions))
	for _, version := range versions {
		contents = append(contents, version.Content().String())
	}
	return contents
}

func buildPrompt(request Request, document drafts.Document) string {
	switch request.Mode {
	case ModeDraft:
		var prompt strings.Builder
		prompt.WriteString("As a legal document drafter, create a draft legal notice based on the following requirements.\n")
		prompt.WriteString("Give only the legal draft without any other text for: ")
		prompt.WriteString(request.Instruction)
		if current, ok := document.Current(); ok && strings.TrimSpace(current.String()) != "" {
			prompt.WriteString("\n\n" + draftContentMarker + "\n")
			prompt.WriteString(current.String())
		}
		prompt.WriteString("\n\nUse clear and concise language with the necessary legal clauses and statements.")
		return prompt.String()
	case ModeResearch:
		return "Research the following legal question and cite the authorities you rely on:\n" + request.Instruction
	case ModeContext:
		return "Treat the following material as case context and acknowledge the key facts:\n" + request.Instruction
	default:
		return "As a legal chatbot, provide a concise and informative response to the following query:\n" + request.Instruction
	}
}
