package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	sessionstore "github.com/zhouzirui/z-call/backend/internal/service/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/speech"
)

var (
	ErrInvalidCharacter    = apperr.NewBadRequest("Invalid character")
	ErrNoCharacterSelected = apperr.NewBadRequest("No character selected")
	ErrEmptyMessage        = apperr.NewBadRequest("Empty message")
)

// Completer produces persona replies.
type Completer interface {
	Ready() error
	Complete(ctx context.Context, ch character.Character, userMessage string, history []chat.Turn) (string, error)
	InitialGreeting(ctx context.Context, ch character.Character) (string, bool)
}

// Synthesizer produces base64 audio for a reply.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speakerID string) (string, error)
}

// TurnObserver records relay outcomes.
type TurnObserver interface {
	ObserveTurn(operation string, err error, endCall bool)
}

// SelectResult is the outcome of answering a call.
type SelectResult struct {
	Character      character.View
	InitialMessage *string
	InitialAudio   *string
}

// SendResult is the outcome of one caller message.
type SendResult struct {
	Response string
	EndCall  bool
	Audio    *string
}

// Service runs the per-session call state machine.
type Service struct {
	characters character.Store
	sessions   sessionstore.Store
	completer  Completer
	tts        Synthesizer
	observer   TurnObserver
	logger     *slog.Logger
}

// NewService wires the relay. tts and observer may be nil.
func NewService(characters character.Store, sessions sessionstore.Store, completer Completer, tts Synthesizer, observer TurnObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		characters: characters,
		sessions:   sessions,
		completer:  completer,
		tts:        tts,
		observer:   observer,
		logger:     logger.With("component", "relay"),
	}
}

// Session returns the session for token, creating it on first contact.
func (s *Service) Session(token string) *chat.Session {
	return s.sessions.GetOrCreate(token)
}

// Select answers a call from characterID. An unknown character or a missing
// chat credential leaves the session untouched. A greeting or audio failure
// yields nil fields instead of an error.
func (s *Service) Select(ctx context.Context, session *chat.Session, characterID string) (result *SelectResult, err error) {
	defer func() { s.observe("select", err, false) }()

	ch, ok := s.characters.FindByID(strings.TrimSpace(characterID))
	if !ok {
		return nil, ErrInvalidCharacter
	}
	if err := s.completer.Ready(); err != nil {
		return nil, err
	}

	release := session.BeginTurn()
	defer release()

	s.sessions.SetCharacter(session, ch.ID)
	result = &SelectResult{Character: ch.Public()}

	greeting, ok := s.completer.InitialGreeting(ctx, ch)
	if !ok {
		return result, nil
	}
	greeting, _ = StripEndCall(greeting)
	if greeting == "" {
		return result, nil
	}

	s.sessions.AppendTurns(session, chat.AssistantTurn(greeting))
	result.InitialMessage = &greeting
	result.InitialAudio = s.synthesize(ctx, session, greeting, ch.SpeakerID)
	return result, nil
}

// Send relays one caller message. The session's character wins over
// fallbackCharacterID; a valid fallback is adopted once the turn succeeds.
// Any failure before the reply arrives leaves the history unchanged.
func (s *Service) Send(ctx context.Context, session *chat.Session, message, fallbackCharacterID string) (result *SendResult, err error) {
	defer func() {
		endCall := result != nil && result.EndCall
		s.observe("send", err, endCall)
	}()

	release := session.BeginTurn()
	defer release()

	ch, adopt, err := s.characterFor(session, fallbackCharacterID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	raw, err := s.completer.Complete(ctx, ch, text, session.History())
	if err != nil {
		s.logger.Warn("completion failed", "session", shortID(session.ID), "character", ch.ID, "error", err)
		return nil, err
	}

	cleaned, endCall := StripEndCall(raw)
	if adopt {
		s.sessions.SetCharacter(session, ch.ID)
	}
	s.sessions.AppendTurns(session, chat.UserTurn(text), chat.AssistantTurn(cleaned))

	result = &SendResult{Response: cleaned, EndCall: endCall}
	if cleaned != "" {
		result.Audio = s.synthesize(ctx, session, cleaned, ch.SpeakerID)
	}
	if endCall {
		s.logger.Info("persona ended call", "session", shortID(session.ID), "character", ch.ID)
	}
	return result, nil
}

// Reset clears the history and unsets the character. It always succeeds.
func (s *Service) Reset(session *chat.Session) {
	release := session.BeginTurn()
	defer release()

	s.sessions.SetCharacter(session, "")
	s.observe("reset", nil, false)
}

// Characters lists the roster.
func (s *Service) Characters() []character.View {
	return character.Views(s.characters)
}

func (s *Service) characterFor(session *chat.Session, fallbackID string) (character.Character, bool, error) {
	if id := session.CharacterID(); id != "" {
		if ch, ok := s.characters.FindByID(id); ok {
			return ch, false, nil
		}
	}
	if id := strings.TrimSpace(fallbackID); id != "" {
		if ch, ok := s.characters.FindByID(id); ok {
			return ch, true, nil
		}
	}
	return character.Character{}, false, ErrNoCharacterSelected
}

func (s *Service) synthesize(ctx context.Context, session *chat.Session, text, speakerID string) *string {
	if s.tts == nil {
		return nil
	}
	audio, err := s.tts.Synthesize(ctx, text, speakerID)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, speech.ErrTTSDisabled) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "speech synthesis skipped", "session", shortID(session.ID), "error", err)
		return nil
	}
	return &audio
}

func (s *Service) observe(operation string, err error, endCall bool) {
	if s.observer != nil {
		s.observer.ObserveTurn(operation, err, endCall)
	}
}

// shortID keeps tokens out of logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
